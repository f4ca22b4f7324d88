// Command typeindex resolves glob patterns against a vocabulary of types
// from the command line, and manages persisted index segments and stored
// vocabularies.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/cmd/typeindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
