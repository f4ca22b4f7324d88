// Package vocab loads and stores vocabularies: ordered lists of types whose
// positions are what pattern resolution reports.
package vocab

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// maxLine bounds a single type read from a line-oriented source.
const maxLine = 1 << 20

// ReadLines returns one entry per line of r, in order. Line terminators
// ("\n" or "\r\n") are stripped; empty lines are kept as empty types so
// positions line up with the source.
func ReadLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.TrimSuffix(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading lines: %w", err)
	}
	return lines, nil
}

// ReadFile reads path with ReadLines. A path of "-" reads stdin.
func ReadFile(path string) ([]string, error) {
	if path == "-" {
		return ReadLines(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	lines, err := ReadLines(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lines, nil
}
