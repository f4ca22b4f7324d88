package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/typeindex"
)

// writeResult prints res as an ordered JSON list or as one
// "pattern<TAB>positions" line per pattern.
func writeResult(w io.Writer, res *typeindex.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "text":
		for i := 0; i < res.Len(); i++ {
			m := res.At(i)
			ps := make([]string, len(m.Positions))
			for j, p := range m.Positions {
				ps[j] = strconv.Itoa(p)
			}
			if _, err := fmt.Fprintf(w, "%s\t%s\n", m.Pattern, strings.Join(ps, ",")); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
