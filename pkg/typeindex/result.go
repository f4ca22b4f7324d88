package typeindex

import (
	"encoding/json"
	"fmt"
)

// Match pairs a pattern with the 1-based positions of the types it matched.
type Match struct {
	Pattern   string `json:"pattern"`
	Positions []int  `json:"positions"`
}

// Result holds one entry per input pattern, in input order. Duplicate
// patterns keep their own entries.
type Result struct {
	Patterns []string
	Matches  [][]int
}

func newResult(patterns []string, positions [][]uint32) *Result {
	res := &Result{
		Patterns: append([]string(nil), patterns...),
		Matches:  make([][]int, len(positions)),
	}
	for i, ps := range positions {
		m := make([]int, len(ps))
		for j, p := range ps {
			m[j] = int(p) + 1
		}
		res.Matches[i] = m
	}
	return res
}

// Len returns the number of patterns resolved.
func (r *Result) Len() int {
	return len(r.Patterns)
}

// At returns the i-th pattern and its matches.
func (r *Result) At(i int) Match {
	return Match{Pattern: r.Patterns[i], Positions: r.Matches[i]}
}

// Get returns the matches labelled pattern. When the label appears more than
// once the last occurrence wins.
func (r *Result) Get(pattern string) ([]int, bool) {
	for i := len(r.Patterns) - 1; i >= 0; i-- {
		if r.Patterns[i] == pattern {
			return r.Matches[i], true
		}
	}
	return nil, false
}

// Map returns matches keyed by pattern, collapsing duplicates like Get.
func (r *Result) Map() map[string][]int {
	out := make(map[string][]int, len(r.Patterns))
	for i, p := range r.Patterns {
		out[p] = r.Matches[i]
	}
	return out
}

// Entries returns every pattern with its matches, in input order.
func (r *Result) Entries() []Match {
	out := make([]Match, r.Len())
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}

// MarshalJSON encodes the result as an ordered list so duplicate patterns
// survive the round trip.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Entries())
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var entries []Match
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	r.Patterns = make([]string, len(entries))
	r.Matches = make([][]int, len(entries))
	for i, e := range entries {
		r.Patterns[i] = e.Pattern
		if e.Positions == nil {
			e.Positions = []int{}
		}
		r.Matches[i] = e.Positions
	}
	return nil
}
