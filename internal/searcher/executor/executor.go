// Package executor runs the lookup phase: every pattern is used verbatim as
// a key against a built index, and the matching positions are normalised to
// an ascending, duplicate-free list.
package executor

import (
	"log/slog"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// Lookuper is anything that can return the positions stored under a key:
// the in-memory MultiMap or a persisted segment.
type Lookuper interface {
	Lookup(key string) []uint32
}

// Executor resolves patterns against a single Lookuper.
type Executor struct {
	source Lookuper
	logger *slog.Logger
}

// New creates an Executor reading from source. The source must not be
// written to while Execute runs.
func New(source Lookuper) *Executor {
	return &Executor{
		source: source,
		logger: slog.Default().With("component", "lookup-executor"),
	}
}

// Execute returns one position list per pattern, in input order. Duplicate
// patterns get their own slots. A pattern with no key yields an empty,
// non-nil list.
func (e *Executor) Execute(patterns []string) [][]uint32 {
	start := time.Now()
	results := make([][]uint32, len(patterns))
	matched := 0
	for i, p := range patterns {
		results[i] = SortUnique(e.source.Lookup(p))
		if len(results[i]) > 0 {
			matched++
		}
	}
	e.logger.Debug("lookup executed",
		"patterns", len(patterns),
		"matched", matched,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results
}

// SortUnique returns positions sorted ascending with duplicates removed.
func SortUnique(positions []uint32) []uint32 {
	switch len(positions) {
	case 0:
		return []uint32{}
	case 1:
		return []uint32{positions[0]}
	}
	return roaring.BitmapOf(positions...).ToArray()
}
