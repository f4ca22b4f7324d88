// Package indexer builds the shared pattern index: one pass over the
// vocabulary per configuration, split into chunks that run on a bounded pool
// of workers.
package indexer

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/errors"
)

// DefaultChunkSize is the number of types one work unit scans.
const DefaultChunkSize = 4096

// Engine builds MultiMap indexes from configurations and a vocabulary.
type Engine struct {
	workers   int
	chunkSize int
	shards    int
	logger    *slog.Logger
}

// NewEngine creates an Engine from the indexer config. Workers of -1 or 0
// use GOMAXPROCS, a positive value caps the pool, and 1 builds sequentially.
func NewEngine(cfg config.IndexerConfig) *Engine {
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	return &Engine{
		workers:   ResolveWorkers(cfg.Workers),
		chunkSize: chunk,
		shards:    cfg.Shards,
		logger:    slog.Default().With("component", "indexer"),
	}
}

// ResolveWorkers maps a configured worker count onto an actual pool size.
func ResolveWorkers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// Workers returns the pool size this Engine builds with.
func (e *Engine) Workers() int {
	return e.workers
}

type unit struct {
	conf   pattern.Config
	lo, hi int
}

// Build inserts the key of every type under every configuration into a new
// MultiMap and freezes it. It returns only after all workers have finished,
// so the result is safe to read without locks.
func (e *Engine) Build(configs []pattern.Config, types []string) (*index.MultiMap, error) {
	if uint64(len(types)) > math.MaxUint32 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"vocabulary has %d types, limit is %d", len(types), uint32(math.MaxUint32))
	}
	start := time.Now()
	idx := index.New(e.shards)
	units := e.plan(configs, len(types))

	if e.workers == 1 || len(units) <= 1 {
		batch := idx.NewBatch()
		for _, u := range units {
			fill(batch, u, types)
			batch.Flush()
		}
	} else {
		var g errgroup.Group
		g.SetLimit(e.workers)
		for _, u := range units {
			g.Go(func() error {
				batch := idx.NewBatch()
				fill(batch, u, types)
				batch.Flush()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("building index: %w", err)
		}
	}
	idx.Freeze()

	st := idx.Stats()
	e.logger.Debug("index built",
		"configs", len(configs),
		"types", len(types),
		"units", len(units),
		"workers", e.workers,
		"keys", st.Keys,
		"postings", st.Postings,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return idx, nil
}

// plan splits every configuration into chunks of at most chunkSize types.
func (e *Engine) plan(configs []pattern.Config, numTypes int) []unit {
	perConf := (numTypes + e.chunkSize - 1) / e.chunkSize
	units := make([]unit, 0, len(configs)*perConf)
	for _, conf := range configs {
		for lo := 0; lo < numTypes; lo += e.chunkSize {
			units = append(units, unit{conf: conf, lo: lo, hi: min(lo+e.chunkSize, numTypes)})
		}
	}
	return units
}

func fill(batch *index.Batch, u unit, types []string) {
	for h := u.lo; h < u.hi; h++ {
		if key, ok := u.conf.Key(types[h]); ok {
			batch.Add(key, uint32(h))
		}
	}
}
