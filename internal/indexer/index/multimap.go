// Package index provides the multi-valued key → vocabulary position map
// shared by every index-building worker. Writers may insert concurrently;
// once Freeze is called the map is read-only and lookups take no locks.
package index

import (
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/indexer/shard"
)

type shardMap struct {
	mu       sync.Mutex
	postings map[string][]uint32
	count    int
}

// MultiMap is a lock-striped multi-map. Duplicate (key, position) pairs are
// kept and nothing is ever deleted.
type MultiMap struct {
	router *shard.Router
	shards []*shardMap
	frozen atomic.Bool
}

// New creates an empty MultiMap striped over numShards shards. Values below
// one use shard.DefaultShards.
func New(numShards int) *MultiMap {
	router := shard.NewRouter(numShards)
	shards := make([]*shardMap, router.NumShards())
	for i := range shards {
		shards[i] = &shardMap{postings: make(map[string][]uint32)}
	}
	return &MultiMap{router: router, shards: shards}
}

// Insert adds pos under key. It is safe for concurrent use and panics if the
// map has been frozen.
func (m *MultiMap) Insert(key string, pos uint32) {
	m.checkWritable()
	s := m.shards[m.router.Route(key)]
	s.mu.Lock()
	s.postings[key] = append(s.postings[key], pos)
	s.count++
	s.mu.Unlock()
}

// NewBatch returns a private write buffer for one worker.
func (m *MultiMap) NewBatch() *Batch {
	return &Batch{m: m, pending: make([][]posting, len(m.shards))}
}

// Freeze ends the write phase. Callers must only freeze after every writer
// has returned.
func (m *MultiMap) Freeze() {
	m.frozen.Store(true)
}

// Frozen reports whether Freeze has been called.
func (m *MultiMap) Frozen() bool {
	return m.frozen.Load()
}

// Lookup returns a copy of every position stored under key, in insertion
// order per writer. A missing key returns nil.
func (m *MultiMap) Lookup(key string) []uint32 {
	s := m.shards[m.router.Route(key)]
	if m.frozen.Load() {
		return slices.Clone(s.postings[key])
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.postings[key])
}

// Stats counts keys and postings across all shards.
func (m *MultiMap) Stats() Stats {
	st := Stats{ShardSizes: make([]int, len(m.shards))}
	for i, s := range m.shards {
		s.mu.Lock()
		st.Keys += len(s.postings)
		st.Postings += s.count
		st.ShardSizes[i] = s.count
		s.mu.Unlock()
	}
	return st
}

// Snapshot returns every entry sorted by key with positions sorted
// ascending, suitable for writing a segment.
func (m *MultiMap) Snapshot() []Entry {
	entries := make([]Entry, 0)
	for _, s := range m.shards {
		s.mu.Lock()
		for key, positions := range s.postings {
			sorted := slices.Clone(positions)
			slices.Sort(sorted)
			entries = append(entries, Entry{Key: key, Positions: sorted})
		}
		s.mu.Unlock()
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return entries
}

func (m *MultiMap) checkWritable() {
	if m.frozen.Load() {
		panic("index: insert into frozen MultiMap")
	}
}

// Batch buffers insertions per shard so a worker takes each shard lock once
// per Flush instead of once per key.
type Batch struct {
	m       *MultiMap
	pending [][]posting
	size    int
}

// Add buffers pos under key.
func (b *Batch) Add(key string, pos uint32) {
	i := b.m.router.Route(key)
	b.pending[i] = append(b.pending[i], posting{key: key, pos: pos})
	b.size++
}

// Len returns the number of buffered insertions.
func (b *Batch) Len() int {
	return b.size
}

// Flush moves every buffered insertion into the MultiMap and empties the
// batch.
func (b *Batch) Flush() {
	if b.size == 0 {
		return
	}
	b.m.checkWritable()
	for i, pending := range b.pending {
		if len(pending) == 0 {
			continue
		}
		s := b.m.shards[i]
		s.mu.Lock()
		for _, p := range pending {
			s.postings[p.key] = append(s.postings[p.key], p.pos)
		}
		s.count += len(pending)
		s.mu.Unlock()
		b.pending[i] = pending[:0]
	}
	b.size = 0
}
