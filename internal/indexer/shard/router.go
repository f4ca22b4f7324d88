// Package shard maps index keys onto a fixed number of lock stripes. Every
// key always lands on the same shard, so concurrent writers only contend when
// their keys hash together.
package shard

import (
	"runtime"

	"github.com/cespare/xxhash/v2"
)

// Router assigns keys to shards by xxhash.
type Router struct {
	numShards uint64
}

// DefaultShards returns the shard count used when none is configured: four
// stripes per available CPU, rounded up to a power of two.
func DefaultShards() int {
	n := 4 * runtime.GOMAXPROCS(0)
	shards := 1
	for shards < n {
		shards <<= 1
	}
	return shards
}

// NewRouter creates a Router over numShards shards. Values below one fall
// back to DefaultShards.
func NewRouter(numShards int) *Router {
	if numShards < 1 {
		numShards = DefaultShards()
	}
	return &Router{numShards: uint64(numShards)}
}

// Route returns the shard that owns key.
func (r *Router) Route(key string) int {
	return int(xxhash.Sum64String(key) % r.numShards)
}

// NumShards returns the number of shards managed by this router.
func (r *Router) NumShards() int {
	return int(r.numShards)
}
