// Package cache memoises resolve responses in Redis. Identical requests
// share one computation through singleflight, and a circuit breaker keeps a
// failing Redis from adding latency to every request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/proto"
	pkgredis "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/resilience"
)

const keyPrefix = "typeindex:v1:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPrefix(ctx context.Context, prefix string) (int64, error)
}

// DefaultOpTimeout bounds a single Redis read or write.
const DefaultOpTimeout = 250 * time.Millisecond

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithOpTimeout bounds each Redis call; a slow read counts as a miss.
// Zero or less disables the bound.
func WithOpTimeout(d time.Duration) Option {
	return func(c *ResultCache) { c.opTimeout = d }
}

// ResultCache caches IndexResponse values keyed by a digest of the request.
type ResultCache struct {
	store     Store
	ttl       time.Duration
	opTimeout time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a ResultCache over store. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics, opts ...Option) *ResultCache {
	c := &ResultCache{
		store:     store,
		ttl:       ttl,
		opTimeout: DefaultOpTimeout,
		breaker: resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     15 * time.Second,
		}),
		metrics: m,
		logger:  slog.Default().With("component", "result-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached response for key, if any. Backend errors count as
// misses.
func (c *ResultCache) Get(ctx context.Context, key string) (*proto.IndexResponse, bool) {
	// fn may outlive a timed-out call, so the value travels by channel.
	got := make(chan []byte, 1)
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.WithTimeout(ctx, c.opTimeout, "cache-get", func(ctx context.Context) error {
			v, err := c.store.Get(ctx, key)
			if err != nil && !errors.Is(err, pkgredis.ErrMiss) {
				return err
			}
			got <- v
			return nil
		})
	})
	var data []byte
	if err == nil {
		data = <-got
	}
	if err != nil || data == nil {
		if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var resp proto.IndexResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &resp, true
}

// Set stores resp under key. Failures are logged, not returned.
func (c *ResultCache) Set(ctx context.Context, key string, resp *proto.IndexResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.WithTimeout(ctx, c.opTimeout, "cache-set", func(ctx context.Context) error {
			return c.store.Set(ctx, key, data, c.ttl)
		})
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached response for key or runs compute once
// for all concurrent callers with the same key. The bool reports a cache
// hit.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func(ctx context.Context) (*proto.IndexResponse, error),
) (*proto.IndexResponse, bool, error) {
	if resp, ok := c.Get(ctx, key); ok {
		return resp, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		resp, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*proto.IndexResponse), false, nil
}

// Invalidate drops every cached response.
func (c *ResultCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPrefix(ctx, keyPrefix)
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Stats returns hit and miss counts since start.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResultCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// Key digests everything that affects a resolve result. Strings are length
// prefixed so no two distinct requests share an encoding.
func Key(req *proto.IndexRequest, types []string) string {
	h := sha256.New()
	writeBool(h, req.GlobEnabled())
	writeString(h, req.Normalize)
	writeStrings(h, req.Patterns)
	writeStrings(h, types)
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

func writeBool(h hash.Hash, b bool) {
	if b {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
}

func writeString(h hash.Hash, s string) {
	var n [binary.MaxVarintLen64]byte
	h.Write(n[:binary.PutUvarint(n[:], uint64(len(s)))])
	h.Write([]byte(s))
}

func writeStrings(h hash.Hash, ss []string) {
	var n [binary.MaxVarintLen64]byte
	h.Write(n[:binary.PutUvarint(n[:], uint64(len(ss)))])
	for _, s := range ss {
		writeString(h, s)
	}
}
