package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/proto"
	pkgredis "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/typeindex"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, pkgredis.ErrMiss
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memStore) FlushByPrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func response() *proto.IndexResponse {
	return &proto.IndexResponse{
		Results: []typeindex.Match{{Pattern: "a*", Positions: []int{2, 4}}},
		Types:   5,
	}
}

func TestGetOrComputeCaches(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	ctx := context.Background()
	calls := 0
	compute := func(context.Context) (*proto.IndexResponse, error) {
		calls++
		return response(), nil
	}

	got, hit, err := c.GetOrCompute(ctx, "k", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, response(), got)

	got, hit, err = c.GetOrCompute(ctx, "k", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, response(), got)
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestGetOrComputeCollapsesConcurrentCalls(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	var calls atomic.Int32
	gate := make(chan struct{})
	compute := func(context.Context) (*proto.IndexResponse, error) {
		calls.Add(1)
		<-gate
		return response(), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), "k", compute)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestComputeErrorNotCached(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (*proto.IndexResponse, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, store.data)
}

func TestBackendFailureDegradesToMiss(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	c := New(store, time.Minute, nil)

	got, hit, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (*proto.IndexResponse, error) {
		return response(), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, response(), got)
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	req := &proto.IndexRequest{Patterns: []string{"a*"}}
	c.Set(context.Background(), Key(req, []string{"aa"}), response())
	store.data["unrelated"] = []byte("x")

	n, err := c.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Contains(t, store.data, "unrelated")
}

func TestKeyDistinguishesRequests(t *testing.T) {
	off := false
	base := &proto.IndexRequest{Patterns: []string{"a*", "b"}}
	keys := map[string]string{
		"base":      Key(base, []string{"aa", "b"}),
		"types":     Key(base, []string{"aab"}),
		"glob":      Key(&proto.IndexRequest{Patterns: base.Patterns, Glob: &off}, []string{"aa", "b"}),
		"normalize": Key(&proto.IndexRequest{Patterns: base.Patterns, Normalize: "nfc"}, []string{"aa", "b"}),
		"split":     Key(&proto.IndexRequest{Patterns: []string{"a*b"}}, []string{"aa", "b"}),
	}
	seen := map[string]string{}
	for name, k := range keys {
		assert.True(t, strings.HasPrefix(k, keyPrefix))
		if other, dup := seen[k]; dup {
			t.Fatalf("%s and %s share key %s", name, other, k)
		}
		seen[k] = name
	}
	assert.Equal(t, keys["base"], Key(&proto.IndexRequest{Patterns: []string{"a*", "b"}, Workers: 4}, []string{"aa", "b"}))
}

type slowStore struct {
	*memStore
	delay time.Duration
}

func (s slowStore) Get(ctx context.Context, key string) ([]byte, error) {
	select {
	case <-time.After(s.delay):
		return s.memStore.Get(ctx, key)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSlowBackendCountsAsMiss(t *testing.T) {
	store := newMemStore()
	fast := New(store, time.Minute, nil)
	fast.Set(context.Background(), "k", response())

	c := New(slowStore{memStore: store, delay: time.Second}, time.Minute, nil, WithOpTimeout(20*time.Millisecond))
	start := time.Now()
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	_, misses := c.Stats()
	assert.Equal(t, int64(1), misses)

	c = New(slowStore{memStore: store, delay: 5 * time.Millisecond}, time.Minute, nil, WithOpTimeout(time.Second))
	got, ok := c.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, response(), got)
}
