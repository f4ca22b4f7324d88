package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (f *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, events)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestCollectorFlushesOnSize(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	c.Track(ResolveEvent{Type: EventResolve, Source: "http"})
	c.Track(ResolveEvent{Type: EventResolve, Source: "http"})
	assert.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)

	c.Track(ResolveEvent{Type: EventResolve, Source: "rpc"})
	cancel()
	c.Close()
	assert.Equal(t, 3, pub.count())
	assert.Equal(t, 0, c.BufferLen())
}

func TestCollectorRequeuesOnFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, 10, time.Hour)
	c.Track(ResolveEvent{Source: "http"})
	c.flush(context.Background())
	assert.Equal(t, 1, c.BufferLen())

	pub.err = nil
	c.flush(context.Background())
	assert.Equal(t, 0, c.BufferLen())
	assert.Equal(t, 1, pub.count())
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(&fakePublisher{}, 1, time.Hour)
	for i := 0; i < 50; i++ {
		c.Track(ResolveEvent{Source: "http"})
	}
	assert.Equal(t, 10, c.BufferLen())
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(ResolveEvent{Type: EventResolve, Source: "http", Patterns: 3, Matched: 2, Types: 10,
		LatencyMs: 4, Vocabulary: "english", ZeroMatch: []string{"*zz"}})
	agg.Record(ResolveEvent{Type: EventResolve, Source: "rpc", Patterns: 1, Matched: 1, Types: 30,
		LatencyMs: 8, CacheHit: true, Vocabulary: "english"})
	agg.Record(ResolveEvent{Type: EventResolveError, Source: "kafka", Error: "bad request"})

	s := agg.Stats()
	assert.Equal(t, int64(3), s.TotalResolves)
	assert.Equal(t, int64(1), s.TotalErrors)
	assert.Equal(t, int64(4), s.TotalPatterns)
	assert.Equal(t, int64(3), s.MatchedPatterns)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(1), s.CacheMisses)
	assert.InDelta(t, 6.0, s.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 20.0, s.AvgTypes, 1e-9)
	assert.Equal(t, map[string]int{"http": 1, "rpc": 1, "kafka": 1}, s.BySource)
	assert.Equal(t, []NameCount{{Name: "english", Count: 2}}, s.TopVocabularies)
	assert.Equal(t, []NameCount{{Name: "*zz", Count: 1}}, s.ZeroMatchPatterns)
}

func TestHandleEventSkipsGarbage(t *testing.T) {
	agg := NewAggregator()
	h := HandleEvent(agg)
	data, err := json.Marshal(ResolveEvent{Type: EventResolve, Source: "http", Patterns: 2})
	require.NoError(t, err)

	require.NoError(t, h(context.Background(), nil, data))
	require.NoError(t, h(context.Background(), nil, []byte("not json")))
	assert.Equal(t, int64(1), agg.Stats().TotalResolves)
}

func TestHandlerServesStats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(ResolveEvent{Type: EventResolve, Source: "http", Patterns: 1})
	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.TotalResolves)
}

func TestPercentile(t *testing.T) {
	sorted := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, int64(6), percentile(sorted, 50))
	assert.Equal(t, int64(10), percentile(sorted, 99))
	assert.Equal(t, int64(0), percentile(nil, 50))
}
