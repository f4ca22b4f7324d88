package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/kafka"
)

// maxLatencySamples bounds the latency reservoir; older samples are
// overwritten ring-buffer style.
const maxLatencySamples = 10000

// AggregatedStats summarises the resolve events seen so far.
type AggregatedStats struct {
	TotalResolves     int64          `json:"total_resolves"`
	TotalErrors       int64          `json:"total_errors"`
	TotalPatterns     int64          `json:"total_patterns"`
	MatchedPatterns   int64          `json:"matched_patterns"`
	CacheHits         int64          `json:"cache_hits"`
	CacheMisses       int64          `json:"cache_misses"`
	AvgLatencyMs      float64        `json:"avg_latency_ms"`
	P50LatencyMs      int64          `json:"p50_latency_ms"`
	P95LatencyMs      int64          `json:"p95_latency_ms"`
	P99LatencyMs      int64          `json:"p99_latency_ms"`
	AvgTypes          float64        `json:"avg_types"`
	BySource          map[string]int `json:"by_source"`
	TopVocabularies   []NameCount    `json:"top_vocabularies"`
	ZeroMatchPatterns []NameCount    `json:"zero_match_patterns"`
	ResolvesPerMinute float64        `json:"resolves_per_minute"`
}

// NameCount pairs a label with how often it was seen.
type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Aggregator folds ResolveEvents into AggregatedStats. It is safe for
// concurrent use.
type Aggregator struct {
	mu              sync.Mutex
	totalResolves   int64
	totalErrors     int64
	totalPatterns   int64
	matchedPatterns int64
	cacheHits       int64
	cacheMisses     int64
	totalTypes      int64
	latencies       []int64
	next            int
	bySource        map[string]int
	vocabularies    map[string]int64
	zeroMatch       map[string]int64
	startTime       time.Time
	logger          *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:    make([]int64, 0, 1024),
		bySource:     make(map[string]int),
		vocabularies: make(map[string]int64),
		zeroMatch:    make(map[string]int64),
		startTime:    time.Now(),
		logger:       slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent adapts agg to a Kafka consumer. Undecodable messages are
// logged and skipped so they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ResolveEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// Record adds one event.
func (a *Aggregator) Record(event ResolveEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalResolves++
	a.bySource[event.Source]++
	if event.Type == EventResolveError {
		a.totalErrors++
		return
	}
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	a.totalPatterns += int64(event.Patterns)
	a.matchedPatterns += int64(event.Matched)
	a.totalTypes += int64(event.Types)
	if event.Vocabulary != "" {
		a.vocabularies[event.Vocabulary]++
	}
	for _, p := range event.ZeroMatch {
		a.zeroMatch[p]++
	}

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
}

// Track records event in process, for deployments without Kafka.
func (a *Aggregator) Track(event ResolveEvent) {
	a.Record(event)
}

// Stats returns a snapshot of the aggregate.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		TotalResolves:   a.totalResolves,
		TotalErrors:     a.totalErrors,
		TotalPatterns:   a.totalPatterns,
		MatchedPatterns: a.matchedPatterns,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		BySource:        make(map[string]int, len(a.bySource)),
	}
	for k, v := range a.bySource {
		stats.BySource[k] = v
	}
	if ok := a.totalResolves - a.totalErrors; ok > 0 {
		stats.AvgTypes = float64(a.totalTypes) / float64(ok)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopVocabularies = topN(a.vocabularies, 10)
	stats.ZeroMatchPatterns = topN(a.zeroMatch, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.ResolvesPerMinute = float64(stats.TotalResolves) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []NameCount {
	result := make([]NameCount, 0, len(counts))
	for name, count := range counts {
		result = append(result, NameCount{Name: name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
