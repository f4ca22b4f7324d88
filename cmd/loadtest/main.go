// Command loadtest drives POST /api/v1/index on a running typeindexd with a
// fixed vocabulary and a rotating set of patterns, then prints throughput,
// latency percentiles and the cache hit ratio.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/proto"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Bodies      [][]byte
}

type Stats struct {
	total     atomic.Int64
	success   atomic.Int64
	failed    atomic.Int64
	cached    atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
	statuses  map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies: make([]time.Duration, 0, 100000),
		statuses:  make(map[int]int64),
	}
}

func (s *Stats) Record(d time.Duration, status int, cached bool, err error) {
	s.total.Add(1)
	if err != nil {
		s.failed.Add(1)
		return
	}
	if status == http.StatusOK {
		s.success.Add(1)
	} else {
		s.failed.Add(1)
	}
	if cached {
		s.cached.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.statuses[status]++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of typeindexd")
	concurrency := flag.Int("concurrency", 10, "number of concurrent clients")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	types := flag.Int("types", 5000, "vocabulary size sent with each request")
	variants := flag.Int("variants", 50, "distinct pattern sets to rotate through")
	flag.Parse()

	bodies, err := buildBodies(*types, *variants)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building requests: %v\n", err)
		os.Exit(1)
	}
	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Bodies:      bodies,
	}

	fmt.Println("=== Type Index Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Vocabulary:  %d types, %d pattern sets\n", *types, len(bodies))
	fmt.Println()

	stats := run(cfg)
	printReport(stats, cfg.Duration)
}

// buildBodies encodes variants requests over one generated vocabulary.
func buildBodies(numTypes, variants int) ([][]byte, error) {
	rng := rand.New(rand.NewPCG(1, 2))
	const letters = "abcdefghijklmnopqrstuvwxyz"
	word := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = letters[rng.IntN(len(letters))]
		}
		return string(b)
	}

	vocabulary := make([]string, numTypes)
	for i := range vocabulary {
		vocabulary[i] = word(3 + rng.IntN(8))
	}

	bodies := make([][]byte, 0, variants)
	for v := 0; v < variants; v++ {
		req := proto.IndexRequest{
			Types: vocabulary,
			Patterns: []string{
				word(1) + "*",
				"*" + word(2),
				"?" + word(2),
				word(3) + "?",
				vocabulary[rng.IntN(len(vocabulary))],
			},
		}
		body, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, body)
	}
	return bodies, nil
}

func run(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				stats.Record(post(ctx, client, cfg.BaseURL+"/api/v1/index", cfg.Bodies[i%len(cfg.Bodies)]))
			}
			return nil
		})
	}
	g.Wait()
	return stats
}

func post(ctx context.Context, client *http.Client, url string, body []byte) (time.Duration, int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return time.Since(start), 0, false, err
	}
	defer resp.Body.Close()

	var out struct {
		Cached bool `json:"cached"`
	}
	if resp.StatusCode == http.StatusOK {
		json.NewDecoder(resp.Body).Decode(&out)
	}
	io.Copy(io.Discard, resp.Body)
	return time.Since(start), resp.StatusCode, out.Cached, nil
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.total.Load()
	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", stats.success.Load())
	fmt.Printf("Errors:          %d\n", stats.failed.Load())
	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is typeindexd running?")
		return
	}
	fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	fmt.Printf("Cache Hit Rate:  %.1f%%\n", float64(stats.cached.Load())/float64(total)*100)

	stats.mu.Lock()
	defer stats.mu.Unlock()
	if len(stats.latencies) > 0 {
		sort.Slice(stats.latencies, func(i, j int) bool { return stats.latencies[i] < stats.latencies[j] })
		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", stats.latencies[0])
		fmt.Printf("P50:    %s\n", percentile(stats.latencies, 50))
		fmt.Printf("P95:    %s\n", percentile(stats.latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(stats.latencies, 99))
		fmt.Printf("Max:    %s\n", stats.latencies[len(stats.latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	codes := make([]int, 0, len(stats.statuses))
	for code := range stats.statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statuses[code])
	}
}

func percentile(sorted []time.Duration, pct int) time.Duration {
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
