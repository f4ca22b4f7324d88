package indexer

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/config"
)

func benchTypes(n int) []string {
	stems := []string{"walk", "run", "index", "search", "query", "rank", "shard", "merge"}
	suffixes := []string{"", "s", "ed", "ing", "er", "ers"}
	types := make([]string, n)
	for i := range types {
		types[i] = fmt.Sprintf("%s%s%d", stems[i%len(stems)], suffixes[(i/len(stems))%len(suffixes)], i)
	}
	return types
}

// BenchmarkEngineBuild measures index construction for a typical pattern mix
// at several pool sizes.
func BenchmarkEngineBuild(b *testing.B) {
	types := benchTypes(100000)
	configs := pattern.Parse([]string{"walk*", "*ing7", "?un1", "index?", "*s"}, true)

	for _, workers := range []int{1, 4, runtime.GOMAXPROCS(0)} {
		b.Run(fmt.Sprintf("workers_%d", workers), func(b *testing.B) {
			engine := NewEngine(config.IndexerConfig{Workers: workers, ChunkSize: 4096})
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := engine.Build(configs, types); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkEngineBuildConfigs measures how build cost grows with the number
// of distinct configurations.
func BenchmarkEngineBuildConfigs(b *testing.B) {
	types := benchTypes(20000)
	for _, n := range []int{1, 4, 16} {
		patterns := make([]string, 0, 2*n)
		for k := 1; k <= n; k++ {
			patterns = append(patterns, "x"+fmt.Sprint(k)+"*", "*"+fmt.Sprint(k))
		}
		configs := pattern.Parse(patterns, true)
		b.Run(fmt.Sprintf("configs_%d", len(configs)), func(b *testing.B) {
			engine := NewEngine(config.IndexerConfig{Workers: -1})
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := engine.Build(configs, types); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
