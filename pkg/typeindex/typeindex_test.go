package typeindex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/affix"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/metrics"
)

var vocabulary = []string{"bbb", "aaa", "ccc", "aa", "bb"}

func TestIndexTypesVocabularyExample(t *testing.T) {
	res, err := IndexTypes([]string{"a*", "*b", "*c*", "?b"}, vocabulary)
	require.NoError(t, err)
	require.Equal(t, 4, res.Len())

	assert.Equal(t, Match{Pattern: "a*", Positions: []int{2, 4}}, res.At(0))
	assert.Equal(t, Match{Pattern: "*b", Positions: []int{1, 5}}, res.At(1))
	assert.Equal(t, Match{Pattern: "*c*", Positions: []int{}}, res.At(2))
	// "?b" keys types by their last len-1 characters, so only "bb" maps to "?b".
	assert.Equal(t, Match{Pattern: "?b", Positions: []int{5}}, res.At(3))
}

func TestIndexTypesMultibyte(t *testing.T) {
	res, err := IndexTypes([]string{"跩", "跩*"}, []string{"跩购鹇", "跩"})
	require.NoError(t, err)

	got, ok := res.Get("跩")
	require.True(t, ok)
	assert.Equal(t, []int{2}, got)

	got, ok = res.Get("跩*")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, got)
}

func TestIndexTypesGlobDisabled(t *testing.T) {
	res, err := IndexTypes([]string{"a*", "aa", "?b"}, vocabulary, WithGlob(false))
	require.NoError(t, err)

	assert.Equal(t, []int{}, res.Matches[0])
	assert.Equal(t, []int{4}, res.Matches[1])
	assert.Equal(t, []int{}, res.Matches[2])
}

func TestIndexTypesExactAndLiteralWildcards(t *testing.T) {
	types := []string{"a*", "abc", "ab"}
	res, err := IndexTypes([]string{"a*", "ab"}, types)
	require.NoError(t, err)

	// "a*" is both a literal type and a prefix pattern.
	assert.Equal(t, []int{1, 2, 3}, res.Matches[0])
	assert.Equal(t, []int{3}, res.Matches[1])
}

func TestIndexTypesQuestionMark(t *testing.T) {
	types := []string{"cat", "bat", "at", "cart", "ca"}
	res, err := IndexTypes([]string{"?at", "ca?", "?a"}, types)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, res.Matches[0])
	assert.Equal(t, []int{1}, res.Matches[1])
	assert.Equal(t, []int{5}, res.Matches[2])
}

func TestIndexTypesDuplicatePatterns(t *testing.T) {
	res, err := IndexTypes([]string{"a*", "*b", "a*"}, vocabulary)
	require.NoError(t, err)

	require.Equal(t, 3, res.Len())
	assert.Equal(t, res.Matches[0], res.Matches[2])
	assert.Len(t, res.Map(), 2)
}

func TestIndexTypesEmptyInputs(t *testing.T) {
	res, err := IndexTypes(nil, vocabulary)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())

	res, err = IndexTypes([]string{"a*", "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{}, {}}, res.Matches)
}

func TestIndexTypesDegeneratePatterns(t *testing.T) {
	res, err := IndexTypes([]string{"*", "?", "**", "*a*", "!a*", "*a!", ""}, append(vocabulary, ""))
	require.NoError(t, err)

	// Only the empty pattern has a literal match: the empty type.
	for i := 0; i < 6; i++ {
		assert.Empty(t, res.Matches[i], res.Patterns[i])
	}
	assert.Equal(t, []int{6}, res.Matches[6])
}

func TestIndexTypesWorkerCountsAgree(t *testing.T) {
	types := make([]string, 0, 3000)
	for i := 0; i < 3000; i++ {
		types = append(types, fmt.Sprintf("t%03d-%d", i%500, i))
	}
	patterns := []string{"t0*", "*7", "t12*", "?-1", "*-2999", "t499-2999"}

	want, err := IndexTypes(patterns, types, WithWorkers(1))
	require.NoError(t, err)

	for _, workers := range []int{-1, 0, 2, 8} {
		got, err := IndexTypes(patterns, types, WithWorkers(workers), WithChunkSize(64), WithShards(3))
		require.NoError(t, err)
		assert.Equal(t, want.Matches, got.Matches, "workers=%d", workers)
	}
}

func TestIndexTypesIdempotent(t *testing.T) {
	a, err := IndexTypes([]string{"a*", "?b", "*b"}, vocabulary, WithWorkers(1))
	require.NoError(t, err)
	b, err := IndexTypes([]string{"a*", "?b", "*b"}, vocabulary, WithWorkers(1))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestResolvedPositionsAreSortedAndInRange(t *testing.T) {
	types := []string{"ab", "ab", "abab", "b", "bab", "ba"}
	res, err := IndexTypes([]string{"a*", "*b", "?ab", "ab", "b?"}, types)
	require.NoError(t, err)

	for i, m := range res.Matches {
		for j, p := range m {
			assert.GreaterOrEqual(t, p, 1, res.Patterns[i])
			assert.LessOrEqual(t, p, len(types), res.Patterns[i])
			if j > 0 {
				assert.Less(t, m[j-1], p, res.Patterns[i])
			}
		}
	}
	// Duplicated types are reported at every position.
	assert.Equal(t, []int{1, 2}, res.Matches[3])
}

func TestIndexTypesNormalization(t *testing.T) {
	types := []string{"cafe\u0301", "cafe\u0301s"}
	patterns := []string{"caf\u00e9", "caf\u00e9*"}

	res, err := IndexTypes(patterns, types)
	require.NoError(t, err)
	assert.Equal(t, []int{}, res.Matches[0])

	res, err = IndexTypes(patterns, types, WithNormalization(affix.FormNFC))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Matches[0])
	assert.Equal(t, []int{1, 2}, res.Matches[1])
	assert.Equal(t, "caf\u00e9", res.Patterns[0])

	// Labels keep the caller's spelling; only matching is normalised.
	res, err = IndexTypes([]string{"cafe\u0301"}, []string{"caf\u00e9"}, WithNormalization(affix.FormNFC))
	require.NoError(t, err)
	assert.Equal(t, Match{Pattern: "cafe\u0301", Positions: []int{1}}, res.At(0))
}

func TestNewResolverRejectsBadSettings(t *testing.T) {
	_, err := NewResolver(config.Default().Indexer, WithWorkers(-2))
	require.Error(t, err)

	_, err = NewResolver(config.IndexerConfig{Normalize: "nfkc"})
	require.Error(t, err)
}

func TestResolverRecordsMetrics(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	r, err := NewResolver(config.Default().Indexer, WithMetrics(m), WithSource("test"))
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), []string{"a*", "zz"}, vocabulary)
	require.NoError(t, err)

	assert.Equal(t, 1.0, counterValue(t, m.ResolvesTotal.WithLabelValues("test", "ok")))
	assert.Equal(t, 1.0, counterValue(t, m.PatternsTotal.WithLabelValues("matched")))
	assert.Equal(t, 1.0, counterValue(t, m.PatternsTotal.WithLabelValues("empty")))
}

func TestResolverBuildThenLookup(t *testing.T) {
	r, err := NewResolver(config.Default().Indexer)
	require.NoError(t, err)

	ctx := context.Background()
	idx, configs, err := r.Build(ctx, []string{"a*", "*b"}, vocabulary)
	require.NoError(t, err)
	assert.Len(t, configs, 3)

	res := r.Lookup(ctx, idx, []string{"*b", "a*"})
	assert.Equal(t, [][]int{{1, 5}, {2, 4}}, res.Matches)
}

func spanTraceIDs(t *testing.T, ctx context.Context) []string {
	t.Helper()
	r, err := NewResolver(config.Default().Indexer, WithSpanLogging(true))
	require.NoError(t, err)
	var buf bytes.Buffer
	r.logger = slog.New(slog.NewJSONHandler(&buf, nil))

	_, err = r.Resolve(ctx, []string{"a*"}, vocabulary)
	require.NoError(t, err)

	var ids []string
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var rec struct {
			TraceID string `json:"trace_id"`
		}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		ids = append(ids, rec.TraceID)
	}
	require.NotEmpty(t, ids)
	return ids
}

func TestSpanTraceID(t *testing.T) {
	ids := spanTraceIDs(t, context.Background())
	_, err := uuid.Parse(ids[0])
	require.NoError(t, err, ids[0])
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	ids = spanTraceIDs(t, logger.WithRequestID(context.Background(), "req-7"))
	assert.Equal(t, "req-7", ids[0])
}

func saveSegment(t *testing.T, r *Resolver, patterns, types []string) *segment.Reader {
	t.Helper()
	idx, configs, err := r.Build(context.Background(), patterns, types)
	require.NoError(t, err)
	dir := t.TempDir()
	meta := segment.Meta{TypeCount: len(types), Configs: configs, Glob: r.Glob(), Normalize: r.Form()}
	require.NoError(t, segment.NewWriter(dir).WriteFile("v"+segment.Extension, idx.Snapshot(), meta))
	seg, err := segment.OpenReader(filepath.Join(dir, "v"+segment.Extension))
	require.NoError(t, err)
	t.Cleanup(func() { seg.Close() })
	return seg
}

func TestSegmentLookupMatchesFreshBuildOnInvalidUTF8(t *testing.T) {
	types := []string{"a\xff", "b\xff", "c\xff", "\xffz", "ok"}
	patterns := []string{"a\xff", "*\xff", "\xff*", "?\xff", "ok"}

	r, err := NewResolver(config.Default().Indexer)
	require.NoError(t, err)
	fresh, err := r.Resolve(context.Background(), patterns, types)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, fresh.Matches[0])
	assert.Equal(t, []int{1, 2, 3}, fresh.Matches[1])
	assert.Equal(t, []int{4}, fresh.Matches[2])

	seg := saveSegment(t, r, patterns, types)
	assert.Equal(t, fresh.Matches, r.Lookup(context.Background(), seg, patterns).Matches)
}

func TestSegmentRejectsOtherGlobSetting(t *testing.T) {
	on, err := NewResolver(config.Default().Indexer)
	require.NoError(t, err)
	seg := saveSegment(t, on, []string{"a*"}, vocabulary)

	off, err := NewResolver(config.Default().Indexer, WithGlob(false))
	require.NoError(t, err)
	assert.True(t, seg.Covers(off.Configs([]string{"a*"})))
	require.Error(t, seg.CheckSettings(off.Glob(), off.Form()))

	fresh, err := off.Resolve(context.Background(), []string{"a*"}, vocabulary)
	require.NoError(t, err)
	assert.Equal(t, []int{}, fresh.Matches[0])
	require.NoError(t, seg.CheckSettings(on.Glob(), on.Form()))
}

func TestResultGetLastOccurrenceWins(t *testing.T) {
	res := &Result{
		Patterns: []string{"x", "y", "x"},
		Matches:  [][]int{{1}, {2}, {3}},
	}
	got, ok := res.Get("x")
	require.True(t, ok)
	assert.Equal(t, []int{3}, got)

	_, ok = res.Get("z")
	assert.False(t, ok)
	assert.Equal(t, map[string][]int{"x": {3}, "y": {2}}, res.Map())
}

func TestResultJSONKeepsOrderAndDuplicates(t *testing.T) {
	res := &Result{
		Patterns: []string{"b*", "a*", "b*"},
		Matches:  [][]int{{1, 2}, {}, {1, 2}},
	}
	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"pattern":"b*","positions":[1,2]},{"pattern":"a*","positions":[]},{"pattern":"b*","positions":[1,2]}]`,
		string(data))

	var back Result
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, res, &back)

	require.Error(t, json.Unmarshal([]byte(`{"a*":[1]}`), &back))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, c.Write(&pb))
	return pb.GetCounter().GetValue()
}
