// Package typeindex resolves glob-style patterns against a vocabulary of
// types. A pattern may carry one wildcard at one end: "*" for any number of
// characters ("*ing", "pre*") or "?" for exactly one ("?at", "ca?"). Any
// other pattern matches only types equal to it. Positions in results are
// 1-based.
//
//	res, err := typeindex.IndexTypes(
//	    []string{"a*", "*b", "*c*"},
//	    []string{"bbb", "aaa", "ccc", "aa", "bb"},
//	)
//	// res.At(0) = {a* [2 4]}, res.At(1) = {*b [1 5]}, res.At(2) = {*c* []}
package typeindex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/affix"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/tracing"
)

// Option adjusts a Resolver.
type Option func(*Resolver)

// WithGlob turns wildcard interpretation on or off. Off means exact matching
// only.
func WithGlob(glob bool) Option {
	return func(r *Resolver) { r.cfg.Glob = glob }
}

// WithWorkers sets the build pool size: -1 for the default, 1 for sequential.
func WithWorkers(n int) Option {
	return func(r *Resolver) { r.cfg.Workers = n }
}

// WithChunkSize sets how many types one build work unit scans.
func WithChunkSize(n int) Option {
	return func(r *Resolver) { r.cfg.ChunkSize = n }
}

// WithShards sets the number of lock stripes in the built index.
func WithShards(n int) Option {
	return func(r *Resolver) { r.cfg.Shards = n }
}

// WithNormalization normalises types and patterns before indexing.
func WithNormalization(form affix.Form) Option {
	return func(r *Resolver) { r.cfg.Normalize = string(form) }
}

// WithMetrics records phase timings and counts into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithSource labels metrics with the entry point that resolved the request.
func WithSource(source string) Option {
	return func(r *Resolver) { r.source = source }
}

// WithSpanLogging logs the phase span tree of every Resolve call. Without
// it spans are only logged at debug level.
func WithSpanLogging(on bool) Option {
	return func(r *Resolver) { r.logSpans = on }
}

// Resolver runs the parse, build and lookup phases with fixed settings.
// It is safe for concurrent use; every call builds its own index.
type Resolver struct {
	cfg      config.IndexerConfig
	form     affix.Form
	engine   *indexer.Engine
	metrics  *metrics.Metrics
	source   string
	logSpans bool
	logger   *slog.Logger
}

// NewResolver creates a Resolver from cfg with opts applied on top.
func NewResolver(cfg config.IndexerConfig, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		cfg:    cfg,
		source: "library",
		logger: slog.Default().With("component", "typeindex"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cfg.Workers < -1 {
		return nil, fmt.Errorf("workers must be -1, 0 or positive, got %d", r.cfg.Workers)
	}
	form, err := affix.ParseForm(r.cfg.Normalize)
	if err != nil {
		return nil, err
	}
	r.form = form
	r.engine = indexer.NewEngine(r.cfg)
	return r, nil
}

// IndexTypes resolves patterns against types with glob enabled and the
// default worker count unless opts say otherwise.
func IndexTypes(patterns, types []string, opts ...Option) (*Result, error) {
	r, err := NewResolver(config.Default().Indexer, opts...)
	if err != nil {
		return nil, err
	}
	return r.Resolve(context.Background(), patterns, types)
}

// Glob reports whether wildcard interpretation is enabled.
func (r *Resolver) Glob() bool {
	return r.cfg.Glob
}

// Form returns the normalisation applied to types and patterns.
func (r *Resolver) Form() affix.Form {
	return r.form
}

// Resolve returns, for every pattern in input order, the 1-based positions
// of the types it matches.
func (r *Resolver) Resolve(ctx context.Context, patterns, types []string) (*Result, error) {
	ctx, span := r.startSpan(ctx)
	defer r.finishSpan(span)

	idx, _, err := r.Build(ctx, patterns, types)
	if err != nil {
		r.countResolve("error")
		return nil, err
	}
	res := r.Lookup(ctx, idx, patterns)
	r.countResolve("ok")
	return res, nil
}

// Build classifies patterns and builds the frozen index over types. The
// configurations used are returned so the index can be persisted with them.
func (r *Resolver) Build(ctx context.Context, patterns, types []string) (*index.MultiMap, []pattern.Config, error) {
	_, parseSpan := tracing.StartChildSpan(ctx, "parse")
	start := time.Now()
	configs := pattern.Parse(r.form.NormalizeAll(patterns), r.cfg.Glob)
	parseSpan.SetAttr("configs", len(configs))
	parseSpan.End()
	r.observe("parse", start)

	_, buildSpan := tracing.StartChildSpan(ctx, "build")
	start = time.Now()
	idx, err := r.engine.Build(configs, r.form.NormalizeAll(types))
	buildSpan.End()
	if err != nil {
		return nil, nil, fmt.Errorf("building index over %d types: %w", len(types), err)
	}
	r.observe("build", start)

	st := idx.Stats()
	buildSpan.SetAttr("keys", st.Keys)
	buildSpan.SetAttr("postings", st.Postings)
	if r.metrics != nil {
		r.metrics.ConfigsPerResolve.Observe(float64(len(configs)))
		r.metrics.IndexKeys.Observe(float64(st.Keys))
		r.metrics.BuildWorkers.Set(float64(r.engine.Workers()))
	}
	logger.FromContext(ctx).Debug("index ready",
		"component", "typeindex",
		"patterns", len(patterns),
		"types", len(types),
		"configs", len(configs),
		"keys", st.Keys,
		"postings", st.Postings,
	)
	return idx, configs, nil
}

// Lookup resolves patterns against an already built index or a persisted
// segment.
func (r *Resolver) Lookup(ctx context.Context, src executor.Lookuper, patterns []string) *Result {
	_, span := tracing.StartChildSpan(ctx, "lookup")
	start := time.Now()
	positions := executor.New(src).Execute(r.form.NormalizeAll(patterns))
	span.End()
	r.observe("lookup", start)

	res := newResult(patterns, positions)
	if r.metrics != nil {
		matched := 0
		for _, m := range res.Matches {
			if len(m) > 0 {
				matched++
			}
		}
		r.metrics.PatternsTotal.WithLabelValues("matched").Add(float64(matched))
		r.metrics.PatternsTotal.WithLabelValues("empty").Add(float64(len(patterns) - matched))
	}
	return res
}

// Configs returns the configurations patterns need under this Resolver's
// settings.
func (r *Resolver) Configs(patterns []string) []pattern.Config {
	return pattern.Parse(r.form.NormalizeAll(patterns), r.cfg.Glob)
}

func (r *Resolver) startSpan(ctx context.Context) (context.Context, *tracing.Span) {
	if tracing.SpanFromContext(ctx) != nil {
		return tracing.StartChildSpan(ctx, "resolve")
	}
	traceID := logger.RequestID(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return tracing.StartSpan(ctx, "resolve", traceID)
}

func (r *Resolver) finishSpan(span *tracing.Span) {
	span.End()
	if span.TraceID == "" {
		return
	}
	switch {
	case r.logSpans:
		span.Log(r.logger, slog.LevelInfo)
	case r.logger.Enabled(context.Background(), slog.LevelDebug):
		span.Log(r.logger, slog.LevelDebug)
	}
}

func (r *Resolver) observe(phase string, start time.Time) {
	if r.metrics != nil {
		r.metrics.PhaseLatency.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	}
}

func (r *Resolver) countResolve(status string) {
	if r.metrics != nil {
		r.metrics.ResolvesTotal.WithLabelValues(r.source, status).Inc()
	}
}
