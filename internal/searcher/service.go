// Package searcher serves resolve requests: it loads the vocabulary, builds
// and queries an index per request through pkg/typeindex, and layers the
// result cache and analytics on top. HTTP, RPC and Kafka front ends all go
// through Service.
package searcher

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/affix"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/typeindex"
)

// Request sources, used in metrics and analytics.
const (
	SourceHTTP  = "http"
	SourceRPC   = "rpc"
	SourceKafka = "kafka"
)

// VocabularyStore loads named vocabularies. *vocab.Store satisfies it.
type VocabularyStore interface {
	Load(ctx context.Context, name string) ([]string, error)
}

// EventTracker receives one event per handled request.
// *analytics.Collector satisfies it.
type EventTracker interface {
	Track(event analytics.ResolveEvent)
}

// Option configures a Service.
type Option func(*Service)

func WithVocabularies(store VocabularyStore) Option {
	return func(s *Service) { s.vocab = store }
}

func WithCache(c *cache.ResultCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithEvents(t EventTracker) Option {
	return func(s *Service) { s.events = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSpanLogging logs each request's phase spans.
func WithSpanLogging(on bool) Option {
	return func(s *Service) { s.logSpans = on }
}

// Service resolves IndexRequests.
type Service struct {
	defaults   config.IndexerConfig
	maxWorkers int
	vocab      VocabularyStore
	cache      *cache.ResultCache
	events     EventTracker
	metrics    *metrics.Metrics
	logSpans   bool
	logger     *slog.Logger
}

// NewService creates a Service whose per-request settings default to cfg.
// Requests may lower the worker count but not raise it above cfg's.
func NewService(cfg config.IndexerConfig, opts ...Option) *Service {
	s := &Service{
		defaults:   cfg,
		maxWorkers: indexer.ResolveWorkers(cfg.Workers),
		logger:     slog.Default().With("component", "resolve-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache returns the result cache, or nil when caching is off.
func (s *Service) Cache() *cache.ResultCache {
	return s.cache
}

// Resolve handles req on behalf of source. Errors carry an HTTP status via
// pkg/errors.
func (s *Service) Resolve(ctx context.Context, source string, req *proto.IndexRequest) (*proto.IndexResponse, error) {
	start := time.Now()
	requestID := req.RequestID
	if requestID == "" {
		requestID = logger.RequestID(ctx)
	}
	log := logger.FromContext(ctx).With("component", "resolve-service", "source", source)

	resp, err := s.resolve(ctx, source, req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		log.Warn("resolve failed", "error", err, "latency_ms", latency)
		s.track(analytics.ResolveEvent{
			Type:       analytics.EventResolveError,
			RequestID:  requestID,
			Source:     source,
			Vocabulary: req.Vocabulary,
			Patterns:   len(req.Patterns),
			LatencyMs:  latency,
			Error:      err.Error(),
			Timestamp:  time.Now().UTC(),
		})
		return nil, err
	}

	// resp may be shared with other callers through the cache.
	out := *resp
	out.RequestID = requestID
	out.LatencyMs = latency

	event := analytics.ResolveEvent{
		Type:       analytics.EventResolve,
		RequestID:  requestID,
		Source:     source,
		Vocabulary: req.Vocabulary,
		Patterns:   len(out.Results),
		Types:      out.Types,
		CacheHit:   out.Cached,
		LatencyMs:  latency,
		Timestamp:  time.Now().UTC(),
	}
	for _, m := range out.Results {
		if len(m.Positions) > 0 {
			event.Matched++
		} else if len(event.ZeroMatch) < analytics.MaxZeroMatch {
			event.ZeroMatch = append(event.ZeroMatch, m.Pattern)
		}
	}
	s.track(event)

	log.Info("resolve completed",
		"patterns", len(out.Results),
		"types", out.Types,
		"matched", event.Matched,
		"cached", out.Cached,
		"latency_ms", latency,
	)
	return &out, nil
}

func (s *Service) resolve(ctx context.Context, source string, req *proto.IndexRequest) (*proto.IndexResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, err.Error())
	}
	req = s.effective(req)
	resolver, err := s.resolver(req, source)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, err.Error())
	}

	types := req.Types
	if req.Vocabulary != "" {
		if s.vocab == nil {
			return nil, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable,
				"named vocabularies are not enabled on this server")
		}
		types, err = s.vocab.Load(ctx, req.Vocabulary)
		if err != nil {
			return nil, err
		}
	}

	compute := func(ctx context.Context) (*proto.IndexResponse, error) {
		res, err := resolver.Resolve(ctx, req.Patterns, types)
		if err != nil {
			return nil, err
		}
		return &proto.IndexResponse{Results: res.Entries(), Types: len(types)}, nil
	}
	if s.cache == nil {
		return compute(ctx)
	}
	resp, hit, err := s.cache.GetOrCompute(ctx, cache.Key(req, types), compute)
	if err != nil {
		return nil, err
	}
	if hit {
		out := *resp
		out.Cached = true
		return &out, nil
	}
	return resp, nil
}

// effective fills unset request settings from the server defaults so equal
// effective settings share a cache key.
func (s *Service) effective(req *proto.IndexRequest) *proto.IndexRequest {
	eff := *req
	if eff.Glob == nil {
		glob := s.defaults.Glob
		eff.Glob = &glob
	}
	if eff.Normalize == "" {
		eff.Normalize = s.defaults.Normalize
	}
	// Unknown forms are left for the resolver to reject.
	if form, err := affix.ParseForm(eff.Normalize); err == nil {
		eff.Normalize = string(form)
	}
	return &eff
}

func (s *Service) resolver(req *proto.IndexRequest, source string) (*typeindex.Resolver, error) {
	cfg := s.defaults
	cfg.Glob = req.GlobEnabled()
	cfg.Normalize = req.Normalize
	if req.Workers > 0 {
		cfg.Workers = min(req.Workers, s.maxWorkers)
	}
	opts := []typeindex.Option{typeindex.WithSource(source), typeindex.WithSpanLogging(s.logSpans)}
	if s.metrics != nil {
		opts = append(opts, typeindex.WithMetrics(s.metrics))
	}
	return typeindex.NewResolver(cfg, opts...)
}

func (s *Service) track(event analytics.ResolveEvent) {
	if s.events != nil {
		s.events.Track(event)
	}
}
