package handler

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/middleware"
)

// RouterDeps are the pieces the router wires together. Metrics, Analytics
// and Limiter may be nil.
type RouterDeps struct {
	Handler   *Handler
	Health    *health.Checker
	Metrics   *metrics.Metrics
	Analytics *analytics.Handler
	Limiter   *ratelimit.Limiter
}

// NewRouter builds the HTTP API.
//
//	POST /api/v1/index            resolve patterns
//	GET  /api/v1/analytics        aggregated resolve statistics
//	GET  /api/v1/cache/stats      cache hit/miss counters
//	POST /api/v1/cache/invalidate drop cached results
//	GET  /health/live             liveness
//	GET  /health/ready            readiness
//
// Middleware, outermost first: RequestID, Metrics, CORS, RateLimit, Timeout.
func NewRouter(cfg config.ServerConfig, deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", deps.Health.LiveHandler())
	mux.HandleFunc("GET /health/ready", deps.Health.ReadyHandler())

	mux.HandleFunc("POST /api/v1/index", deps.Handler.Index)
	mux.HandleFunc("GET /api/v1/cache/stats", deps.Handler.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", deps.Handler.CacheInvalidate)
	if deps.Analytics != nil {
		mux.HandleFunc("GET /api/v1/analytics", deps.Analytics.Stats)
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.RequestTimeout)(chain)
	chain = middleware.RateLimit(deps.Limiter, cfg.RateLimit)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins))(chain)
	if deps.Metrics != nil {
		chain = middleware.Metrics(deps.Metrics)(chain)
	}
	chain = middleware.RequestID(chain)
	return chain
}
