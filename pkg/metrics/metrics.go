// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ResolvesTotal        *prometheus.CounterVec
	PhaseLatency         *prometheus.HistogramVec
	ConfigsPerResolve    prometheus.Histogram
	IndexKeys            prometheus.Histogram
	PatternsTotal        *prometheus.CounterVec
	BuildWorkers         prometheus.Gauge
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all metrics and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ResolvesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "typeindex_resolves_total",
				Help: "Total pattern resolutions by entry point and outcome.",
			},
			[]string{"source", "status"},
		),
		PhaseLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "typeindex_phase_duration_seconds",
				Help:    "Duration of the parse, build and lookup phases in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"phase"},
		),
		ConfigsPerResolve: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "typeindex_configs_per_resolve",
				Help:    "Number of distinct index configurations built per resolution.",
				Buckets: []float64{1, 2, 3, 5, 10, 25, 50, 100},
			},
		),
		IndexKeys: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "typeindex_index_keys",
				Help:    "Number of distinct keys in each built index.",
				Buckets: prometheus.ExponentialBuckets(10, 4, 10),
			},
		),
		PatternsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "typeindex_patterns_total",
				Help: "Patterns resolved, by whether they matched any type.",
			},
			[]string{"result"},
		),
		BuildWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "typeindex_build_workers",
				Help: "Worker pool size used by the most recent index build.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ResolvesTotal,
		m.PhaseLatency,
		m.ConfigsPerResolve,
		m.IndexKeys,
		m.PatternsTotal,
		m.BuildWorkers,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
