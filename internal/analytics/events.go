// Package analytics tracks resolve traffic: the service emits one event per
// request onto Kafka, and the aggregator folds the stream into summary
// statistics.
package analytics

import "time"

type EventType string

const (
	EventResolve      EventType = "resolve"
	EventResolveError EventType = "resolve_error"
)

// ResolveEvent describes one handled IndexRequest.
type ResolveEvent struct {
	Type       EventType `json:"type"`
	RequestID  string    `json:"request_id,omitempty"`
	Source     string    `json:"source"`
	Vocabulary string    `json:"vocabulary,omitempty"`
	Patterns   int       `json:"patterns"`
	Types      int       `json:"types"`
	Matched    int       `json:"matched"`
	// ZeroMatch lists patterns that matched nothing, capped at a few entries.
	ZeroMatch []string  `json:"zero_match,omitempty"`
	CacheHit  bool      `json:"cache_hit"`
	LatencyMs int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MaxZeroMatch bounds ResolveEvent.ZeroMatch.
const MaxZeroMatch = 10
