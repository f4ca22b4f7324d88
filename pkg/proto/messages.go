// Package proto defines the message types exchanged by the resolve service
// over HTTP, the JSON-over-TCP RPC layer (see pkg/rpc) and Kafka.
package proto

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/typeindex"
)

// Method names registered on the RPC server.
const (
	MethodResolve = "TypeIndex.Resolve"
	MethodHealth  = "TypeIndex.Health"
)

// IndexRequest asks for patterns to be resolved against either an inline
// list of types or a stored vocabulary.
type IndexRequest struct {
	RequestID  string   `json:"request_id,omitempty"`
	Patterns   []string `json:"patterns"`
	Types      []string `json:"types,omitempty"`
	Vocabulary string   `json:"vocabulary,omitempty"`
	// Glob defaults to true when omitted.
	Glob *bool `json:"glob,omitempty"`
	// Workers of -1 or 0 use the server default.
	Workers   int    `json:"workers,omitempty"`
	Normalize string `json:"normalize,omitempty"`
}

// Validate rejects requests the resolver cannot serve.
func (r *IndexRequest) Validate() error {
	if len(r.Types) > 0 && r.Vocabulary != "" {
		return fmt.Errorf("types and vocabulary are mutually exclusive")
	}
	if r.Workers < -1 {
		return fmt.Errorf("workers must be -1, 0 or positive, got %d", r.Workers)
	}
	return nil
}

// GlobEnabled returns the effective glob setting.
func (r *IndexRequest) GlobEnabled() bool {
	return r.Glob == nil || *r.Glob
}

// IndexResponse carries one entry per requested pattern, in request order.
type IndexResponse struct {
	RequestID string            `json:"request_id,omitempty"`
	Results   []typeindex.Match `json:"results"`
	Types     int               `json:"types"`
	Cached    bool              `json:"cached"`
	LatencyMs int64             `json:"latency_ms"`
	Error     string            `json:"error,omitempty"`
}

// HealthCheckResponse mirrors the gRPC health check status values.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING
}
