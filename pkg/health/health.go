// Package health runs dependency checks for the resolve daemon's readiness
// probe. Required dependencies report down when they fail; optional ones
// (the result cache, the analytics pipeline) only degrade the report.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// Pinger is satisfied by the postgres, redis and kafka clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ComponentHealth holds the result of a single component check.
type ComponentHealth struct {
	Status   Status `json:"status"`
	Required bool   `json:"required"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

type registration struct {
	check    Check
	required bool
}

// Checker holds the registered checks and runs them concurrently.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]registration
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker creates a Checker whose individual checks are bounded by
// timeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{
		checks:  make(map[string]registration),
		timeout: timeout,
		logger:  slog.Default().With("component", "health"),
	}
}

// Require registers a check whose failure takes the service out of rotation.
func (c *Checker) Require(name string, check Check) {
	c.register(name, check, true)
}

// Optional registers a check whose failure only degrades the report.
func (c *Checker) Optional(name string, check Check) {
	c.register(name, check, false)
}

func (c *Checker) register(name string, check Check, required bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registration{check: check, required: required}
}

// Ping adapts a Pinger to a Check.
func Ping(p Pinger) Check {
	return p.Ping
}

// WritableDir checks that segments can be written to dir.
func WritableDir(dir string) Check {
	return func(ctx context.Context) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return fmt.Errorf("%s is not writable: %w", filepath.Clean(dir), err)
		}
		name := f.Name()
		f.Close()
		return os.Remove(name)
	}
}

// Run executes every check and folds the results: any failed required check
// makes the report down, any failed optional check makes it degraded.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]registration, len(c.checks))
	for name, reg := range c.checks {
		checks[name] = reg
	}
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, reg := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := c.runOne(ctx, name, reg)
			mu.Lock()
			report.Components[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, comp := range report.Components {
		switch {
		case comp.Status == StatusUp:
		case comp.Required:
			report.Status = StatusDown
		case report.Status == StatusUp:
			report.Status = StatusDegraded
		}
	}
	return report
}

func (c *Checker) runOne(ctx context.Context, name string, reg registration) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := reg.check(ctx)
	result := ComponentHealth{
		Status:   StatusUp,
		Required: reg.required,
		Latency:  time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		result.Status = StatusDown
		result.Message = err.Error()
		c.logger.Warn("health check failed", "check", name, "required", reg.required, "error", err)
	}
	return result
}

// LiveHandler answers liveness probes. It never touches dependencies.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers readiness probes: 200 unless a required check failed.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}
