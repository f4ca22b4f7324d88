// Package resilience provides fault-tolerance primitives for the optional
// backends (Redis, Kafka, PostgreSQL): a circuit breaker, exponential-backoff
// retry, and a context-based timeout wrapper.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current phase of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls failure thresholds and recovery timing.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	// OnStateChange, if set, is called with the new state after every
	// transition. It runs with the breaker's lock held and must not call
	// back into the breaker.
	OnStateChange func(name string, from, to State)
}

func defaultCBConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// CircuitBreaker tracks consecutive failures and trips open when the
// threshold is reached. After ResetTimeout it turns half-open and lets a
// limited number of probe calls through.
type CircuitBreaker struct {
	name                string
	cfg                 CircuitBreakerConfig
	now                 func() time.Time
	mu                  sync.Mutex
	state               State
	logger              *slog.Logger
	consecutiveFailures int
	openedAt            time.Time
	halfOpenRequests    int
}

// NewCircuitBreaker creates a CircuitBreaker with the given config, filling
// in defaults for zero values.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	defaults := defaultCBConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaults.ResetTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = defaults.HalfOpenMaxRequests
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		state:  StateClosed,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn if the circuit allows it, recording success or failure.
// Cancellation of ctx is not counted as a backend failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		cb.release()
		return err
	}
	cb.afterRequest(err)
	return err
}

// State returns the current State of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateOpen:
		elapsed := cb.now().Sub(cb.openedAt)
		if elapsed < cb.cfg.ResetTimeout {
			return fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, cb.cfg.ResetTimeout-elapsed)
		}
		cb.transition(StateHalfOpen)
		cb.halfOpenRequests = 1
		return nil
	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.cfg.HalfOpenMaxRequests {
			return fmt.Errorf("%w: %s (half-open probe limit reached)", ErrCircuitOpen, cb.name)
		}
		cb.halfOpenRequests++
	}
	return nil
}

// release gives back a half-open probe slot without judging the backend.
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen && cb.halfOpenRequests > 0 {
		cb.halfOpenRequests--
	}
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err == nil {
		cb.consecutiveFailures = 0
		if cb.state == StateHalfOpen {
			cb.transition(StateClosed)
		}
		return
	}
	cb.consecutiveFailures++
	switch cb.state {
	case StateClosed:
		if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.logger.Warn("circuit opened",
				"consecutive_failures", cb.consecutiveFailures,
				"threshold", cb.cfg.FailureThreshold,
				"error", err,
			)
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.logger.Warn("circuit re-opened, probe failed", "error", err)
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateClosed:
		cb.halfOpenRequests = 0
		cb.logger.Info("circuit closed")
	case StateHalfOpen:
		cb.logger.Info("circuit half-open", "after", cb.cfg.ResetTimeout)
	}
	if cb.cfg.OnStateChange != nil && from != to {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}

// Reset forces the circuit breaker back to the Closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
	cb.transition(StateClosed)
}
