package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/errors"
)

var errBackend = errors.New("backend down")

func fail(context.Context) error { return errBackend }
func succeed(context.Context) error { return nil }

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("redis", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		OnStateChange:    func(_ string, _, to State) { transitions = append(transitions, to) },
	})
	clock := time.Now()
	cb.now = func() time.Time { return clock }
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBackend)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBackend)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	clock = clock.Add(time.Minute)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreakerHalfOpenProbeFails(t *testing.T) {
	cb := NewCircuitBreaker("kafka", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	clock := time.Now()
	cb.now = func() time.Time { return clock }
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	clock = clock.Add(time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBackend)
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker("redis", CircuitBreakerConfig{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "op", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return errBackend
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhausted(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "op", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return errBackend
	})
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, 2, attempts)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "op", RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return Permanent(errBackend)
	})
	assert.Equal(t, errBackend, err)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, Permanent(nil))
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Retry(ctx, "op", RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func() error {
		cancel()
		return errBackend
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComputeDelayCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second}.withDefaults()
	assert.LessOrEqual(t, computeDelay(10, cfg), 3*time.Second)
	d := computeDelay(1, cfg)
	assert.InDelta(t, float64(time.Second), float64(d), float64(110*time.Millisecond))
}

func TestWithTimeout(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, WithTimeout(ctx, time.Second, "fast", succeed))
	require.NoError(t, WithTimeout(ctx, 0, "unbounded", succeed))

	err := WithTimeout(ctx, 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}
