package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/errors"
)

// WithTimeout runs fn with a context cancelled after timeout. fn keeps
// running in the background if it ignores its context; the caller gets an
// error wrapping ErrTimeout as soon as the limit passes. A timeout of zero
// or less runs fn directly.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w (limit: %v)", name, apperrors.ErrTimeout, timeout)
	}
}
