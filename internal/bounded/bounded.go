// Package bounded runs collaborator calls under a hard deadline.
package bounded

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-sniper/internal/domain"
)

// ErrTimeout is returned when the deadline fires before the call returns.
// It wraps domain.ErrTransient.
var ErrTimeout = domain.Transient(errors.New("call timed out"))

// Call runs fn with a context bounded by timeout and returns as soon as either
// fn returns or the deadline fires, even if fn ignores its context.
// A timeout of zero or less only inherits the parent's deadline.
func Call[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return zero, ctx.Err()
	}
}
