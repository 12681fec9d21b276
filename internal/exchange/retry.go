// retry.go implements the bounded retry policy for read-only venue queries.
//
// Two modes mirror how callers want failures handled: QueryWithDefault
// swallows exhaustion and hands back a fallback value, QueryReraise surfaces
// the last error. Semantic errors (rejections, safety violations, config
// problems) are never retried; only transient failures are.
package exchange

import (
	"context"
	"errors"
	"time"
)

const (
	queryAttempts   = 3
	queryRetryDelay = 500 * time.Millisecond
)

// retryable reports whether an error is worth another attempt. Order
// rejections, safety violations, and config errors are deterministic and
// retried at a higher level or not at all.
func retryable(err error) bool {
	if errors.Is(err, ErrOrderRejected) || errors.Is(err, ErrSafety) || errors.Is(err, ErrConfig) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// QueryWithDefault runs fn up to queryAttempts times and returns def when
// every attempt fails. The last error is returned alongside for logging.
func QueryWithDefault[T any](ctx context.Context, def T, fn func(context.Context) (T, error)) (T, error) {
	v, err := query(ctx, fn)
	if err != nil {
		return def, err
	}
	return v, nil
}

// QueryReraise runs fn up to queryAttempts times and surfaces the last error.
func QueryReraise[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	return query(ctx, fn)
}

func query[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < queryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(queryRetryDelay):
			}
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !retryable(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}
