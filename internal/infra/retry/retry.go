// Package retry implements a small bounded-attempt executor with exponential
// backoff. It is generic over the result type and deliberately retries only
// "no result" outcomes: an error from the operation is a real failure and
// returns immediately.
package retry

import (
	"context"
	"time"
)

// Policy bounds one retried operation.
type Policy struct {
	// MaxAttempts is the total number of invocations, first try included.
	MaxAttempts int
	// BaseDelay is doubled after every empty attempt: the wait before
	// attempt n+2 is BaseDelay * 2^n.
	BaseDelay time.Duration
}

// DefaultPolicy matches the pipeline defaults: three attempts, 1.5s base.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 1500 * time.Millisecond}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

func (p Policy) delay(attempt int) time.Duration {
	return p.BaseDelay * (1 << attempt)
}

// Do runs op until it reports ok, an error, or the policy's attempts are
// exhausted. onRetry fires once per attempt beyond the first, before the
// backoff sleep; it is how callers hook a retry counter in. The backoff wait
// respects ctx cancellation.
func Do[T any](ctx context.Context, p Policy, onRetry func(), op func(ctx context.Context) (T, bool, error)) (T, bool, error) {
	var zero T
	p = p.normalized()

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry()
			}
			if err := sleep(ctx, p.delay(attempt-1)); err != nil {
				return zero, false, err
			}
		}

		v, ok, err := op(ctx)
		if err != nil {
			return zero, false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return zero, false, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
