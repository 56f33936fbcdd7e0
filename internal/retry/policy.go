// Package retry provides the fixed-budget retry policy used by the
// acquisition and extraction stages. The policy is a plain value so backoff
// behaviour is unit-testable with an injected sleep function.
package retry

import (
	"context"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffUnit = 50 * time.Second
)

// Policy describes a bounded retry schedule. Attempt numbering is 1-based;
// Backoff(attempt) is the delay inserted after a failed attempt before the
// next one. No delay follows the terminal attempt.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Default returns the pipeline's standard policy: 3 attempts with
// 2^attempt * 50s backoff (100s after the first failure, 200s after the
// second).
func Default() Policy {
	return Policy{
		MaxAttempts: defaultMaxAttempts,
		Backoff:     ExponentialBackoff(defaultBackoffUnit),
		Sleep:       sleepContext,
	}
}

// ExponentialBackoff returns a backoff schedule of 2^attempt * unit.
func ExponentialBackoff(unit time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return time.Duration(1<<uint(attempt)) * unit
	}
}

// Do runs op until it succeeds, the attempt budget is exhausted, or the
// context is cancelled. The last error is returned on exhaustion; context
// cancellation aborts the schedule immediately.
func (p Policy) Do(ctx context.Context, op func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		if delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
