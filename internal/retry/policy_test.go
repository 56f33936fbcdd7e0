package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultBackoffSchedule(t *testing.T) {
	policy := Default()
	if policy.MaxAttempts != 3 {
		t.Fatalf("MaxAttempts = %d, want 3", policy.MaxAttempts)
	}
	if got := policy.Backoff(1); got != 100*time.Second {
		t.Fatalf("Backoff(1) = %s, want 100s", got)
	}
	if got := policy.Backoff(2); got != 200*time.Second {
		t.Fatalf("Backoff(2) = %s, want 200s", got)
	}
}

func TestDoExhaustsBudgetWithRecordedSleeps(t *testing.T) {
	var slept []time.Duration
	policy := Policy{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff(50 * time.Second),
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}

	attempts := 0
	failure := errors.New("endpoint unavailable")
	err := policy.Do(context.Background(), func(int) error {
		attempts++
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected terminal failure, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if len(slept) != 2 || slept[0] != 100*time.Second || slept[1] != 200*time.Second {
		t.Fatalf("sleep schedule = %v, want [100s 200s]", slept)
	}
}

func TestDoStopsOnSuccess(t *testing.T) {
	policy := Policy{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff(50 * time.Second),
		Sleep: func(context.Context, time.Duration) error {
			return nil
		},
	}

	attempts := 0
	err := policy.Do(context.Background(), func(attempt int) error {
		attempts++
		if attempt < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff(time.Millisecond),
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	err := policy.Do(ctx, func(int) error { return errors.New("failing") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
