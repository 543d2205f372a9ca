package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{Base: time.Millisecond, Factor: 1, MaxAttempts: 3, JitterFrac: 0}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetry_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return ErrTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetry_NonTransientErrorStopsImmediately(t *testing.T) {
	calls := 0
	sentinel := errors.New("boom")
	err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call (no retry on non-transient error), got %d", calls)
	}
}

func TestRetry_ExhaustsMaxAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		return ErrTransient
	})
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts (MaxAttempts), got %d", calls)
	}
}

func TestRetry_ContextCancelledDuringBackoffStopsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{Base: 50 * time.Millisecond, Factor: 1, MaxAttempts: 5, JitterFrac: 0}

	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := Retry(ctx, policy, func(ctx context.Context) error {
		calls++
		return ErrTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls >= policy.MaxAttempts {
		t.Fatalf("expected cancellation to cut attempts short, got %d calls", calls)
	}
}

func TestRetryPolicy_DelayGrowsWithAttempt(t *testing.T) {
	p := RetryPolicy{Base: 100 * time.Millisecond, Factor: 2, MaxAttempts: 5, JitterFrac: 0}
	d1 := p.delay(1)
	d2 := p.delay(2)
	d3 := p.delay(3)
	if d1 != 100*time.Millisecond {
		t.Fatalf("expected 100ms for attempt 1, got %v", d1)
	}
	if d2 != 200*time.Millisecond {
		t.Fatalf("expected 200ms for attempt 2, got %v", d2)
	}
	if d3 != 400*time.Millisecond {
		t.Fatalf("expected 400ms for attempt 3, got %v", d3)
	}
}

func TestDefaultRetryPolicy_MatchesSpec(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.Base != 100*time.Millisecond || p.Factor != 2 || p.MaxAttempts != 5 || p.JitterFrac != 0.25 {
		t.Fatalf("unexpected default retry policy: %+v", p)
	}
}
