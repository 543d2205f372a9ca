package store

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy is the exponential-backoff-with-jitter policy shared by the
// store and the ingest pipeline's batch commits. Mirrors the
// BackoffConfig{Base, Max, Jitter} shape the teacher config package uses
// for provider backoff.
type RetryPolicy struct {
	Base        time.Duration
	Factor      float64
	MaxAttempts int
	JitterFrac  float64
}

// DefaultRetryPolicy matches spec §4.1: base 100ms, factor 2, max 5
// attempts, jitter ±25%.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:        100 * time.Millisecond,
		Factor:      2,
		MaxAttempts: 5,
		JitterFrac:  0.25,
	}
}

// delay returns the backoff delay before attempt n (1-indexed).
func (p RetryPolicy) delay(n int) time.Duration {
	base := float64(p.Base) * pow(p.Factor, n-1)
	jitter := 1 + (rand.Float64()*2-1)*p.JitterFrac
	return time.Duration(base * jitter)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// Retry runs fn until it succeeds, a non-transient error is returned, or
// MaxAttempts is exhausted. Only errors wrapping ErrTransient are retried;
// every other error (including ErrDuplicate, ErrSchema) is returned
// immediately without retrying, per the propagation policy in spec §7.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, ErrTransient) {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.delay(attempt)):
		}
	}
	return lastErr
}
