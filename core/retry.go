package core

import (
	"context"
	"time"
)

const (
	defaultRetryMaxAttempts    = 3
	defaultRetryInitialBackoff = 250 * time.Millisecond
	defaultRetryMaxBackoff     = 5 * time.Second
)

type BackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultRetryInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultRetryMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// RetryPolicy bounds how often a transient failure is retried.
type RetryPolicy struct {
	MaxAttempts int
	Scheduler   BackoffScheduler
	// Wait overrides the delay between attempts; tests use it to skip sleeping.
	Wait func(ctx context.Context, delay time.Duration) error
	// Retryable decides whether err warrants another attempt. IsTransient
	// is used when nil.
	Retryable func(err error) bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultRetryMaxAttempts,
		Scheduler: ExponentialBackoffScheduler{
			Initial: defaultRetryInitialBackoff,
			Max:     defaultRetryMaxBackoff,
		},
	}
}

type RetryResult struct {
	Attempts  int
	Exhausted bool
}

// RunWithRetry calls fn until it succeeds, fails with a non-retryable error,
// or the attempt budget runs out. Exhausted is set only in the last case.
func RunWithRetry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context, attempt int) error) (RetryResult, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultRetryMaxAttempts
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	wait := policy.Wait
	if wait == nil {
		wait = waitWithContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return RetryResult{Attempts: attempt}, nil
		}
		lastErr = err
		if !retryable(err) {
			return RetryResult{Attempts: attempt}, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := defaultRetryInitialBackoff
		if policy.Scheduler != nil {
			delay = policy.Scheduler.NextDelay(attempt)
		}
		if waitErr := wait(ctx, delay); waitErr != nil {
			return RetryResult{Attempts: attempt}, WrapError(waitErr, ErrorNetwork, "core: retry interrupted")
		}
	}
	return RetryResult{Attempts: maxAttempts, Exhausted: true}, lastErr
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
