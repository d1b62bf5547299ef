package core

import (
	"context"
	"testing"
	"time"
)

func noWait(context.Context, time.Duration) error { return nil }

func TestRunWithRetry_RetriesTransientFailures(t *testing.T) {
	calls := 0
	result, err := RunWithRetry(context.Background(), RetryPolicy{MaxAttempts: 3, Wait: noWait}, func(context.Context, int) error {
		calls++
		if calls < 3 {
			return NewError(ErrorNetwork, "connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if result.Attempts != 3 || result.Exhausted {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRunWithRetry_StopsOnNonTransient(t *testing.T) {
	calls := 0
	result, err := RunWithRetry(context.Background(), RetryPolicy{MaxAttempts: 5, Wait: noWait}, func(context.Context, int) error {
		calls++
		return NewError(ErrorServer, "503")
	})
	if !IsKind(err, ErrorServer) || calls != 1 || result.Exhausted {
		t.Fatalf("expected immediate server error, calls=%d result=%+v err=%v", calls, result, err)
	}
}

func TestRunWithRetry_ReportsExhaustion(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{
		MaxAttempts: 3,
		Scheduler:   ExponentialBackoffScheduler{Initial: 10 * time.Millisecond, Max: 15 * time.Millisecond},
		Wait: func(_ context.Context, delay time.Duration) error {
			delays = append(delays, delay)
			return nil
		},
	}
	result, err := RunWithRetry(context.Background(), policy, func(context.Context, int) error {
		return NewError(ErrorNetwork, "timeout")
	})
	if !result.Exhausted || result.Attempts != 3 || !IsTransient(err) {
		t.Fatalf("expected exhaustion, got %+v err=%v", result, err)
	}
	if len(delays) != 2 || delays[0] != 10*time.Millisecond || delays[1] != 15*time.Millisecond {
		t.Fatalf("unexpected backoff delays %v", delays)
	}
}

func TestRunWithRetry_ContextCancelStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunWithRetry(ctx, RetryPolicy{MaxAttempts: 3, Scheduler: ExponentialBackoffScheduler{Initial: time.Second}}, func(context.Context, int) error {
		return NewError(ErrorNetwork, "offline")
	})
	if !IsKind(err, ErrorNetwork) {
		t.Fatalf("expected interrupted retry to surface a network error, got %v", err)
	}
}

func TestSyncConfig_RetryPolicy(t *testing.T) {
	policy := DefaultConfig().Sync.RetryPolicy()
	if policy.MaxAttempts != 3 {
		t.Fatalf("expected three attempts, got %d", policy.MaxAttempts)
	}
	if delay := policy.Scheduler.NextDelay(10); delay != 5*time.Second {
		t.Fatalf("expected capped delay, got %v", delay)
	}
}
