package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRetryRunnerRetriesUntilSuccess(t *testing.T) {
	runner := NewRetryRunner(RetryPolicy{MaxAttempts: 5, Delay: 5 * time.Millisecond})

	var attempts atomic.Int32
	done := make(chan struct{})
	runner.Go("flaky", func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never succeeded")
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestRetryRunnerStopsOnNonRetryable(t *testing.T) {
	runner := NewRetryRunner(RetryPolicy{
		MaxAttempts: 5,
		Delay:       time.Millisecond,
		Retryable:   func(error) bool { return false },
	})

	var attempts atomic.Int32
	runner.Go("fatal", func(ctx context.Context) error {
		attempts.Add(1)
		return errors.New("semantic failure")
	})

	time.Sleep(50 * time.Millisecond)
	if got := attempts.Load(); got != 1 {
		t.Errorf("non-retryable error should stop after 1 attempt, got %d", got)
	}
}

func TestRetryRunnerExhaustsHorizon(t *testing.T) {
	runner := NewRetryRunner(RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond})

	var attempts atomic.Int32
	runner.Go("hopeless", func(ctx context.Context) error {
		attempts.Add(1)
		return errors.New("still down")
	})

	time.Sleep(100 * time.Millisecond)
	if got := attempts.Load(); got != 3 {
		t.Errorf("expected exactly MaxAttempts=3 attempts, got %d", got)
	}
}

func TestRetryRunnerNormalizesMaxAttempts(t *testing.T) {
	runner := NewRetryRunner(RetryPolicy{MaxAttempts: 0})

	var attempts atomic.Int32
	runner.Go("once", func(ctx context.Context) error {
		attempts.Add(1)
		return errors.New("nope")
	})

	time.Sleep(50 * time.Millisecond)
	if got := attempts.Load(); got != 1 {
		t.Errorf("zero MaxAttempts should mean a single attempt, got %d", got)
	}
}
