/**
 * @description
 * This file implements the bounded retry machinery used by ledger sync. A
 * task that fails at the network level is re-scheduled fire-and-forget with a
 * fixed delay, up to a maximum number of attempts; semantic failures
 * (classified by the policy's Retryable func) are never retried because the
 * task has already recorded a terminal outcome. Exhausting the retry horizon
 * leaves the transaction in its last non-terminal status for manual
 * reconciliation; exhaustion alone never marks anything Failed.
 */

package app

import (
	"context"
	"log"
	"time"
)

// RetryPolicy controls how fire-and-forget tasks are retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
	// Retryable classifies an attempt error. A nil func retries everything.
	Retryable func(error) bool
}

// RetryRunner executes tasks asynchronously under a RetryPolicy. Cancellation
// is not supported once a task has been scheduled.
type RetryRunner struct {
	policy         RetryPolicy
	attemptTimeout time.Duration
}

// NewRetryRunner creates a runner with a per-attempt timeout of one minute.
func NewRetryRunner(policy RetryPolicy) *RetryRunner {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &RetryRunner{policy: policy, attemptTimeout: time.Minute}
}

// Go starts fn on a new goroutine. The caller returns immediately; failures
// are handled entirely by the retry schedule.
func (r *RetryRunner) Go(name string, fn func(context.Context) error) {
	go r.attempt(name, fn, 1)
}

func (r *RetryRunner) attempt(name string, fn func(context.Context) error, attempt int) {
	ctx, cancel := context.WithTimeout(context.Background(), r.attemptTimeout)
	err := fn(ctx)
	cancel()

	if err == nil {
		return
	}
	if r.policy.Retryable != nil && !r.policy.Retryable(err) {
		log.Printf("level=error component=retry task=%q attempt=%d msg=\"non-retryable failure\" err=%v", name, attempt, err)
		return
	}
	if attempt >= r.policy.MaxAttempts {
		log.Printf("level=error component=retry task=%q attempt=%d msg=\"retry horizon exhausted; leaving state for reconciliation\" err=%v", name, attempt, err)
		return
	}

	log.Printf("level=warn component=retry task=%q attempt=%d delay=%s msg=\"scheduling retry\" err=%v", name, attempt, r.policy.Delay, err)
	time.AfterFunc(r.policy.Delay, func() {
		r.attempt(name, fn, attempt+1)
	})
}
