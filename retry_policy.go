package tarik

import (
	"time"

	internalbackoff "github.com/ambiyansyah-risyal/tarik/internal/backoff"
)

// RetryPolicy decides whether a failed attempt is retried and after what
// delay. It is consulted by the queue's task-completion handler, keeping the
// backoff math testable in isolation from scheduling.
type RetryPolicy interface {
	// ShouldRetry returns the delay before the next attempt and whether a
	// retry should happen at all. attempt is the zero-based index of the
	// attempt that just failed; maxAttempts is the retry budget after the
	// initial attempt, so a task may run maxAttempts+1 times in total.
	ShouldRetry(err error, attempt, maxAttempts int) (time.Duration, bool)
}

// DefaultRetryPolicy retries transient and throttled failures with
// exponential backoff and full jitter. Fatal, not-found, circuit-open and
// cancellation outcomes are never retried.
type DefaultRetryPolicy struct {
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
	backoffCalculator *internalbackoff.Calculator
}

// NewDefaultRetryPolicy creates the default policy. The jitter parameter is
// only meaningful for the exponential-jitter strategy; the default full
// jitter randomizes the whole window.
func NewDefaultRetryPolicy(initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) *DefaultRetryPolicy {
	return &DefaultRetryPolicy{
		initialBackoff:    initialBackoff,
		maxBackoff:        maxBackoff,
		backoffMultiplier: multiplier,
		jitter:            jitter,
		backoffCalculator: internalbackoff.GetFullJitterCalculator(),
	}
}

// NewDefaultRetryPolicyWithStrategy creates the default policy with a
// specific backoff strategy from internal/backoff.
func NewDefaultRetryPolicyWithStrategy(initialBackoff, maxBackoff time.Duration, multiplier, jitter float64, strategy internalbackoff.Strategy) *DefaultRetryPolicy {
	return &DefaultRetryPolicy{
		initialBackoff:    initialBackoff,
		maxBackoff:        maxBackoff,
		backoffMultiplier: multiplier,
		jitter:            jitter,
		backoffCalculator: internalbackoff.NewCalculator(strategy),
	}
}

// ShouldRetry implements the RetryPolicy interface.
func (p *DefaultRetryPolicy) ShouldRetry(err error, attempt, maxAttempts int) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	if attempt >= maxAttempts {
		return 0, false
	}
	if !IsTransient(err) {
		return 0, false
	}

	delay := p.backoffCalculator.Calculate(attempt, p.initialBackoff, p.maxBackoff, p.backoffMultiplier, p.jitter)
	return delay, true
}
