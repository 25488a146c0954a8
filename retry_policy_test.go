package tarik

import (
	"errors"
	"testing"
	"time"

	internalbackoff "github.com/ambiyansyah-risyal/tarik/internal/backoff"
)

func TestRetryPolicyNilError(t *testing.T) {
	p := NewDefaultRetryPolicy(time.Second, time.Minute, 2.0, 0)

	if _, retry := p.ShouldRetry(nil, 0, 3); retry {
		t.Error("ShouldRetry(nil) = true, want false")
	}
}

func TestRetryPolicyExhaustedBudget(t *testing.T) {
	p := NewDefaultRetryPolicy(time.Second, time.Minute, 2.0, 0)
	err := NewTransientError("ep", errors.New("down"))

	// maxAttempts is the retry budget after the initial attempt: attempts
	// 0, 1 and 2 may each be followed by a retry, attempt 3 may not.
	if _, retry := p.ShouldRetry(err, 2, 3); !retry {
		t.Error("ShouldRetry(attempt=2, maxAttempts=3) = false, want the last retry granted")
	}
	if _, retry := p.ShouldRetry(err, 3, 3); retry {
		t.Error("ShouldRetry(attempt=3, maxAttempts=3) = true, want the budget exhausted")
	}
	if _, retry := p.ShouldRetry(err, 5, 3); retry {
		t.Error("ShouldRetry() = true past the budget, want false")
	}
}

func TestRetryPolicyRetriesTransient(t *testing.T) {
	p := NewDefaultRetryPolicy(time.Second, time.Minute, 2.0, 0)
	err := NewTransientError("ep", errors.New("down"))

	delay, retry := p.ShouldRetry(err, 0, 3)
	if !retry {
		t.Fatal("ShouldRetry() = false for transient error with budget left, want true")
	}
	if delay < 0 || delay > time.Second {
		t.Errorf("delay = %v for attempt 0, want within [0, 1s] under full jitter", delay)
	}
}

func TestRetryPolicyRetriesThrottled(t *testing.T) {
	p := NewDefaultRetryPolicy(time.Second, time.Minute, 2.0, 0)
	err := NewThrottledError("ep", errors.New("429"))

	if _, retry := p.ShouldRetry(err, 0, 3); !retry {
		t.Error("ShouldRetry() = false for throttled error, want true")
	}
}

func TestRetryPolicyNeverRetriesFatal(t *testing.T) {
	p := NewDefaultRetryPolicy(time.Second, time.Minute, 2.0, 0)

	for _, err := range []error{
		NewFatalError("ep", errors.New("403")),
		NewNotFoundError("ep"),
		&Error{Type: ErrorTypeCircuitOpen, Message: "open"},
		&Error{Type: ErrorTypeCancelled, Message: "cancelled"},
	} {
		if _, retry := p.ShouldRetry(err, 0, 5); retry {
			t.Errorf("ShouldRetry(%v) = true, want false", err)
		}
	}
}

func TestRetryPolicyDelayCeilingGrows(t *testing.T) {
	p := NewDefaultRetryPolicyWithStrategy(time.Second, time.Minute, 2.0, 0, internalbackoff.ExponentialJitterStrategy{})
	err := NewTransientError("ep", errors.New("down"))

	// With zero jitter the exponential strategy is deterministic.
	var prev time.Duration
	for attempt := 0; attempt < 5; attempt++ {
		delay, retry := p.ShouldRetry(err, attempt, 10)
		if !retry {
			t.Fatalf("ShouldRetry() = false at attempt %d, want true", attempt)
		}
		if delay < prev {
			t.Errorf("delay shrank from %v to %v at attempt %d", prev, delay, attempt)
		}
		prev = delay
	}

	if delay, _ := p.ShouldRetry(err, 30, 100); delay != time.Minute {
		t.Errorf("delay = %v at large attempt, want the %v cap", delay, time.Minute)
	}
}

func TestRetryPolicyFullJitterBounded(t *testing.T) {
	p := NewDefaultRetryPolicy(100*time.Millisecond, time.Second, 2.0, 0)
	err := NewTransientError("ep", errors.New("down"))

	for i := 0; i < 100; i++ {
		delay, _ := p.ShouldRetry(err, 3, 10)
		// Ceiling at attempt 3 is 800ms.
		if delay < 0 || delay > 800*time.Millisecond {
			t.Fatalf("delay = %v, want within [0, 800ms]", delay)
		}
	}
}
