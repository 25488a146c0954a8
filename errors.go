package tarik

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error type names used in the Type field of *Error.
const (
	ErrorTypeTransient        = "Transient"
	ErrorTypeThrottled        = "Throttled"
	ErrorTypeFatal            = "Fatal"
	ErrorTypeNotFound         = "NotFound"
	ErrorTypeCircuitOpen      = "CircuitOpen"
	ErrorTypeQueueFull        = "QueueFull"
	ErrorTypeCancelled        = "Cancelled"
	ErrorTypeCollectionFailed = "CollectionFailed"
	ErrorTypeCache            = "Cache"
	ErrorTypeValidation       = "Validation"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a task
	// without contacting the remote collaborator.
	ErrCircuitOpen = errors.New("tarik: circuit open")

	// ErrQueueFull is returned synchronously by Enqueue when the queue is
	// at capacity.
	ErrQueueFull = errors.New("tarik: queue full")

	// ErrTaskCancelled is the terminal error of a cancelled task.
	ErrTaskCancelled = errors.New("tarik: task cancelled")

	// ErrCollectionFailed is the terminal error of a task that exhausted
	// its retry budget on transient failures.
	ErrCollectionFailed = errors.New("tarik: collection failed")

	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("tarik: queue closed")
)

// Error carries the pipeline's failure taxonomy along with diagnostic
// context. Remote implementations create them via the New*Error constructors;
// the queue attaches attempt bookkeeping before surfacing them to callers.
type Error struct {
	Type        string
	Message     string
	Endpoint    string
	Attempt     int
	MaxAttempts int
	Timestamp   time.Time
	Duration    time.Duration
	Cause       error
}

// Error implements error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.Endpoint != "" {
		msg = fmt.Sprintf("[%s] %s", e.Endpoint, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxAttempts)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is, and maps well-known types onto the
// package sentinels so callers can test either form.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrCircuitOpen:
		return e.Type == ErrorTypeCircuitOpen
	case ErrQueueFull:
		return e.Type == ErrorTypeQueueFull
	case ErrTaskCancelled:
		return e.Type == ErrorTypeCancelled
	case ErrCollectionFailed:
		return e.Type == ErrorTypeCollectionFailed
	}
	if targetErr, ok := target.(*Error); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *Error) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxAttempts)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// NewTransientError marks a failure that may succeed on retry (network
// errors, timeouts, 5xx-equivalent responses).
func NewTransientError(endpoint string, cause error) *Error {
	return &Error{Type: ErrorTypeTransient, Message: "transient remote failure", Endpoint: endpoint, Timestamp: time.Now(), Cause: cause}
}

// NewThrottledError marks an explicit over-limit signal from the remote. It
// is retried like a transient failure and additionally feeds rate limiter
// backoff.
func NewThrottledError(endpoint string, cause error) *Error {
	return &Error{Type: ErrorTypeThrottled, Message: "remote throttled the request", Endpoint: endpoint, Timestamp: time.Now(), Cause: cause}
}

// NewFatalError marks a failure that will not succeed on retry (auth,
// permission, malformed request). It is surfaced immediately and does not
// count against endpoint health.
func NewFatalError(endpoint string, cause error) *Error {
	return &Error{Type: ErrorTypeFatal, Message: "fatal remote failure", Endpoint: endpoint, Timestamp: time.Now(), Cause: cause}
}

// NewNotFoundError marks a lookup whose subject does not exist. The pipeline
// treats it as a successful empty result, not a failure.
func NewNotFoundError(endpoint string) *Error {
	return &Error{Type: ErrorTypeNotFound, Message: "not found", Endpoint: endpoint, Timestamp: time.Now()}
}

// IsTransient determines if an error represents a transient failure that
// might succeed on retry. Timeouts count as transient; so does any non-nil
// error that carries no classification at all, which is the safe default for
// remote implementations that return raw errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Type {
		case ErrorTypeTransient, ErrorTypeThrottled:
			return true
		default:
			return false
		}
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// IsThrottled reports whether err is an explicit throttle signal.
func IsThrottled(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == ErrorTypeThrottled
}

// IsFatal reports whether err is a non-retryable remote failure.
func IsFatal(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == ErrorTypeFatal
}

// IsNotFound reports whether err marks a missing subject.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == ErrorTypeNotFound
}
