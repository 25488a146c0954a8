package tarik

import (
	"context"
	"time"
)

// Item is a single unit of content fetched from the remote collaborator.
// Data holds the provider-specific payload; the pipeline never inspects it.
type Item struct {
	ID     string `json:"id"`
	Source string `json:"source,omitempty"`
	Data   []byte `json:"data,omitempty"`
}

// ListResult is one page of a paginated listing. An empty NextCursor means
// the listing is exhausted.
type ListResult struct {
	Items      []Item `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Remote is the abstract remote collaborator the pipeline collects from.
// Implementations signal failure classes through the error constructors
// (NewTransientError, NewThrottledError, NewFatalError, NewNotFoundError);
// any other non-nil error is treated as transient.
type Remote interface {
	// ListItems returns one page of items for a source starting at cursor.
	ListItems(ctx context.Context, source, cursor string, pageSize int) (*ListResult, error)

	// FetchItem returns a single item by id.
	FetchItem(ctx context.Context, id string) (*Item, error)
}

// Priority orders tasks in the request queue; higher is more urgent.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 9
)

// TaskStatus is the lifecycle state of a queued task.
type TaskStatus int32

const (
	TaskPending TaskStatus = iota
	TaskInFlight
	TaskSucceeded
	TaskFailed
	TaskCancelled
)

// String returns the human-readable status name.
func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "Pending"
	case TaskInFlight:
		return "InFlight"
	case TaskSucceeded:
		return "Succeeded"
	case TaskFailed:
		return "Failed"
	case TaskCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// TaskFunc is the unit of work a queue worker executes against the remote
// collaborator. It must respect context cancellation.
type TaskFunc func(ctx context.Context) (interface{}, error)

// TaskSpec describes a task submitted to the request queue.
type TaskSpec struct {
	// Endpoint is the logical remote endpoint key used for rate limiting
	// and circuit breaking. Tasks on different endpoints are isolated.
	Endpoint string

	// Priority orders the task relative to other pending work.
	Priority Priority

	// MaxAttempts is the retry budget after the initial attempt, so the
	// task runs at most MaxAttempts+1 times. Zero uses the queue default.
	MaxAttempts int

	// Run performs the remote call.
	Run TaskFunc
}

// CollectOptions tunes a Collect or CollectBulk call.
type CollectOptions struct {
	// MaxItems stops collection once this many items have been gathered.
	// Zero means no limit (collect until the listing is exhausted).
	MaxItems int

	// PageSize is the page size requested from the remote. Zero uses the
	// client default.
	PageSize int

	// Priority for the underlying queue tasks. Zero means PriorityNormal.
	Priority Priority

	// BypassCache skips the response cache for this call.
	BypassCache bool
}

// CollectResult is the outcome of a paginated collection for one source.
type CollectResult struct {
	Source string
	Items  []Item
	Pages  int
}

// SourceResult is the per-source outcome of a bulk collection. Exactly one
// of Result and Err is set.
type SourceResult struct {
	Source string
	Result *CollectResult
	Err    error
}

// StreamOptions tunes a StreamSince call.
type StreamOptions struct {
	// Interval is the delay between polls. Zero uses the client default.
	Interval time.Duration

	// PageSize is the page size per poll. Zero uses the client default.
	PageSize int
}

// StreamEvent is one element of a streaming collection. When Err is nil the
// event carries an Item and the cursor observed after it; callers persist
// Cursor to make the stream restartable. Delivery is at-least-once per poll.
type StreamEvent struct {
	Item   Item
	Cursor string
	Err    error
}

// Option configures a Client.
type Option func(*Client)
