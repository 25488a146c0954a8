package tarik

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Logical endpoint keys. Rate limiting and circuit breaking are isolated per
// endpoint, so a degraded listing endpoint does not block item fetches.
const (
	endpointList  = "items.list"
	endpointFetch = "items.fetch"
)

// Client is the collection pipeline's front door. It owns the rate limiter,
// circuit breaker, request queue and response cache and coordinates them for
// paginated, bulk and streaming collection against a Remote.
//
// A Client is safe for concurrent use. Create it with New and release its
// workers with Close.
type Client struct {
	remote Remote

	limiter *RateLimiter
	breaker *CircuitBreaker
	queue   *RequestQueue
	cache   *responseCache

	logger  Logger
	metrics *MetricsCollector

	requestsPerMinute int
	burstCapacity     int
	backoffBase       time.Duration
	backoffMax        time.Duration

	maxAttempts    int
	attemptTimeout time.Duration
	queueCapacity  int
	workerCount    int

	store                Cache
	cacheTTL             time.Duration
	compressionThreshold int

	breakerConfig CircuitBreakerConfig
	retryPolicy   RetryPolicy

	retryInitialBackoff time.Duration
	retryMaxBackoff     time.Duration
	retryMultiplier     float64

	pageSize       int
	streamInterval time.Duration

	validationErrors []string
}

// New creates a Client for the given remote with sensible defaults, applying
// any options. Use IsValid and ValidationError to inspect configuration
// problems; an invalid Client still works with the offending values clamped
// to defaults where possible.
func New(remote Remote, opts ...Option) *Client {
	c := &Client{
		remote:            remote,
		requestsPerMinute: 60,
		burstCapacity:     5,
		backoffBase:       time.Second,
		backoffMax:        2 * time.Minute,

		maxAttempts:    3,
		attemptTimeout: 30 * time.Second,
		queueCapacity:  1024,
		workerCount:    4,

		cacheTTL:             5 * time.Minute,
		compressionThreshold: 1024,

		breakerConfig: CircuitBreakerConfig{
			FailureThreshold: 5,
			OpenDuration:     60 * time.Second,
		},

		retryInitialBackoff: 500 * time.Millisecond,
		retryMaxBackoff:     30 * time.Second,
		retryMultiplier:     2.0,

		pageSize:       100,
		streamInterval: 10 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}
	c.validationErrors = c.collectValidationErrors()

	if c.store == nil {
		c.store = NewInMemoryCache()
	}
	if c.retryPolicy == nil {
		c.retryPolicy = NewDefaultRetryPolicy(c.retryInitialBackoff, c.retryMaxBackoff, c.retryMultiplier, 0)
	}

	c.limiter = NewRateLimiter(RateLimiterConfig{
		RequestsPerMinute: float64(c.requestsPerMinute),
		BurstCapacity:     c.burstCapacity,
		BackoffBase:       c.backoffBase,
		BackoffMax:        c.backoffMax,
	})
	c.breaker = NewCircuitBreaker(c.breakerConfig)
	c.queue = NewRequestQueue(RequestQueueConfig{
		Capacity:       c.queueCapacity,
		WorkerCount:    c.workerCount,
		MaxAttempts:    c.maxAttempts,
		AttemptTimeout: c.attemptTimeout,
	}, c.limiter, c.breaker, c.retryPolicy, c.logger, c.metrics)
	c.cache = newResponseCache(c.store, c.cacheTTL, c.compressionThreshold, c.logger, c.metrics)

	return c
}

// IsValid reports whether the configuration passed validation.
func (c *Client) IsValid() bool {
	return len(c.validationErrors) == 0
}

// ValidationError returns all configuration problems joined into a single
// error, or nil when the configuration is valid.
func (c *Client) ValidationError() error {
	if len(c.validationErrors) == 0 {
		return nil
	}
	return &Error{
		Type:      ErrorTypeValidation,
		Message:   "invalid configuration: " + strings.Join(c.validationErrors, "; "),
		Timestamp: time.Now(),
	}
}

// Metrics returns the client's metrics collector, nil when metrics are
// disabled.
func (c *Client) Metrics() *MetricsCollector {
	return c.metrics
}

// Queue returns the client's request queue for direct task submission.
func (c *Client) Queue() *RequestQueue {
	return c.queue
}

// Close stops the worker pool and cancels all pending tasks. In-flight
// collection calls fail with a cancellation error.
func (c *Client) Close() {
	c.queue.Close()
}

// Collect walks a source's paginated listing and gathers items until the
// listing is exhausted or opts.MaxItems is reached. Pages are served from the
// cache when fresh; all remote calls go through the queue at opts.Priority.
func (c *Client) Collect(ctx context.Context, source string, opts CollectOptions) (*CollectResult, error) {
	if source == "" {
		return nil, &Error{Type: ErrorTypeValidation, Message: "source must not be empty", Timestamp: time.Now()}
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = c.pageSize
	}
	priority := opts.Priority
	if priority == 0 {
		priority = PriorityNormal
	}

	result := &CollectResult{Source: source}
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := c.listPage(ctx, source, cursor, pageSize, priority, opts.BypassCache)
		if err != nil {
			return nil, err
		}
		result.Pages++
		result.Items = append(result.Items, page.Items...)

		if opts.MaxItems > 0 && len(result.Items) >= opts.MaxItems {
			result.Items = result.Items[:opts.MaxItems]
			break
		}
		if page.NextCursor == "" || page.NextCursor == cursor {
			break
		}
		cursor = page.NextCursor
	}
	return result, nil
}

// CollectBulk collects several sources concurrently, one Collect per source.
// It never fails as a whole: each source's outcome is reported independently
// in the returned map, keyed by source.
func (c *Client) CollectBulk(ctx context.Context, sources []string, opts CollectOptions) map[string]*SourceResult {
	results := make(map[string]*SourceResult, len(sources))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, source := range sources {
		wg.Add(1)
		go func(src string) {
			defer wg.Done()
			res, err := c.Collect(ctx, src, opts)
			sr := &SourceResult{Source: src, Err: err}
			if err == nil {
				sr.Result = res
			}
			mu.Lock()
			results[src] = sr
			mu.Unlock()
		}(source)
	}
	wg.Wait()
	return results
}

// StreamSince polls a source's listing from the given cursor and emits items
// on the returned channel as they appear. The stream always bypasses the
// cache and runs at low priority so it never starves interactive work. The
// channel is closed when ctx is done; poll failures are emitted as events
// and the stream keeps going.
func (c *Client) StreamSince(ctx context.Context, source, cursor string, opts StreamOptions) <-chan StreamEvent {
	interval := opts.Interval
	if interval <= 0 {
		interval = c.streamInterval
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = c.pageSize
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		cur := cursor
		for {
			c.metrics.RecordStreamPoll(source)
			page, err := c.listPage(ctx, source, cur, pageSize, PriorityLow, true)
			switch {
			case err != nil && ctx.Err() != nil:
				return
			case err != nil:
				select {
				case events <- StreamEvent{Cursor: cur, Err: err}:
				case <-ctx.Done():
					return
				}
			default:
				next := cur
				if page.NextCursor != "" {
					next = page.NextCursor
				}
				for _, item := range page.Items {
					select {
					case events <- StreamEvent{Item: item, Cursor: next}:
					case <-ctx.Done():
						return
					}
				}
				cur = next
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events
}

// FetchItem fetches a single item by id, serving repeated lookups from the
// cache. A missing item surfaces as a NotFound error and is not cached.
func (c *Client) FetchItem(ctx context.Context, id string) (*Item, error) {
	if id == "" {
		return nil, &Error{Type: ErrorTypeValidation, Message: "id must not be empty", Timestamp: time.Now()}
	}

	key := cacheKey(endpointFetch, id)
	data, _, err := c.cache.getOrFetch(ctx, endpointFetch, key, func() ([]byte, error) {
		res, err := c.runTask(ctx, TaskSpec{
			Endpoint: endpointFetch,
			Priority: PriorityHigh,
			Run: func(tctx context.Context) (interface{}, error) {
				return c.remote.FetchItem(tctx, id)
			},
		})
		if err != nil {
			return nil, err
		}
		item, _ := res.(*Item)
		if item == nil {
			return nil, NewNotFoundError(endpointFetch)
		}
		return json.Marshal(item)
	})
	if err != nil {
		return nil, err
	}

	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, &Error{Type: ErrorTypeCache, Message: "decode cached item", Timestamp: time.Now(), Cause: err}
	}
	return &item, nil
}

// InvalidateCache drops all cached responses. Subsequent calls fetch live.
func (c *Client) InvalidateCache(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// listPage fetches one listing page through the queue, via the cache unless
// bypassed. Pages are cached as JSON so any Cache backend can hold them.
func (c *Client) listPage(ctx context.Context, source, cursor string, pageSize int, priority Priority, bypass bool) (*ListResult, error) {
	fetch := func() ([]byte, error) {
		res, err := c.runTask(ctx, TaskSpec{
			Endpoint: endpointList,
			Priority: priority,
			Run: func(tctx context.Context) (interface{}, error) {
				return c.remote.ListItems(tctx, source, cursor, pageSize)
			},
		})
		if err != nil {
			return nil, err
		}
		page, _ := res.(*ListResult)
		if page == nil {
			page = &ListResult{}
		}
		return json.Marshal(page)
	}

	var data []byte
	var err error
	if bypass {
		data, err = fetch()
	} else {
		key := cacheKey(endpointList, source, cursor, strconv.Itoa(pageSize))
		data, _, err = c.cache.getOrFetch(ctx, endpointList, key, fetch)
	}
	if err != nil {
		return nil, err
	}

	var page ListResult
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, &Error{Type: ErrorTypeCache, Message: "decode cached page", Timestamp: time.Now(), Cause: err}
	}
	return &page, nil
}

// runTask submits a task and waits for its terminal result. When the caller's
// context ends first the task is cancelled so it does not hold a queue slot.
func (c *Client) runTask(ctx context.Context, spec TaskSpec) (interface{}, error) {
	handle, err := c.queue.Enqueue(spec)
	if err != nil {
		return nil, err
	}
	res, err := handle.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		handle.Cancel()
	}
	return res, err
}
