package tarik

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RequestQueueConfig holds request queue configuration.
type RequestQueueConfig struct {
	// Capacity bounds the number of tasks the queue owns at once (pending,
	// in flight or awaiting retry). Enqueue fails synchronously beyond it.
	Capacity int
	// WorkerCount is the fixed number of worker goroutines.
	WorkerCount int
	// MaxAttempts is the default retry budget per task after the initial
	// attempt (MaxAttempts+1 invocations in total).
	MaxAttempts int
	// AttemptTimeout bounds each remote call attempt. A timeout is
	// classified as a transient failure.
	AttemptTimeout time.Duration
}

// queuedTask is the queue-internal task record. The queue owns it
// exclusively from enqueue until a terminal status; callers only hold the
// TaskHandle. status, index and discard are guarded by the queue mutex.
type queuedTask struct {
	id          string
	priority    Priority
	seq         uint64
	endpoint    string
	run         TaskFunc
	attempt     int
	maxAttempts int

	status  TaskStatus
	index   int
	discard bool

	cancelCtx context.Context
	cancel    context.CancelFunc
	handle    *TaskHandle
}

// TaskHandle is the caller's view of a queued task. Result and Err are valid
// once Done is closed.
type TaskHandle struct {
	id   string
	q    *RequestQueue
	task *queuedTask

	once sync.Once
	done chan struct{}

	mu     sync.Mutex
	status TaskStatus
	result interface{}
	err    error
}

// ID returns the task's unique id.
func (h *TaskHandle) ID() string { return h.id }

// Done is closed when the task reaches a terminal status.
func (h *TaskHandle) Done() <-chan struct{} { return h.done }

// Status returns the task's current lifecycle status.
func (h *TaskHandle) Status() TaskStatus {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.status
	default:
	}
	h.q.mu.Lock()
	defer h.q.mu.Unlock()
	return h.task.status
}

// Result returns the terminal result and error. It is only meaningful after
// Done is closed; before that it returns (nil, nil).
func (h *TaskHandle) Result() (interface{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Wait blocks until the task reaches a terminal status or ctx is done.
func (h *TaskHandle) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-h.done:
		return h.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests cancellation. A Pending task resolves Cancelled
// immediately; an InFlight task keeps running but its result is discarded
// and the handle resolves Cancelled on completion.
func (h *TaskHandle) Cancel() {
	h.q.cancelTask(h.task)
}

func (h *TaskHandle) resolve(status TaskStatus, result interface{}, err error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.status = status
		h.result = result
		h.err = err
		h.mu.Unlock()
		close(h.done)
	})
}

// taskHeap orders tasks by descending priority, ties broken by ascending
// enqueue sequence (strict FIFO within a priority band).
type taskHeap []*queuedTask

func (th taskHeap) Len() int { return len(th) }

func (th taskHeap) Less(i, j int) bool {
	if th[i].priority != th[j].priority {
		return th[i].priority > th[j].priority
	}
	return th[i].seq < th[j].seq
}

func (th taskHeap) Swap(i, j int) {
	th[i], th[j] = th[j], th[i]
	th[i].index = i
	th[j].index = j
}

func (th *taskHeap) Push(x interface{}) {
	t := x.(*queuedTask)
	t.index = len(*th)
	*th = append(*th, t)
}

func (th *taskHeap) Pop() interface{} {
	old := *th
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*th = old[:n-1]
	return t
}

// RequestQueue is a bounded priority work queue drained by a fixed worker
// pool. It owns retry and backoff scheduling and coordinates the rate
// limiter and circuit breaker on behalf of workers.
type RequestQueue struct {
	limiter *RateLimiter
	breaker *CircuitBreaker
	retry   RetryPolicy
	logger  Logger
	metrics *MetricsCollector

	capacity       int
	maxAttempts    int
	attemptTimeout time.Duration

	ctx       context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  taskHeap
	timers map[*queuedTask]*time.Timer
	seq    uint64
	active int
	closed bool
}

// NewRequestQueue creates a queue and starts its workers. Zero config values
// fall back to defaults (capacity 1024, 4 workers, 3 retries, 30s attempt
// timeout).
func NewRequestQueue(config RequestQueueConfig, limiter *RateLimiter, breaker *CircuitBreaker, retry RetryPolicy, logger Logger, metrics *MetricsCollector) *RequestQueue {
	if config.Capacity <= 0 {
		config.Capacity = 1024
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 4
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = 30 * time.Second
	}
	if retry == nil {
		retry = NewDefaultRetryPolicy(time.Second, 2*time.Minute, 2.0, 0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &RequestQueue{
		limiter:        limiter,
		breaker:        breaker,
		retry:          retry,
		logger:         logger,
		metrics:        metrics,
		capacity:       config.Capacity,
		maxAttempts:    config.MaxAttempts,
		attemptTimeout: config.AttemptTimeout,
		ctx:            ctx,
		cancelAll:      cancel,
		tasks:          make(taskHeap, 0),
		timers:         make(map[*queuedTask]*time.Timer),
	}
	q.cond = sync.NewCond(&q.mu)

	q.wg.Add(config.WorkerCount)
	for i := 0; i < config.WorkerCount; i++ {
		go q.worker(i)
	}
	return q
}

// Enqueue submits a task. It fails synchronously with ErrQueueFull when the
// queue is at capacity and ErrQueueClosed after Close; it never blocks the
// producer.
func (q *RequestQueue) Enqueue(spec TaskSpec) (*TaskHandle, error) {
	if spec.Run == nil {
		return nil, &Error{Type: ErrorTypeValidation, Message: "task has no run function", Timestamp: time.Now()}
	}
	endpoint := spec.Endpoint
	if endpoint == "" {
		endpoint = "default"
	}
	priority := spec.Priority
	if priority == 0 {
		priority = PriorityNormal
	}
	maxAttempts := spec.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.maxAttempts
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	if q.active >= q.capacity {
		q.mu.Unlock()
		return nil, &Error{Type: ErrorTypeQueueFull, Message: "request queue at capacity", Endpoint: endpoint, Timestamp: time.Now()}
	}

	q.seq++
	cancelCtx, cancel := context.WithCancel(q.ctx)
	t := &queuedTask{
		id:          uuid.NewString(),
		priority:    priority,
		seq:         q.seq,
		endpoint:    endpoint,
		run:         spec.Run,
		maxAttempts: maxAttempts,
		status:      TaskPending,
		cancelCtx:   cancelCtx,
		cancel:      cancel,
	}
	t.handle = &TaskHandle{
		id:   t.id,
		q:    q,
		task: t,
		done: make(chan struct{}),
	}

	heap.Push(&q.tasks, t)
	q.active++
	depth := q.active
	q.cond.Signal()
	q.mu.Unlock()

	q.metrics.RecordQueueDepth(depth)
	if q.logger != nil {
		q.logger.Debug("task enqueued", "id", t.id, "endpoint", endpoint, "priority", int(priority))
	}
	return t.handle, nil
}

// Len returns the number of tasks currently owned by the queue.
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Close stops the workers, cancels all pending and retry-waiting tasks and
// waits for in-flight attempts to wind down. In-flight task handles resolve
// Cancelled.
func (q *RequestQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true

	var orphans []*queuedTask
	for q.tasks.Len() > 0 {
		t := heap.Pop(&q.tasks).(*queuedTask)
		t.status = TaskCancelled
		q.active--
		orphans = append(orphans, t)
	}
	for t, timer := range q.timers {
		timer.Stop()
		delete(q.timers, t)
		t.status = TaskCancelled
		q.active--
		orphans = append(orphans, t)
	}
	q.cond.Broadcast()
	q.mu.Unlock()

	q.cancelAll()
	for _, t := range orphans {
		t.cancel()
		t.handle.resolve(TaskCancelled, nil, cancelledError(t))
		q.metrics.RecordTask(t.endpoint, TaskCancelled.String())
	}
	q.wg.Wait()
	q.metrics.RecordQueueDepth(0)
}

// cancelTask implements TaskHandle.Cancel.
func (q *RequestQueue) cancelTask(t *queuedTask) {
	q.mu.Lock()
	switch t.status {
	case TaskPending:
		if t.index >= 0 {
			heap.Remove(&q.tasks, t.index)
		}
		if timer, ok := q.timers[t]; ok {
			timer.Stop()
			delete(q.timers, t)
		}
		t.status = TaskCancelled
		q.active--
		q.mu.Unlock()

		t.cancel()
		t.handle.resolve(TaskCancelled, nil, cancelledError(t))
		q.metrics.RecordTask(t.endpoint, TaskCancelled.String())
	case TaskInFlight:
		t.discard = true
		q.mu.Unlock()
		// Interrupts a rate limiter wait; an in-flight remote call is
		// allowed to complete, its result is discarded on arrival.
		t.cancel()
	default:
		q.mu.Unlock()
	}
}

// worker is the fixed pool's run loop.
func (q *RequestQueue) worker(id int) {
	defer q.wg.Done()
	for {
		t := q.next()
		if t == nil {
			return
		}
		q.execute(t)
	}
}

// next blocks until a task is available or the queue closes. It dequeues the
// highest-priority pending task, FIFO within a priority band.
func (q *RequestQueue) next() *queuedTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.tasks.Len() > 0 {
			t := heap.Pop(&q.tasks).(*queuedTask)
			t.status = TaskInFlight
			return t
		}
		if q.closed {
			return nil
		}
		q.cond.Wait()
	}
}

// execute runs one attempt of a task: circuit breaker gate, rate limiter
// admission, remote call, then outcome classification.
func (q *RequestQueue) execute(t *queuedTask) {
	endpoint := t.endpoint

	// Fail fast while the endpoint is unhealthy; no limiter interaction.
	if !q.breaker.Allow(endpoint) {
		q.metrics.RecordCircuitBreakerState(endpoint, q.breaker.State(endpoint))
		q.finish(t, nil, &Error{
			Type:        ErrorTypeCircuitOpen,
			Message:     "circuit breaker is open",
			Endpoint:    endpoint,
			Attempt:     t.attempt + 1,
			MaxAttempts: t.maxAttempts + 1,
			Timestamp:   time.Now(),
		})
		return
	}

	if err := q.limiter.Acquire(t.cancelCtx, endpoint); err != nil {
		// Cancelled while suspended on admission. The breaker may have
		// admitted this task as its half-open trial; release it so the
		// trial slot is not leaked.
		q.breaker.releaseTrial(endpoint)
		q.finishCancelled(t)
		return
	}
	q.metrics.RecordRateLimiterTokens(endpoint, q.limiter.Tokens(endpoint))

	start := time.Now()
	attemptCtx := q.ctx
	var cancel context.CancelFunc
	if q.attemptTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(q.ctx, q.attemptTimeout)
	}
	result, err := t.run(attemptCtx)
	if cancel != nil {
		cancel()
	}

	q.afterAttempt(t, result, err, time.Since(start))
}

// afterAttempt classifies an attempt's outcome and drives the task to a
// terminal status or a scheduled retry.
func (q *RequestQueue) afterAttempt(t *queuedTask, result interface{}, err error, elapsed time.Duration) {
	endpoint := t.endpoint

	if q.ctx.Err() != nil {
		// Shutdown mid-attempt records no outcome; a half-open trial
		// slot held by this task must not be leaked.
		q.breaker.releaseTrial(endpoint)
		q.finishCancelled(t)
		return
	}

	q.mu.Lock()
	discard := t.discard
	q.mu.Unlock()
	if discard {
		// The caller gave up but the outcome still informs endpoint
		// health.
		switch {
		case err == nil || IsNotFound(err):
			q.breaker.RecordSuccess(endpoint)
		case IsFatal(err):
			q.breaker.releaseTrial(endpoint)
		default:
			q.breaker.RecordFailure(endpoint)
		}
		q.finishCancelled(t)
		return
	}

	switch {
	case err == nil:
		q.breaker.RecordSuccess(endpoint)
		q.limiter.Reset(endpoint)
		q.metrics.RecordTaskDuration(endpoint, elapsed)
		q.finish(t, result, nil)

	case IsNotFound(err):
		// A legitimate empty outcome, not a health signal.
		q.breaker.RecordSuccess(endpoint)
		q.limiter.Reset(endpoint)
		q.finish(t, nil, nil)

	case IsFatal(err):
		// Not a statement about remote health: no breaker penalty. The
		// trial slot is given back in case this task was admitted as the
		// half-open trial.
		q.breaker.releaseTrial(endpoint)
		q.finish(t, nil, err)

	default:
		if IsThrottled(err) {
			q.limiter.ReportThrottled(endpoint)
			q.metrics.RecordThrottle(endpoint)
		}
		q.breaker.RecordFailure(endpoint)
		q.metrics.RecordCircuitBreakerState(endpoint, q.breaker.State(endpoint))

		delay, retry := q.retry.ShouldRetry(err, t.attempt, t.maxAttempts)
		if !retry {
			q.finish(t, nil, &Error{
				Type:        ErrorTypeCollectionFailed,
				Message:     "retry attempts exhausted",
				Endpoint:    endpoint,
				Attempt:     t.attempt + 1,
				MaxAttempts: t.maxAttempts + 1,
				Timestamp:   time.Now(),
				Duration:    elapsed,
				Cause:       err,
			})
			return
		}
		q.scheduleRetry(t, delay, err)
	}
}

// scheduleRetry re-enqueues the task at its original priority and sequence
// after the backoff delay elapses.
func (q *RequestQueue) scheduleRetry(t *queuedTask, delay time.Duration, cause error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.finishCancelled(t)
		return
	}
	t.attempt++
	t.status = TaskPending
	q.timers[t] = time.AfterFunc(delay, func() { q.requeue(t) })
	q.mu.Unlock()

	q.metrics.RecordRetry(t.endpoint)
	if q.logger != nil {
		q.logger.Debug("retry scheduled", "id", t.id, "endpoint", t.endpoint,
			"attempt", t.attempt, "maxAttempts", t.maxAttempts, "delay", delay, "cause", cause)
	}
}

// requeue moves a retry-waiting task back into the pending heap. Retried
// tasks already own a capacity slot and bypass the capacity check.
func (q *RequestQueue) requeue(t *queuedTask) {
	q.mu.Lock()
	delete(q.timers, t)
	if q.closed {
		q.mu.Unlock()
		q.finishCancelled(t)
		return
	}
	if t.status != TaskPending {
		// Cancelled while waiting for the retry timer.
		q.mu.Unlock()
		return
	}
	heap.Push(&q.tasks, t)
	q.cond.Signal()
	q.mu.Unlock()
}

// finish resolves a terminal success or failure.
func (q *RequestQueue) finish(t *queuedTask, result interface{}, err error) {
	status := TaskSucceeded
	if err != nil {
		status = TaskFailed
	}

	q.mu.Lock()
	if t.status == TaskCancelled {
		q.mu.Unlock()
		return
	}
	t.status = status
	q.active--
	depth := q.active
	q.mu.Unlock()

	t.cancel()
	t.handle.resolve(status, result, err)
	q.metrics.RecordTask(t.endpoint, status.String())
	q.metrics.RecordQueueDepth(depth)
	if q.logger != nil && err != nil {
		q.logger.Debug("task failed", "id", t.id, "endpoint", t.endpoint, "error", err)
	}
}

// finishCancelled resolves a task as Cancelled.
func (q *RequestQueue) finishCancelled(t *queuedTask) {
	q.mu.Lock()
	if t.status == TaskCancelled {
		q.mu.Unlock()
		t.handle.resolve(TaskCancelled, nil, cancelledError(t))
		return
	}
	t.status = TaskCancelled
	q.active--
	depth := q.active
	q.mu.Unlock()

	t.cancel()
	t.handle.resolve(TaskCancelled, nil, cancelledError(t))
	q.metrics.RecordTask(t.endpoint, TaskCancelled.String())
	q.metrics.RecordQueueDepth(depth)
}

func cancelledError(t *queuedTask) *Error {
	return &Error{
		Type:      ErrorTypeCancelled,
		Message:   "task cancelled",
		Endpoint:  t.endpoint,
		Timestamp: time.Now(),
	}
}
