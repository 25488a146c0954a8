package tarik

import (
	"fmt"
	"time"
)

// WithRequestsPerMinute sets the sustained per-endpoint request rate.
func WithRequestsPerMinute(rpm int) Option {
	return func(c *Client) {
		c.requestsPerMinute = rpm
	}
}

// WithBurstCapacity sets how many requests may be spent back to back before
// the rate limiter starts pacing.
func WithBurstCapacity(burst int) Option {
	return func(c *Client) {
		c.burstCapacity = burst
	}
}

// WithThrottleBackoff sets the base and ceiling of the rate limiter's
// backoff window after explicit throttle signals.
func WithThrottleBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		c.backoffBase = base
		c.backoffMax = max
	}
}

// WithMaxAttempts sets the default retry budget per task after the initial
// attempt; a task runs at most attempts+1 times.
func WithMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.maxAttempts = attempts
	}
}

// WithAttemptTimeout bounds each individual remote call attempt.
func WithAttemptTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.attemptTimeout = timeout
	}
}

// WithQueueCapacity bounds the number of tasks the queue owns at once.
func WithQueueCapacity(capacity int) Option {
	return func(c *Client) {
		c.queueCapacity = capacity
	}
}

// WithWorkerCount sets the size of the fixed worker pool.
func WithWorkerCount(workers int) Option {
	return func(c *Client) {
		c.workerCount = workers
	}
}

// WithCache replaces the default in-memory store with a custom Cache
// implementation.
func WithCache(store Cache) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithCacheTTL sets how long cached responses stay fresh.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

// WithCompressionThreshold sets the payload size, in bytes, at which cached
// values are gzip-compressed. Zero or negative disables compression.
func WithCompressionThreshold(bytes int) Option {
	return func(c *Client) {
		c.compressionThreshold = bytes
	}
}

// WithCircuitBreaker sets the failure threshold and open duration of the
// per-endpoint circuit breakers.
func WithCircuitBreaker(failureThreshold int, openDuration time.Duration) Option {
	return func(c *Client) {
		c.breakerConfig = CircuitBreakerConfig{
			FailureThreshold: failureThreshold,
			OpenDuration:     openDuration,
		}
	}
}

// WithRetryPolicy replaces the default exponential-backoff policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithRetryBackoff tunes the default retry policy's backoff curve. Ignored
// when WithRetryPolicy supplies a custom policy.
func WithRetryBackoff(initial, max time.Duration, multiplier float64) Option {
	return func(c *Client) {
		c.retryInitialBackoff = initial
		c.retryMaxBackoff = max
		c.retryMultiplier = multiplier
	}
}

// WithPageSize sets the default listing page size.
func WithPageSize(pageSize int) Option {
	return func(c *Client) {
		c.pageSize = pageSize
	}
}

// WithStreamInterval sets the default delay between streaming polls.
func WithStreamInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.streamInterval = interval
	}
}

// WithLogger sets the logger used for diagnostics. The default is silent.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a pre-built metrics collector, typically one
// registered on a private registry.
func WithMetricsCollector(metrics *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// collectValidationErrors checks the applied configuration and returns one
// message per problem.
func (c *Client) collectValidationErrors() []string {
	var errs []string

	if c.remote == nil {
		errs = append(errs, "remote must not be nil")
	}
	if c.requestsPerMinute <= 0 {
		errs = append(errs, fmt.Sprintf("requestsPerMinute must be positive, got %d", c.requestsPerMinute))
	}
	if c.burstCapacity <= 0 {
		errs = append(errs, fmt.Sprintf("burstCapacity must be positive, got %d", c.burstCapacity))
	}
	if c.backoffBase <= 0 {
		errs = append(errs, fmt.Sprintf("throttle backoff base must be positive, got %v", c.backoffBase))
	}
	if c.backoffMax < c.backoffBase {
		errs = append(errs, fmt.Sprintf("throttle backoff max (%v) must not be below base (%v)", c.backoffMax, c.backoffBase))
	}
	if c.maxAttempts <= 0 {
		errs = append(errs, fmt.Sprintf("maxAttempts must be positive, got %d", c.maxAttempts))
	}
	if c.attemptTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("attemptTimeout must be positive, got %v", c.attemptTimeout))
	}
	if c.queueCapacity <= 0 {
		errs = append(errs, fmt.Sprintf("queueCapacity must be positive, got %d", c.queueCapacity))
	}
	if c.workerCount <= 0 {
		errs = append(errs, fmt.Sprintf("workerCount must be positive, got %d", c.workerCount))
	}
	if c.cacheTTL <= 0 {
		errs = append(errs, fmt.Sprintf("cacheTTL must be positive, got %v", c.cacheTTL))
	}
	if c.breakerConfig.FailureThreshold <= 0 {
		errs = append(errs, fmt.Sprintf("circuit breaker failure threshold must be positive, got %d", c.breakerConfig.FailureThreshold))
	}
	if c.breakerConfig.OpenDuration <= 0 {
		errs = append(errs, fmt.Sprintf("circuit breaker open duration must be positive, got %v", c.breakerConfig.OpenDuration))
	}
	if c.retryInitialBackoff <= 0 {
		errs = append(errs, fmt.Sprintf("retry initial backoff must be positive, got %v", c.retryInitialBackoff))
	}
	if c.retryMaxBackoff < c.retryInitialBackoff {
		errs = append(errs, fmt.Sprintf("retry max backoff (%v) must not be below initial (%v)", c.retryMaxBackoff, c.retryInitialBackoff))
	}
	if c.retryMultiplier < 1 {
		errs = append(errs, fmt.Sprintf("retry multiplier must be at least 1, got %v", c.retryMultiplier))
	}
	if c.pageSize <= 0 {
		errs = append(errs, fmt.Sprintf("pageSize must be positive, got %d", c.pageSize))
	}
	if c.streamInterval <= 0 {
		errs = append(errs, fmt.Sprintf("streamInterval must be positive, got %v", c.streamInterval))
	}

	return errs
}
