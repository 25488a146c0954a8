package tarik

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the pipeline's task
// lifecycle and reliability layers. It is safe for concurrent use; a nil
// collector disables all recording.
type MetricsCollector struct {
	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	queueDepth   prometheus.Gauge

	retriesTotal   *prometheus.CounterVec
	throttlesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	rateLimiterTokens *prometheus.GaugeVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheErrors *prometheus.CounterVec

	singleflightShared *prometheus.CounterVec

	streamPolls *prometheus.CounterVec
}

// NewMetricsCollector creates a collector registered with the default
// Prometheus registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegisterer creates a collector registered with the
// given registerer. Use a private registry in tests to avoid duplicate
// registration panics.
func NewMetricsCollectorWithRegisterer(reg prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(reg)

	return &MetricsCollector{
		tasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tarik_tasks_total",
			Help: "Queued tasks by endpoint and terminal status.",
		}, []string{"endpoint", "status"}),
		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tarik_task_duration_seconds",
			Help:    "Successful task attempt duration by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tarik_queue_depth",
			Help: "Tasks owned by the queue (pending, in flight or awaiting retry).",
		}),
		retriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tarik_retries_total",
			Help: "Retry attempts scheduled by endpoint.",
		}, []string{"endpoint"}),
		throttlesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tarik_throttles_total",
			Help: "Explicit throttle signals received by endpoint.",
		}, []string{"endpoint"}),
		circuitBreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tarik_circuit_breaker_state",
			Help: "Circuit breaker state by endpoint (0=closed, 1=open, 2=half-open).",
		}, []string{"endpoint"}),
		rateLimiterTokens: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tarik_rate_limiter_tokens",
			Help: "Rate limiter tokens remaining by endpoint.",
		}, []string{"endpoint"}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tarik_cache_hits_total",
			Help: "Cache hits by endpoint.",
		}, []string{"endpoint"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tarik_cache_misses_total",
			Help: "Cache misses by endpoint.",
		}, []string{"endpoint"}),
		cacheErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tarik_cache_errors_total",
			Help: "Cache store failures absorbed by the pipeline, by endpoint.",
		}, []string{"endpoint"}),
		singleflightShared: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tarik_singleflight_shared_total",
			Help: "Fetches served by another caller's in-flight fetch, by endpoint.",
		}, []string{"endpoint"}),
		streamPolls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tarik_stream_polls_total",
			Help: "Streaming poll iterations by source.",
		}, []string{"source"}),
	}
}

// RecordTask records a task reaching a terminal status.
func (c *MetricsCollector) RecordTask(endpoint, status string) {
	if c == nil {
		return
	}
	c.tasksTotal.WithLabelValues(endpoint, status).Inc()
}

// RecordTaskDuration records a successful attempt's duration.
func (c *MetricsCollector) RecordTaskDuration(endpoint string, d time.Duration) {
	if c == nil {
		return
	}
	c.taskDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordQueueDepth records the number of tasks the queue currently owns.
func (c *MetricsCollector) RecordQueueDepth(depth int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(depth))
}

// RecordRetry records a scheduled retry.
func (c *MetricsCollector) RecordRetry(endpoint string) {
	if c == nil {
		return
	}
	c.retriesTotal.WithLabelValues(endpoint).Inc()
}

// RecordThrottle records an explicit throttle signal.
func (c *MetricsCollector) RecordThrottle(endpoint string) {
	if c == nil {
		return
	}
	c.throttlesTotal.WithLabelValues(endpoint).Inc()
}

// RecordCircuitBreakerState records the endpoint's breaker state.
func (c *MetricsCollector) RecordCircuitBreakerState(endpoint string, state CircuitState) {
	if c == nil {
		return
	}
	c.circuitBreakerState.WithLabelValues(endpoint).Set(float64(state))
}

// RecordRateLimiterTokens records the endpoint's remaining tokens.
func (c *MetricsCollector) RecordRateLimiterTokens(endpoint string, tokens float64) {
	if c == nil {
		return
	}
	c.rateLimiterTokens.WithLabelValues(endpoint).Set(tokens)
}

// RecordCacheHit records a cache hit.
func (c *MetricsCollector) RecordCacheHit(endpoint string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(endpoint).Inc()
}

// RecordCacheMiss records a cache miss.
func (c *MetricsCollector) RecordCacheMiss(endpoint string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(endpoint).Inc()
}

// RecordCacheError records an absorbed cache store failure.
func (c *MetricsCollector) RecordCacheError(endpoint string) {
	if c == nil {
		return
	}
	c.cacheErrors.WithLabelValues(endpoint).Inc()
}

// RecordSingleflightShared records a fetch result shared between callers.
func (c *MetricsCollector) RecordSingleflightShared(endpoint string) {
	if c == nil {
		return
	}
	c.singleflightShared.WithLabelValues(endpoint).Inc()
}

// RecordStreamPoll records one streaming poll iteration.
func (c *MetricsCollector) RecordStreamPoll(source string) {
	if c == nil {
		return
	}
	c.streamPolls.WithLabelValues(source).Inc()
}
