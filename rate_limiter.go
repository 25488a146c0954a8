package tarik

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// RateLimiterConfig holds rate limiter configuration. Each endpoint key gets
// an independent bucket with these parameters, created lazily on first use.
type RateLimiterConfig struct {
	// RequestsPerMinute is the sustained admission rate per endpoint.
	RequestsPerMinute float64
	// BurstCapacity is the bucket capacity (maximum tokens accumulated).
	BurstCapacity int
	// BackoffBase is the first throttle backoff window.
	BackoffBase time.Duration
	// BackoffMax caps the throttle backoff window.
	BackoffMax time.Duration
}

// RateLimiter provides per-endpoint token bucket admission control with
// exponential backoff on explicit throttle signals from the remote. It is
// safe for concurrent use; endpoints are isolated so backoff on one endpoint
// never starves another.
type RateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucketState

	capacity        float64
	refillPerSecond float64
	backoffBase     time.Duration
	backoffMax      time.Duration
}

// bucketState is the per-endpoint token bucket. Its mutex guards short
// bookkeeping only; waiting happens outside the lock.
type bucketState struct {
	mu                   sync.Mutex
	tokens               float64
	lastRefill           time.Time
	backoffUntil         time.Time
	consecutiveThrottles int
}

// NewRateLimiter creates a rate limiter. Zero or negative config values fall
// back to defaults (60 requests/minute, burst 1, backoff 1s..2m).
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	if config.BurstCapacity <= 0 {
		config.BurstCapacity = 1
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = 2 * time.Minute
	}

	return &RateLimiter{
		buckets:         make(map[string]*bucketState),
		capacity:        float64(config.BurstCapacity),
		refillPerSecond: config.RequestsPerMinute / 60.0,
		backoffBase:     config.BackoffBase,
		backoffMax:      config.BackoffMax,
	}
}

// bucket returns the endpoint's bucket, creating it lazily. Buckets live for
// the limiter's lifetime and are never deleted.
func (rl *RateLimiter) bucket(endpoint string) *bucketState {
	rl.mu.RLock()
	b, ok := rl.buckets[endpoint]
	rl.mu.RUnlock()
	if ok {
		return b
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok = rl.buckets[endpoint]; ok {
		return b
	}
	b = &bucketState{
		tokens:     rl.capacity,
		lastRefill: time.Now(),
	}
	rl.buckets[endpoint] = b
	return b
}

// refillLocked adds tokens for the time elapsed since the last refill,
// capped at capacity. Caller holds b.mu.
func (rl *RateLimiter) refillLocked(b *bucketState, now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * rl.refillPerSecond
	if b.tokens > rl.capacity {
		b.tokens = rl.capacity
	}
	b.lastRefill = now
}

// Acquire blocks until a token is available for the endpoint and any active
// throttle backoff window has passed, then consumes one token. It returns
// the context's error if cancelled while waiting.
func (rl *RateLimiter) Acquire(ctx context.Context, endpoint string) error {
	b := rl.bucket(endpoint)

	for {
		b.mu.Lock()
		now := time.Now()
		rl.refillLocked(b, now)

		var wait time.Duration
		switch {
		case now.Before(b.backoffUntil):
			wait = b.backoffUntil.Sub(now)
		case b.tokens >= 1:
			b.tokens--
			b.mu.Unlock()
			return nil
		default:
			need := 1 - b.tokens
			wait = time.Duration(need / rl.refillPerSecond * float64(time.Second))
			if wait <= 0 {
				wait = time.Millisecond
			}
		}
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Allow reports whether a token is immediately available, consuming one if
// so. It never blocks.
func (rl *RateLimiter) Allow(endpoint string) bool {
	b := rl.bucket(endpoint)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	rl.refillLocked(b, now)

	if now.Before(b.backoffUntil) || b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// ReportThrottled records an explicit over-limit signal from the remote and
// extends the endpoint's backoff window exponentially with full jitter: the
// window is drawn uniformly from (0, base*2^streak], capped at BackoffMax.
func (rl *RateLimiter) ReportThrottled(endpoint string) {
	b := rl.bucket(endpoint)

	b.mu.Lock()
	defer b.mu.Unlock()

	ceiling := rl.backoffBase << uint(b.consecutiveThrottles)
	if ceiling <= 0 || ceiling > rl.backoffMax {
		ceiling = rl.backoffMax
	}
	b.consecutiveThrottles++

	window := time.Duration(rand.Float64() * float64(ceiling))
	until := time.Now().Add(window)
	if until.After(b.backoffUntil) {
		b.backoffUntil = until
	}
}

// Reset clears the endpoint's throttle backoff state. The queue calls it
// after a successful attempt on the endpoint.
func (rl *RateLimiter) Reset(endpoint string) {
	b := rl.bucket(endpoint)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.backoffUntil = time.Time{}
	b.consecutiveThrottles = 0
}

// Tokens returns the endpoint's current token count after refill. Intended
// for metrics and tests.
func (rl *RateLimiter) Tokens(endpoint string) float64 {
	b := rl.bucket(endpoint)

	b.mu.Lock()
	defer b.mu.Unlock()

	rl.refillLocked(b, time.Now())
	return b.tokens
}

// BackoffUntil returns the end of the endpoint's current backoff window, or
// the zero time when none is active.
func (rl *RateLimiter) BackoffUntil(endpoint string) time.Time {
	b := rl.bucket(endpoint)

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.backoffUntil
}
