// Package tarik implements a resilient collection pipeline for rate-limited,
// occasionally unreliable remote content APIs:
//
//   - Per-endpoint token bucket rate limiting with throttle-driven backoff
//   - Bounded priority request queue drained by a fixed worker pool
//   - Circuit breaker (closed / open / half-open) per endpoint
//   - TTL response cache with size-based compression and single-flight
//     de-duplication of concurrent identical fetches
//   - Retry policy with exponential backoff + full jitter
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - No lock held across a suspension point; cancellation is cooperative
//   - Extensibility via a pluggable Remote, Cache, RetryPolicy and Logger
//
// Typical usage:
//
//	client := tarik.New(remote,
//	    tarik.WithRequestsPerMinute(60),
//	    tarik.WithWorkerCount(5),
//	    tarik.WithCacheTTL(5*time.Minute),
//	    tarik.WithMaxAttempts(3),
//	)
//	defer client.Close()
//	result, err := client.Collect(ctx, "golang", tarik.CollectOptions{MaxItems: 500})
//
// The remote collaborator is modeled abstractly: implement Remote over any
// paginated listing + single-item API and signal failures through the error
// constructors (NewTransientError, NewThrottledError, NewFatalError,
// NewNotFoundError) so the pipeline can classify them.
package tarik
