package tarik

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"sync"
	"time"

	"github.com/ambiyansyah-risyal/tarik/internal/singleflight"
)

// Cache is the pluggable response store. Implementations may be backed by
// external systems and are allowed to fail: the pipeline treats Get errors
// as misses and logs-and-swallows Set errors, always falling through to a
// live fetch.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// cacheEntry is an immutable stored value; entries are replaced on write,
// never mutated in place.
type cacheEntry struct {
	value     []byte
	createdAt time.Time
	ttl       time.Duration
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.After(e.createdAt.Add(e.ttl))
}

// InMemoryCache is a sharded in-memory Cache. It never returns errors.
type InMemoryCache struct {
	shards    []*cacheShard
	numShards int
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*cacheEntry
}

// NewInMemoryCache creates an in-memory cache with 16 shards.
func NewInMemoryCache() *InMemoryCache {
	numShards := 16
	shards := make([]*cacheShard, numShards)
	for i := range shards {
		shards[i] = &cacheShard{
			store: make(map[string]*cacheEntry),
		}
	}
	return &InMemoryCache{
		shards:    shards,
		numShards: numShards,
	}
}

func (c *InMemoryCache) getShard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(c.numShards)]
}

// Get returns the value for key if present and unexpired. Expired entries
// are deleted lazily.
func (c *InMemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, exists := shard.store[key]
	if !exists {
		return nil, false, nil
	}

	if entry.expired(time.Now()) {
		delete(shard.store, key)
		return nil, false, nil
	}

	return entry.value, true, nil
}

// Set stores value under key with the given ttl, replacing any prior entry.
func (c *InMemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	shard.store[key] = &cacheEntry{
		value:     value,
		createdAt: time.Now(),
		ttl:       ttl,
	}
	return nil
}

// Delete removes a cache entry.
func (c *InMemoryCache) Delete(_ context.Context, key string) error {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
	return nil
}

// Clear removes all cache entries.
func (c *InMemoryCache) Clear(_ context.Context) error {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*cacheEntry)
		shard.mu.Unlock()
	}
	return nil
}

// Sweep removes all expired entries and returns how many were dropped.
func (c *InMemoryCache) Sweep() int {
	now := time.Now()
	removed := 0
	for _, shard := range c.shards {
		shard.mu.Lock()
		for key, entry := range shard.store {
			if entry.expired(now) {
				delete(shard.store, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// Len returns the number of stored entries, counting expired ones not yet
// swept.
func (c *InMemoryCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}

// Payload framing for stored values: one flag byte (0 = raw, 1 = gzip)
// followed by the payload.
const (
	payloadRaw  byte = 0
	payloadGzip byte = 1
)

// responseCache wraps a Cache with deterministic keys, size-based gzip
// compression and single-flight de-duplication. It absorbs store failures
// per the pipeline's error policy.
type responseCache struct {
	store      Cache
	ttl        time.Duration
	compressAt int
	flight     *singleflight.Group
	logger     Logger
	metrics    *MetricsCollector
}

func newResponseCache(store Cache, ttl time.Duration, compressAt int, logger Logger, metrics *MetricsCollector) *responseCache {
	return &responseCache{
		store:      store,
		ttl:        ttl,
		compressAt: compressAt,
		flight:     singleflight.New(),
		logger:     logger,
		metrics:    metrics,
	}
}

// cacheKey builds a deterministic key from the endpoint and normalized
// request parameters.
func cacheKey(endpoint string, params ...string) string {
	h := fnv.New64a()
	h.Write([]byte(endpoint))
	for _, p := range params {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return fmt.Sprintf("%s:%x", endpoint, h.Sum64())
}

// getOrFetch returns the cached value for key or runs fetch exactly once
// across concurrent callers, populating the cache on success. fromCache
// reports whether the value was served from the store.
func (rc *responseCache) getOrFetch(ctx context.Context, endpoint, key string, fetch func() ([]byte, error)) (value []byte, fromCache bool, err error) {
	if data, ok := rc.get(ctx, endpoint, key); ok {
		return data, true, nil
	}

	v, err, shared := rc.flight.Do(ctx, key, func() (interface{}, error) {
		// Another caller may have populated the store while this call
		// waited to become the owner.
		if data, ok := rc.get(ctx, endpoint, key); ok {
			return data, nil
		}

		// A lookup counts as a miss only once the fetch goes through;
		// the re-check above would otherwise pair a miss with a hit for
		// the same request.
		rc.metrics.RecordCacheMiss(endpoint)
		data, err := fetch()
		if err != nil {
			return nil, err
		}
		rc.set(ctx, endpoint, key, data)
		return data, nil
	})
	if shared {
		rc.metrics.RecordSingleflightShared(endpoint)
	}
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), false, nil
}

// get reads and decodes a stored value. Store errors count as misses.
func (rc *responseCache) get(ctx context.Context, endpoint, key string) ([]byte, bool) {
	raw, found, err := rc.store.Get(ctx, key)
	if err != nil {
		if rc.logger != nil {
			rc.logger.Warn("cache get failed, treating as miss", "key", key, "error", err)
		}
		rc.metrics.RecordCacheError(endpoint)
		return nil, false
	}
	if !found {
		return nil, false
	}

	data, err := decodePayload(raw)
	if err != nil {
		if rc.logger != nil {
			rc.logger.Warn("cache entry corrupt, treating as miss", "key", key, "error", err)
		}
		rc.metrics.RecordCacheError(endpoint)
		return nil, false
	}
	rc.metrics.RecordCacheHit(endpoint)
	return data, true
}

// set encodes and stores a value. Store errors are logged and swallowed.
func (rc *responseCache) set(ctx context.Context, endpoint, key string, data []byte) {
	raw, err := encodePayload(data, rc.compressAt)
	if err != nil {
		if rc.logger != nil {
			rc.logger.Warn("cache payload encoding failed", "key", key, "error", err)
		}
		rc.metrics.RecordCacheError(endpoint)
		return
	}
	if err := rc.store.Set(ctx, key, raw, rc.ttl); err != nil {
		if rc.logger != nil {
			rc.logger.Warn("cache set failed", "key", key, "error", err)
		}
		rc.metrics.RecordCacheError(endpoint)
	}
}

// encodePayload frames data, gzip-compressing when it meets the threshold.
// A threshold <= 0 disables compression.
func encodePayload(data []byte, compressAt int) ([]byte, error) {
	if compressAt <= 0 || len(data) < compressAt {
		out := make([]byte, 1+len(data))
		out[0] = payloadRaw
		copy(out[1:], data)
		return out, nil
	}

	var buf bytes.Buffer
	buf.WriteByte(payloadGzip)
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	return buf.Bytes(), nil
}

// decodePayload reverses encodePayload.
func decodePayload(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty cache payload")
	}
	switch raw[0] {
	case payloadRaw:
		return raw[1:], nil
	case payloadGzip:
		zr, err := gzip.NewReader(bytes.NewReader(raw[1:]))
		if err != nil {
			return nil, fmt.Errorf("decompress payload: %w", err)
		}
		defer zr.Close()
		data, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("decompress payload: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown cache payload flag %d", raw[0])
	}
}
