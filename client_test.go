package tarik

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeRemote serves a fixed number of items per source, paginated by integer
// offset cursors. Failure injection hooks run before each call.
type fakeRemote struct {
	mu         sync.Mutex
	counts     map[string]int
	items      map[string]*Item
	listCalls  int
	fetchCalls int

	listErr  func(source, cursor string, call int) error
	fetchErr func(id string, call int) error
}

func newFakeRemote(counts map[string]int) *fakeRemote {
	return &fakeRemote{
		counts: counts,
		items:  make(map[string]*Item),
	}
}

func (r *fakeRemote) ListItems(_ context.Context, source, cursor string, pageSize int) (*ListResult, error) {
	r.mu.Lock()
	r.listCalls++
	call := r.listCalls
	hook := r.listErr
	total := r.counts[source]
	r.mu.Unlock()

	if hook != nil {
		if err := hook(source, cursor, call); err != nil {
			return nil, err
		}
	}

	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(cursor)
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	items := make([]Item, 0, end-start)
	for i := start; i < end; i++ {
		items = append(items, Item{ID: fmt.Sprintf("%s-%d", source, i), Source: source})
	}
	next := ""
	if end < total {
		next = strconv.Itoa(end)
	}
	return &ListResult{Items: items, NextCursor: next}, nil
}

func (r *fakeRemote) FetchItem(_ context.Context, id string) (*Item, error) {
	r.mu.Lock()
	r.fetchCalls++
	call := r.fetchCalls
	hook := r.fetchErr
	item := r.items[id]
	r.mu.Unlock()

	if hook != nil {
		if err := hook(id, call); err != nil {
			return nil, err
		}
	}
	if item == nil {
		return nil, NewNotFoundError(endpointFetch)
	}
	return item, nil
}

func (r *fakeRemote) listCallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listCalls
}

func newTestClient(t *testing.T, remote Remote, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithRequestsPerMinute(600000),
		WithBurstCapacity(1000),
		WithRetryBackoff(time.Millisecond, 10*time.Millisecond, 2.0),
		WithAttemptTimeout(5 * time.Second),
	}
	c := New(remote, append(base, opts...)...)
	t.Cleanup(c.Close)
	return c
}

func TestClientDefaultsAreValid(t *testing.T) {
	c := New(newFakeRemote(nil))
	defer c.Close()

	if !c.IsValid() {
		t.Errorf("IsValid() = false with defaults, errors: %v", c.ValidationError())
	}
	if err := c.ValidationError(); err != nil {
		t.Errorf("ValidationError() = %v, want nil", err)
	}
}

func TestClientCollectsValidationErrors(t *testing.T) {
	c := New(newFakeRemote(nil), WithRequestsPerMinute(-1), WithWorkerCount(0))
	defer c.Close()

	if c.IsValid() {
		t.Fatal("IsValid() = true for broken configuration, want false")
	}
	msg := c.ValidationError().Error()
	if !strings.Contains(msg, "requestsPerMinute") || !strings.Contains(msg, "workerCount") {
		t.Errorf("ValidationError() = %q, want both problems reported", msg)
	}
}

func TestCollectPaginates(t *testing.T) {
	remote := newFakeRemote(map[string]int{"blog": 25})
	c := newTestClient(t, remote)

	res, err := c.Collect(context.Background(), "blog", CollectOptions{PageSize: 10})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(res.Items) != 25 {
		t.Errorf("collected %d items, want 25", len(res.Items))
	}
	if res.Pages != 3 {
		t.Errorf("Pages = %d, want 3", res.Pages)
	}
	for i, item := range res.Items {
		if want := fmt.Sprintf("blog-%d", i); item.ID != want {
			t.Fatalf("item %d = %q, want %q (remote order preserved)", i, item.ID, want)
		}
	}
}

func TestCollectMaxItems(t *testing.T) {
	remote := newFakeRemote(map[string]int{"blog": 100})
	c := newTestClient(t, remote)

	res, err := c.Collect(context.Background(), "blog", CollectOptions{PageSize: 10, MaxItems: 12})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(res.Items) != 12 {
		t.Errorf("collected %d items, want MaxItems cap of 12", len(res.Items))
	}
	if res.Pages != 2 {
		t.Errorf("Pages = %d, want 2 (no pages past the cap)", res.Pages)
	}
}

func TestCollectEmptySource(t *testing.T) {
	c := newTestClient(t, newFakeRemote(nil))

	_, err := c.Collect(context.Background(), "", CollectOptions{})
	if err == nil {
		t.Fatal("Collect(\"\") error = nil, want validation error")
	}
}

func TestCollectEmptyListing(t *testing.T) {
	remote := newFakeRemote(map[string]int{"empty": 0})
	c := newTestClient(t, remote)

	res, err := c.Collect(context.Background(), "empty", CollectOptions{})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(res.Items) != 0 || res.Pages != 1 {
		t.Errorf("got %d items over %d pages, want 0 items over 1 page", len(res.Items), res.Pages)
	}
}

func TestCollectServesRepeatsFromCache(t *testing.T) {
	remote := newFakeRemote(map[string]int{"blog": 15})
	c := newTestClient(t, remote, WithCacheTTL(time.Minute))

	if _, err := c.Collect(context.Background(), "blog", CollectOptions{PageSize: 5}); err != nil {
		t.Fatalf("first Collect() error = %v", err)
	}
	calls := remote.listCallCount()

	res, err := c.Collect(context.Background(), "blog", CollectOptions{PageSize: 5})
	if err != nil {
		t.Fatalf("second Collect() error = %v", err)
	}
	if got := remote.listCallCount(); got != calls {
		t.Errorf("remote called %d more times on a warm cache, want 0", got-calls)
	}
	if len(res.Items) != 15 {
		t.Errorf("cached collect returned %d items, want 15", len(res.Items))
	}
}

func TestCollectBypassCache(t *testing.T) {
	remote := newFakeRemote(map[string]int{"blog": 10})
	c := newTestClient(t, remote)

	c.Collect(context.Background(), "blog", CollectOptions{PageSize: 10})
	calls := remote.listCallCount()

	c.Collect(context.Background(), "blog", CollectOptions{PageSize: 10, BypassCache: true})
	if got := remote.listCallCount(); got != calls+1 {
		t.Errorf("remote called %d times after bypass, want %d", got, calls+1)
	}
}

func TestInvalidateCache(t *testing.T) {
	remote := newFakeRemote(map[string]int{"blog": 10})
	c := newTestClient(t, remote)
	ctx := context.Background()

	c.Collect(ctx, "blog", CollectOptions{PageSize: 10})
	calls := remote.listCallCount()

	if err := c.InvalidateCache(ctx); err != nil {
		t.Fatalf("InvalidateCache() error = %v", err)
	}

	c.Collect(ctx, "blog", CollectOptions{PageSize: 10})
	if got := remote.listCallCount(); got != calls+1 {
		t.Errorf("remote called %d times after invalidation, want %d", got, calls+1)
	}
}

func TestCollectRetriesTransientFailures(t *testing.T) {
	remote := newFakeRemote(map[string]int{"blog": 20})
	failed := make(map[string]bool)
	var mu sync.Mutex
	remote.listErr = func(_, cursor string, _ int) error {
		mu.Lock()
		defer mu.Unlock()
		if !failed[cursor] {
			failed[cursor] = true
			return NewTransientError(endpointList, errors.New("flaky page"))
		}
		return nil
	}
	c := newTestClient(t, remote, WithMaxAttempts(3))

	res, err := c.Collect(context.Background(), "blog", CollectOptions{PageSize: 5})
	if err != nil {
		t.Fatalf("Collect() error = %v, want retries to absorb single failures", err)
	}
	if len(res.Items) != 20 {
		t.Errorf("collected %d items, want 20", len(res.Items))
	}
	for i, item := range res.Items {
		if want := fmt.Sprintf("blog-%d", i); item.ID != want {
			t.Fatalf("item %d = %q, want %q despite retries", i, item.ID, want)
		}
	}
}

func TestCollectSurfacesFatalFailure(t *testing.T) {
	remote := newFakeRemote(map[string]int{"blog": 20})
	remote.listErr = func(_, cursor string, _ int) error {
		if cursor == "5" {
			return NewFatalError(endpointList, errors.New("forbidden"))
		}
		return nil
	}
	c := newTestClient(t, remote)

	_, err := c.Collect(context.Background(), "blog", CollectOptions{PageSize: 5})
	if !IsFatal(err) {
		t.Errorf("Collect() error = %v, want the fatal failure surfaced", err)
	}
}

func TestCollectBulkIsolatesSources(t *testing.T) {
	remote := newFakeRemote(map[string]int{"good": 8, "alsogood": 3, "bad": 10})
	remote.listErr = func(source, _ string, _ int) error {
		if source == "bad" {
			return NewFatalError(endpointList, errors.New("gone"))
		}
		return nil
	}
	c := newTestClient(t, remote)

	results := c.CollectBulk(context.Background(), []string{"good", "alsogood", "bad"}, CollectOptions{PageSize: 5})

	if len(results) != 3 {
		t.Fatalf("got %d source results, want 3", len(results))
	}
	if sr := results["good"]; sr.Err != nil || len(sr.Result.Items) != 8 {
		t.Errorf("good: err=%v items=%d, want 8 items", sr.Err, len(sr.Result.Items))
	}
	if sr := results["alsogood"]; sr.Err != nil || len(sr.Result.Items) != 3 {
		t.Errorf("alsogood: err=%v, want 3 items", sr.Err)
	}
	if sr := results["bad"]; sr.Err == nil || sr.Result != nil {
		t.Errorf("bad: err=%v result=%v, want error and no result", sr.Err, sr.Result)
	}
}

func TestFetchItem(t *testing.T) {
	remote := newFakeRemote(nil)
	remote.items["a1"] = &Item{ID: "a1", Source: "blog", Data: []byte(`{"title":"hello"}`)}
	c := newTestClient(t, remote)

	item, err := c.FetchItem(context.Background(), "a1")
	if err != nil {
		t.Fatalf("FetchItem() error = %v", err)
	}
	if item.ID != "a1" || string(item.Data) != `{"title":"hello"}` {
		t.Errorf("FetchItem() = %+v, want the stored item", item)
	}
}

func TestFetchItemCached(t *testing.T) {
	remote := newFakeRemote(nil)
	remote.items["a1"] = &Item{ID: "a1"}
	c := newTestClient(t, remote)
	ctx := context.Background()

	c.FetchItem(ctx, "a1")
	c.FetchItem(ctx, "a1")

	remote.mu.Lock()
	calls := remote.fetchCalls
	remote.mu.Unlock()
	if calls != 1 {
		t.Errorf("remote fetched %d times for repeated lookups, want 1", calls)
	}
}

func TestFetchItemNotFound(t *testing.T) {
	c := newTestClient(t, newFakeRemote(nil))

	item, err := c.FetchItem(context.Background(), "ghost")
	if !IsNotFound(err) {
		t.Fatalf("FetchItem() error = %v, want not-found", err)
	}
	if item != nil {
		t.Errorf("FetchItem() = %+v, want nil", item)
	}
}

func TestFetchItemEmptyID(t *testing.T) {
	c := newTestClient(t, newFakeRemote(nil))

	if _, err := c.FetchItem(context.Background(), ""); err == nil {
		t.Fatal("FetchItem(\"\") error = nil, want validation error")
	}
}

func TestStreamSinceEmitsAndCloses(t *testing.T) {
	remote := newFakeRemote(map[string]int{"feed": 7})
	c := newTestClient(t, remote, WithStreamInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	events := c.StreamSince(ctx, "feed", "", StreamOptions{PageSize: 3})

	var got []StreamEvent
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("stream event error = %v", ev.Err)
		}
		got = append(got, ev)
		if len(got) == 7 {
			cancel()
		}
	}
	// Channel closed after cancel; no more events expected.

	if len(got) < 7 {
		t.Fatalf("received %d events, want at least 7", len(got))
	}
	for i := 0; i < 7; i++ {
		if want := fmt.Sprintf("feed-%d", i); got[i].Item.ID != want {
			t.Errorf("event %d item = %q, want %q", i, got[i].Item.ID, want)
		}
	}
	if got[6].Cursor == "" {
		t.Error("final event carries no cursor, want a resumable position")
	}
	cancel()
}

func TestStreamSinceSurvivesPollFailures(t *testing.T) {
	remote := newFakeRemote(map[string]int{"feed": 2})
	var mu sync.Mutex
	fail := true
	remote.listErr = func(_, _ string, _ int) error {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			fail = false
			return NewFatalError(endpointList, errors.New("hiccup"))
		}
		return nil
	}
	c := newTestClient(t, remote, WithStreamInterval(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events := c.StreamSince(ctx, "feed", "", StreamOptions{PageSize: 10})

	sawError := false
	var items []string
	for ev := range events {
		if ev.Err != nil {
			sawError = true
			continue
		}
		items = append(items, ev.Item.ID)
		if len(items) == 2 {
			cancel()
		}
	}

	if !sawError {
		t.Error("stream swallowed the poll failure, want it emitted as an event")
	}
	if len(items) < 2 {
		t.Errorf("received %d items after recovery, want 2", len(items))
	}
}

func TestStreamSinceResumesFromCursor(t *testing.T) {
	remote := newFakeRemote(map[string]int{"feed": 10})
	c := newTestClient(t, remote, WithStreamInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := c.StreamSince(ctx, "feed", "4", StreamOptions{PageSize: 10})

	ev := <-events
	cancel()
	if ev.Err != nil {
		t.Fatalf("stream event error = %v", ev.Err)
	}
	if ev.Item.ID != "feed-4" {
		t.Errorf("first event = %q, want %q (resume after the given cursor)", ev.Item.ID, "feed-4")
	}
	for range events {
	}
}

func TestClientPacesRequests(t *testing.T) {
	if testing.Short() {
		t.Skip("wall-clock pacing test")
	}
	remote := newFakeRemote(map[string]int{"blog": 12})
	c := New(remote,
		WithRequestsPerMinute(600), // 10 requests/second
		WithBurstCapacity(2),
		WithRetryBackoff(time.Millisecond, 10*time.Millisecond, 2.0),
	)
	defer c.Close()

	start := time.Now()
	res, err := c.Collect(context.Background(), "blog", CollectOptions{PageSize: 1, BypassCache: true})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	elapsed := time.Since(start)

	if len(res.Items) != 12 {
		t.Fatalf("collected %d items, want 12", len(res.Items))
	}
	// 12 paced requests with burst 2 need at least one second at 10/s.
	if elapsed < 800*time.Millisecond {
		t.Errorf("12 requests finished in %v, want pacing to stretch past ~1s", elapsed)
	}
}

func TestClientEndToEndFlakyRemote(t *testing.T) {
	remote := newFakeRemote(map[string]int{"a": 30, "b": 30, "c": 30})
	var mu sync.Mutex
	failed := make(map[string]bool)
	remote.listErr = func(source, cursor string, call int) error {
		mu.Lock()
		defer mu.Unlock()
		key := source + "/" + cursor
		// Every third page fails once with a throttle, then recovers.
		if !failed[key] && call%3 == 0 {
			failed[key] = true
			return NewThrottledError(endpointList, errors.New("429"))
		}
		return nil
	}
	c := newTestClient(t, remote,
		WithMaxAttempts(4),
		WithThrottleBackoff(time.Millisecond, 20*time.Millisecond),
		WithWorkerCount(4),
		WithCircuitBreaker(1000, time.Hour),
	)

	results := c.CollectBulk(context.Background(), []string{"a", "b", "c"}, CollectOptions{PageSize: 7})

	for _, source := range []string{"a", "b", "c"} {
		sr := results[source]
		if sr.Err != nil {
			t.Fatalf("source %s error = %v, want retries to absorb the flakiness", source, sr.Err)
		}
		if len(sr.Result.Items) != 30 {
			t.Errorf("source %s: %d items, want 30", source, len(sr.Result.Items))
		}
		seen := make(map[string]bool)
		for _, item := range sr.Result.Items {
			if seen[item.ID] {
				t.Errorf("source %s: duplicate item %s", source, item.ID)
			}
			seen[item.ID] = true
		}
	}
}
