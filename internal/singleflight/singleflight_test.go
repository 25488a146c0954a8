package singleflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoRunsFunction(t *testing.T) {
	g := New()

	v, err, shared := g.Do(context.Background(), "key", func() (interface{}, error) {
		return "value", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if v != "value" {
		t.Errorf("Do() = %v, want %q", v, "value")
	}
	if shared {
		t.Error("Do() shared = true for a lone caller, want false")
	}
}

func TestDoPropagatesError(t *testing.T) {
	g := New()
	boom := errors.New("boom")

	_, err, _ := g.Do(context.Background(), "key", func() (interface{}, error) {
		return nil, boom
	})
	if err != boom {
		t.Errorf("Do() error = %v, want %v", err, boom)
	}
}

func TestDoDeduplicatesConcurrentCallers(t *testing.T) {
	g := New()

	var calls int32
	release := make(chan struct{})
	fn := func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared", nil
	}

	const n = 25
	var wg sync.WaitGroup
	sharedCount := int32(0)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err, shared := g.Do(context.Background(), "hot", fn)
			if err != nil {
				t.Errorf("Do() error = %v", err)
				return
			}
			if v != "shared" {
				t.Errorf("Do() = %v, want %q", v, "shared")
			}
			if shared {
				atomic.AddInt32(&sharedCount, 1)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fn called %d times, want 1", got)
	}
	if got := atomic.LoadInt32(&sharedCount); got != n-1 {
		t.Errorf("shared reported by %d callers, want %d", got, n-1)
	}
}

func TestDoDistinctKeysRunIndependently(t *testing.T) {
	g := New()

	var calls int32
	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			g.Do(context.Background(), k, func() (interface{}, error) {
				atomic.AddInt32(&calls, 1)
				return k, nil
			})
		}(key)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("fn called %d times for 3 keys, want 3", got)
	}
}

func TestWaiterDetachesOnContextCancel(t *testing.T) {
	g := New()

	release := make(chan struct{})
	owner := make(chan struct{})
	go func() {
		g.Do(context.Background(), "key", func() (interface{}, error) {
			close(owner)
			<-release
			return "late", nil
		})
	}()
	<-owner

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err, shared := g.Do(ctx, "key", func() (interface{}, error) {
		t.Error("waiter must not execute the function")
		return nil, nil
	})
	close(release)

	if err != context.DeadlineExceeded {
		t.Errorf("Do() error = %v, want context.DeadlineExceeded", err)
	}
	if !shared {
		t.Error("Do() shared = false for a detached waiter, want true")
	}
}

func TestForgetAllowsNewExecution(t *testing.T) {
	g := New()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		g.Do(context.Background(), "key", func() (interface{}, error) {
			close(started)
			<-release
			return "first", nil
		})
	}()
	<-started

	g.Forget("key")

	v, err, shared := g.Do(context.Background(), "key", func() (interface{}, error) {
		return "second", nil
	})
	close(release)

	if err != nil {
		t.Fatalf("Do() after Forget error = %v", err)
	}
	if v != "second" || shared {
		t.Errorf("Do() after Forget = (%v, shared=%v), want fresh execution", v, shared)
	}
}
