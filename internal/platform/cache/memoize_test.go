package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWithCache_HitAvoidsCall(t *testing.T) {
	c := NewMemoryCache(WithSweepInterval(-1))
	defer c.Close()

	var calls int32
	m := WithCache(c, func(ctx context.Context, id int) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "product-" + strconv.Itoa(id), nil
	}, strconv.Itoa, WithKeyPrefix("product:"))

	for i := 0; i < 3; i++ {
		got, err := m.Call(context.Background(), 7)
		if err != nil {
			t.Fatal(err)
		}
		if got != "product-7" {
			t.Errorf("got %q", got)
		}
	}

	if calls != 1 {
		t.Errorf("wrapped fn called %d times, want 1", calls)
	}
	if !c.Has("product:7") {
		t.Error("expected prefixed key in cache")
	}

	t.Log("✓ Cached results are served without calling the backend")
}

func TestWithCache_NilInterfaceResult(t *testing.T) {
	c := NewMemoryCache(WithSweepInterval(-1))
	defer c.Close()

	var calls int32
	m := WithCache(c, func(ctx context.Context, slug string) (fmt.Stringer, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil // no featured banner for this category
	}, func(s string) string { return s }, WithKeyPrefix("banner:"))

	for i := 0; i < 2; i++ {
		got, err := m.Call(context.Background(), "succulents")
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Errorf("got %v, want nil", got)
		}
	}
	if calls != 1 {
		t.Errorf("wrapped fn called %d times, want 1", calls)
	}

	t.Log("✓ A nil interface result is returned and cached without panicking")
}

func TestWithCache_ErrorsAreNotCached(t *testing.T) {
	c := NewMemoryCache(WithSweepInterval(-1))
	defer c.Close()

	calls := 0
	boom := errors.New("backend down")
	m := WithCache(c, func(ctx context.Context, q string) (int, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return 3, nil
	}, func(q string) string { return q })

	if _, err := m.Call(context.Background(), "roses"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatal("failed result was cached")
	}

	got, err := m.Call(context.Background(), "roses")
	if err != nil || got != 3 {
		t.Fatalf("got %d, %v; want 3, nil", got, err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestWithCache_CoalescesConcurrentMisses(t *testing.T) {
	c := NewMemoryCache(WithSweepInterval(-1))
	defer c.Close()

	var calls int32
	release := make(chan struct{})
	m := WithCache(c, func(ctx context.Context, id int) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return id * 2, nil
	}, strconv.Itoa)

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = m.Call(context.Background(), 21)
		}(i)
	}

	time.Sleep(30 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("wrapped fn called %d times, want 1", calls)
	}
	for i, r := range results {
		if r != 42 {
			t.Errorf("result[%d] = %d, want 42", i, r)
		}
	}
}

func TestWithCache_InvalidateFencesInFlightCall(t *testing.T) {
	c := NewMemoryCache(WithSweepInterval(-1))
	defer c.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	m := WithCache(c, func(ctx context.Context, id int) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
			return "stale", nil
		}
		return "fresh", nil
	}, strconv.Itoa)

	done := make(chan string)
	go func() {
		v, _ := m.Call(context.Background(), 1)
		done <- v
	}()

	<-started
	m.Invalidate(1)
	close(release)

	// the slow caller still gets its own answer
	if v := <-done; v != "stale" {
		t.Errorf("in-flight caller got %q, want stale", v)
	}

	// but it was not written to the cache
	if c.Has("1") {
		t.Fatal("stale result was cached after invalidation")
	}

	v, err := m.Call(context.Background(), 1)
	if err != nil || v != "fresh" {
		t.Fatalf("got %q, %v; want fresh", v, err)
	}

	t.Log("✓ Results started before an invalidation are not cached")
}

func TestWithCache_InvalidateAll(t *testing.T) {
	c := NewMemoryCache(WithSweepInterval(-1))
	defer c.Close()

	m := WithCache(c, func(ctx context.Context, id int) (int, error) {
		return id, nil
	}, strconv.Itoa, WithKeyPrefix("p:"))

	c.Set("other", "keep", 0)
	for i := 0; i < 3; i++ {
		_, _ = m.Call(context.Background(), i)
	}

	m.InvalidateAll()

	if c.Len() != 1 || !c.Has("other") {
		t.Errorf("InvalidateAll should only drop prefixed keys, keys = %v", c.Stats().Keys)
	}
}

func TestWithCache_TTL(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	defer c.Close()

	calls := 0
	m := WithCache(c, func(ctx context.Context, _ struct{}) (int, error) {
		calls++
		return calls, nil
	}, func(struct{}) string { return "categories" }, WithTTL(10*time.Second))

	_, _ = m.Call(context.Background(), struct{}{})
	clock.Advance(11 * time.Second)
	got, _ := m.Call(context.Background(), struct{}{})

	if got != 2 {
		t.Errorf("expected refetch after ttl, got call #%d", got)
	}
}
