package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrComputeCachesUntilExpiry(t *testing.T) {
	c := NewTTL()
	now := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	var calls int
	produce := func(context.Context) (any, error) {
		calls++
		return calls, nil
	}
	for i := 0; i < 3; i++ {
		v, err := c.GetOrCompute(context.Background(), "k", time.Minute, produce)
		if err != nil || v.(int) != 1 {
			t.Fatalf("expected cached 1, got %v %v", v, err)
		}
	}

	now = now.Add(time.Minute)
	v, _ := c.GetOrCompute(context.Background(), "k", time.Minute, produce)
	if v.(int) != 2 {
		t.Fatalf("expected recompute after expiry, got %v", v)
	}
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	c := NewTTL()
	boom := errors.New("boom")
	if _, err := c.GetOrCompute(context.Background(), "k", time.Minute, func(context.Context) (any, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("errors must not be cached")
	}
}

func TestGetOrComputeSharesConcurrentMisses(t *testing.T) {
	c := NewTTL()
	var calls atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.GetOrCompute(context.Background(), "k", time.Minute, func(context.Context) (any, error) {
				calls.Add(1)
				<-release
				return "v", nil
			})
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if calls.Load() != 1 {
		t.Fatalf("expected one shared computation, got %d", calls.Load())
	}
}

func TestPurgeRemovesExpired(t *testing.T) {
	c := NewTTL()
	now := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Hour)
	now = now.Add(time.Minute)
	if removed := c.Purge(); removed != 1 || c.Len() != 1 {
		t.Fatalf("expected one purged entry, got %d (len %d)", removed, c.Len())
	}
}
