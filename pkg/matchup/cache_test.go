package matchup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingProvider struct {
	calls atomic.Int64
	fail  atomic.Bool
}

func (p *countingProvider) TeamSnapshot(_ context.Context, key SnapshotKey) (Snapshot, error) {
	p.calls.Add(1)
	if p.fail.Load() {
		return nil, errors.New("upstream down")
	}
	return Snapshot{"B_HR": float64(len(key.Team))}, nil
}

func TestSnapshotCacheMemoizes(t *testing.T) {
	p := &countingProvider{}
	c := NewSnapshotCache(p)
	c.SetRateLimit(1000, 1000)

	key := SnapshotKey{Season: 2025, AsOf: time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), Team: "NYY"}
	for i := 0; i < 5; i++ {
		snap, err := c.GetOrFetch(context.Background(), key)
		if err != nil {
			t.Fatalf("GetOrFetch: %v", err)
		}
		if snap["B_HR"] != 3 {
			t.Fatalf("snap = %v", snap)
		}
	}
	if got := p.calls.Load(); got != 1 {
		t.Errorf("provider called %d times, want 1", got)
	}
	if c.Len() != 1 {
		t.Errorf("cache len = %d, want 1", c.Len())
	}
}

func TestSnapshotCacheSharesConcurrentFetch(t *testing.T) {
	p := &countingProvider{}
	c := NewSnapshotCache(p)
	c.SetRateLimit(1000, 1000)

	key := SnapshotKey{Season: 2025, Team: "BOS"}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetOrFetch(context.Background(), key); err != nil {
				t.Errorf("GetOrFetch: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := p.calls.Load(); got != 1 {
		t.Errorf("provider called %d times under concurrency, want 1", got)
	}
}

func TestSnapshotCacheDoesNotCacheErrors(t *testing.T) {
	p := &countingProvider{}
	p.fail.Store(true)
	c := NewSnapshotCache(p)
	c.SetRateLimit(1000, 1000)

	key := SnapshotKey{Season: 2025, Team: "CHC"}
	if _, err := c.GetOrFetch(context.Background(), key); err == nil {
		t.Fatal("expected fetch error")
	}
	if c.Len() != 0 {
		t.Fatalf("error was cached, len = %d", c.Len())
	}

	p.fail.Store(false)
	snap, err := c.GetOrFetch(context.Background(), key)
	if err != nil {
		t.Fatalf("retry after error: %v", err)
	}
	if snap == nil {
		t.Fatal("retry returned nil snapshot")
	}
	if got := p.calls.Load(); got != 2 {
		t.Errorf("provider called %d times, want 2", got)
	}
}
