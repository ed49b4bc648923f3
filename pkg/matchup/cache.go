package matchup

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

const (
	// Snapshot sources throttle aggressively; stay well under.
	defaultSnapshotRate  = 1.0 // requests per second
	defaultSnapshotBurst = 2
)

// SnapshotCache memoizes as-of snapshots around a SnapshotProvider so
// one run featurizing many fixtures on the same date resolves each
// (season, as-of, team) key once. The underlying fetch is rate limited.
//
// The cache is an explicit injected object, not package state, so the
// assembler stays testable without network access.
type SnapshotCache struct {
	provider SnapshotProvider
	limiter  *rate.Limiter

	mu      sync.Mutex
	entries map[SnapshotKey]Snapshot
	pending map[SnapshotKey]*snapshotCall
}

type snapshotCall struct {
	done chan struct{}
	snap Snapshot
	err  error
}

// NewSnapshotCache wraps a provider with memoization and rate limiting.
func NewSnapshotCache(provider SnapshotProvider) *SnapshotCache {
	return &SnapshotCache{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(defaultSnapshotRate), defaultSnapshotBurst),
		entries:  make(map[SnapshotKey]Snapshot),
		pending:  make(map[SnapshotKey]*snapshotCall),
	}
}

// SetRateLimit overrides the fetch rate limit.
func (c *SnapshotCache) SetRateLimit(rps float64, burst int) {
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// GetOrFetch returns the cached snapshot for key, fetching it through
// the provider on first use. Concurrent callers for the same key share
// a single fetch. Errors are not cached; a later call retries.
func (c *SnapshotCache) GetOrFetch(ctx context.Context, key SnapshotKey) (Snapshot, error) {
	c.mu.Lock()
	if snap, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return snap, nil
	}
	if call, ok := c.pending[key]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.snap, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &snapshotCall{done: make(chan struct{})}
	c.pending[key] = call
	c.mu.Unlock()

	call.snap, call.err = c.fetch(ctx, key)

	c.mu.Lock()
	delete(c.pending, key)
	if call.err == nil {
		c.entries[key] = call.snap
	}
	c.mu.Unlock()
	close(call.done)

	return call.snap, call.err
}

func (c *SnapshotCache) fetch(ctx context.Context, key SnapshotKey) (Snapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	snap, err := c.provider.TeamSnapshot(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s %s: %w", key.Team, key.AsOf.Format("2006-01-02"), err)
	}
	return snap, nil
}

// Len returns the number of cached snapshots.
func (c *SnapshotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
