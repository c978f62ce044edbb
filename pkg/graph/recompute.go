package graph

import (
	"context"
	"sync"
	"time"

	"github.com/nexuslab/nexus/pkg/leaselock"
)

// RecomputeLockKey serializes graph-wide recompute work such as summary
// backfills. Only one holder may run at a time across all instances.
const RecomputeLockKey = "graph_recompute"

// Guard serializes exclusive graph work under a named lock. Implementations
// return leaselock.ErrBusy without waiting when the lock is held elsewhere.
type Guard interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// LeaseGuard backs the Guard with database lease locks, giving exclusion
// across processes.
type LeaseGuard struct {
	client *leaselock.Client
	ttl    time.Duration
}

func NewLeaseGuard(client *leaselock.Client, ttl time.Duration) *LeaseGuard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &LeaseGuard{client: client, ttl: ttl}
}

func (g *LeaseGuard) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return g.client.WithLease(ctx, key, leaselock.Options{TTL: g.ttl}, fn)
}

// LocalGuard is an in-process Guard for store backends without lease lock
// support. Exclusion only holds within one process.
type LocalGuard struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{locks: make(map[string]*sync.Mutex)}
}

func (g *LocalGuard) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	g.mu.Lock()
	lock, ok := g.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[key] = lock
	}
	g.mu.Unlock()

	if !lock.TryLock() {
		return leaselock.ErrBusy
	}
	defer lock.Unlock()
	return fn(ctx)
}
