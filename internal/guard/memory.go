package guard

import (
	"context"
	"fmt"
	"time"

	"pdm-go/internal/pdm"
)

// MemoryGuard is an in-process guard with the same bounded-wait semantics
// as FlockGuard. It serializes goroutines within one process; use it for
// tests and single-process embedding.
type MemoryGuard struct {
	sem  chan struct{}
	wait time.Duration
}

var _ pdm.Guard = (*MemoryGuard)(nil)

// NewMemoryGuard creates a MemoryGuard. wait <= 0 selects DefaultWait.
func NewMemoryGuard(wait time.Duration) *MemoryGuard {
	if wait <= 0 {
		wait = DefaultWait
	}
	sem := make(chan struct{}, 1)
	sem <- struct{}{}
	return &MemoryGuard{sem: sem, wait: wait}
}

// WithLock runs fn while holding the in-process lock, failing with
// pdm.ErrBusy when it cannot be acquired within the wait bound.
func (g *MemoryGuard) WithLock(ctx context.Context, fn func() error) error {
	timer := time.NewTimer(g.wait)
	defer timer.Stop()

	select {
	case <-g.sem:
	case <-ctx.Done():
		return fmt.Errorf("waiting for working-copy lock: %w", ctx.Err())
	case <-timer.C:
		return fmt.Errorf("lock not acquired within %s: %w", g.wait, pdm.ErrBusy)
	}
	defer func() { g.sem <- struct{}{} }()

	return fn()
}
