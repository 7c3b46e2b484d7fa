// Package guard serializes access to the local working copy across
// processes. The repository tooling's internal state cannot survive two
// local actors mutating the same working copy at once, so every
// load→compute→save cycle runs under a Guard.
package guard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"pdm-go/internal/pdm"
)

// DefaultWait bounds how long a guard waits for the lock before failing
// with pdm.ErrBusy. Callers surface that as "try again" rather than
// queueing indefinitely.
const DefaultWait = 5 * time.Second

// retryInterval is how often the flock acquisition is retried while
// waiting.
const retryInterval = 100 * time.Millisecond

// FlockGuard is a cross-process advisory file lock. The lock file lives
// next to the working copy, never inside it, so it survives resets of the
// copy itself.
type FlockGuard struct {
	path string
	wait time.Duration
}

var _ pdm.Guard = (*FlockGuard)(nil)

// NewFlockGuard creates a guard locking on path, waiting at most wait for
// acquisition. wait <= 0 selects DefaultWait.
func NewFlockGuard(path string, wait time.Duration) (*FlockGuard, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	if wait <= 0 {
		wait = DefaultWait
	}
	return &FlockGuard{path: path, wait: wait}, nil
}

// LockPathFor derives the default lock file location for a working copy:
// a sibling of the directory, never inside it.
func LockPathFor(workDir string) string {
	return filepath.Clean(workDir) + ".lock"
}

// WithLock runs fn while holding the file lock. Acquisition is bounded;
// on timeout WithLock fails with pdm.ErrBusy without running fn. The lock
// is released on every exit path.
func (g *FlockGuard) WithLock(ctx context.Context, fn func() error) error {
	lock := flock.New(g.path)

	waitCtx, cancel := context.WithTimeout(ctx, g.wait)
	defer cancel()

	locked, err := lock.TryLockContext(waitCtx, retryInterval)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("acquiring working-copy lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock on %s not acquired within %s: %w", g.path, g.wait, pdm.ErrBusy)
	}
	defer lock.Unlock()

	return fn()
}
