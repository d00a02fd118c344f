// Package lock provides a mutex whose acquisition gives up after a bound.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/rbattiston/SNRv9-sub001/internal/types"
	"golang.org/x/sync/semaphore"
)

// DefaultTimeout is the bounded wait used when none is configured.
const DefaultTimeout = 100 * time.Millisecond

// Timed is a mutual-exclusion lock with a bounded wait. The zero value is
// not usable; construct with NewTimed.
type Timed struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

func NewTimed(timeout time.Duration) *Timed {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Timed{
		sem:     semaphore.NewWeighted(1),
		timeout: timeout,
	}
}

// Lock waits up to the configured timeout. A failed acquisition wraps
// types.ErrTimeout.
func (l *Timed) Lock() error {
	return l.LockContext(context.Background())
}

// LockContext waits until ctx is done or the timeout expires, whichever
// comes first.
func (l *Timed) LockContext(ctx context.Context) error {
	if l.sem.TryAcquire(1) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("lock not acquired within %s: %w", l.timeout, types.ErrTimeout)
	}
	return nil
}

func (l *Timed) Unlock() {
	l.sem.Release(1)
}

func (l *Timed) Timeout() time.Duration {
	return l.timeout
}
