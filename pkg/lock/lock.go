// Package lock provides advisory per-key locks used to serialize booking
// commits on one vehicle across service instances.
package lock

import (
	"context"
	"errors"
	"time"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Lease is a held lock. Release is safe to call after the lease expired; it
// never removes a lock another holder has taken since.
type Lease interface {
	Release(ctx context.Context) error
}

type Locker interface {
	// Acquire blocks until key is held, the locker's wait budget runs out
	// (ErrNotAcquired) or ctx is done.
	Acquire(ctx context.Context, key string) (Lease, error)
}

type noopLocker struct{}

type noopLease struct{}

// Noop returns a Locker that always succeeds immediately.
func Noop() Locker {
	return noopLocker{}
}

func (noopLocker) Acquire(context.Context, string) (Lease, error) {
	return noopLease{}, nil
}

func (noopLease) Release(context.Context) error {
	return nil
}

const (
	initialBackoff = 20 * time.Millisecond
	maxBackoff     = 250 * time.Millisecond
)

// tryFunc makes one acquisition attempt. ok=false with a nil error means the
// key is held by someone else.
type tryFunc func(ctx context.Context) (lease Lease, ok bool, err error)

// acquireWithin retries try with growing backoff until it succeeds, fails, or
// wait elapses. A zero wait makes a single attempt.
func acquireWithin(ctx context.Context, wait time.Duration, try tryFunc) (Lease, error) {
	deadline := time.Now().Add(wait)
	backoff := initialBackoff

	for {
		lease, ok, err := try(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			return lease, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrNotAcquired
		}

		timer := time.NewTimer(min(backoff, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
