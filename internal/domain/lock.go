package domain

import (
	"context"
	"errors"
	"time"
)

// lockRetryInterval is how often AcquireWait re-attempts a contended lock.
const lockRetryInterval = 100 * time.Millisecond

// AcquireWait repeatedly attempts lm.Acquire until it succeeds, the wait
// budget is exhausted, or ctx is cancelled. It returns ErrLockBusy when the
// lock could not be obtained within maxWait, so callers can surface a
// "try again" condition instead of blocking indefinitely.
func AcquireWait(ctx context.Context, lm LockManager, key string, ttl, maxWait time.Duration) (func(), error) {
	deadline := time.Now().Add(maxWait)

	for {
		unlock, err := lm.Acquire(ctx, key, ttl)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}
		if time.Now().Add(lockRetryInterval).After(deadline) {
			return nil, ErrLockBusy
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}
