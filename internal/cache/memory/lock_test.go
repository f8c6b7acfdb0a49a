package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shillz96/solsim-sub007/internal/domain"
)

func TestLockMutualExclusion(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "position:abc", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "position:abc", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	// A different key is independent.
	unlock2, err := lm.Acquire(ctx, "position:def", time.Minute)
	require.NoError(t, err)
	unlock2()

	unlock()

	// Released lock can be re-acquired.
	unlock3, err := lm.Acquire(ctx, "position:abc", time.Minute)
	require.NoError(t, err)
	unlock3()
}

func TestLockLeaseExpiry(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()

	_, err := lm.Acquire(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	// The lease has expired, so a new holder may take over even though the
	// first unlock was never called.
	unlock, err := lm.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	unlock()
}

func TestUnlockIdempotentAndScoped(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()

	unlock1, err := lm.Acquire(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	unlock2, err := lm.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	// The stale holder's unlock must not release the new holder's lease.
	unlock1()
	unlock1()

	_, err = lm.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock2()
}

func TestLockSingleWinnerUnderContention(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()

	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lm.Acquire(ctx, "contended", time.Minute); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestAcquireWaitTimesOut(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	defer unlock()

	_, err = domain.AcquireWait(ctx, lm, "k", time.Minute, 150*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrLockBusy)
}

func TestAcquireWaitSucceedsAfterRelease(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		unlock()
	}()

	unlock2, err := domain.AcquireWait(ctx, lm, "k", time.Minute, time.Second)
	require.NoError(t, err)
	unlock2()
}
