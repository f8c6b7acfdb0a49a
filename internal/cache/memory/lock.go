package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shillz96/solsim-sub007/internal/domain"
)

type lease struct {
	token     string
	expiresAt time.Time
}

// LockManager implements domain.LockManager with an in-memory keyed mutex
// and TTL-bounded leases. It offers the same contract as the Redis-backed
// manager (bounded-time mutual exclusion with automatic expiry) for
// single-process deployments and tests. A crashed holder's lease simply
// expires; nothing is left permanently locked.
type LockManager struct {
	leases map[string]lease
	mu     sync.Mutex
}

// NewLockManager creates an empty in-memory LockManager.
func NewLockManager() *LockManager {
	return &LockManager{leases: make(map[string]lease)}
}

// Acquire attempts to obtain the lock for key with the given TTL. On success
// it returns an unlock function that is safe to call multiple times. It
// returns domain.ErrLockHeld when a live lease exists for the key.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if l, ok := lm.leases[key]; ok && time.Now().Before(l.expiresAt) {
		return nil, domain.ErrLockHeld
	}

	token := uuid.New().String()
	lm.leases[key] = lease{token: token, expiresAt: time.Now().Add(ttl)}

	released := false
	unlock := func() {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		if released {
			return
		}
		released = true

		// Only the holder of the current lease may release it; an expired
		// lease may already have been re-acquired by someone else.
		if l, ok := lm.leases[key]; ok && l.token == token {
			delete(lm.leases, key)
		}
	}

	return unlock, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
