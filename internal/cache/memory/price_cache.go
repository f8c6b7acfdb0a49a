// Package memory provides process-local fallbacks for the shared cache
// layer: a TTL price map used when Redis is unreachable, and a keyed TTL
// mutex satisfying the lock contract for single-node deployments and tests.
package memory

import (
	"sync"
	"time"

	"github.com/Shillz96/solsim-sub007/internal/domain"
)

type priceEntry struct {
	price     domain.TokenPrice
	expiresAt time.Time
}

// PriceCache is a mutex-guarded TTL map of recent price observations. It is
// a disposable read-through fallback, never the source of truth: entries are
// written alongside every shared-cache write and consulted only when the
// shared cache errors.
type PriceCache struct {
	ttl     time.Duration
	entries map[string]priceEntry
	mu      sync.RWMutex
}

// NewPriceCache creates a PriceCache whose entries expire after ttl.
func NewPriceCache(ttl time.Duration) *PriceCache {
	return &PriceCache{
		ttl:     ttl,
		entries: make(map[string]priceEntry),
	}
}

// Set records an observation for the mint.
func (pc *PriceCache) Set(price domain.TokenPrice) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.entries[price.Mint] = priceEntry{
		price:     price,
		expiresAt: time.Now().Add(pc.ttl),
	}
}

// Get returns the cached observation for mint, or false when absent or
// expired. Expired entries are removed on read.
func (pc *PriceCache) Get(mint string) (domain.TokenPrice, bool) {
	pc.mu.RLock()
	e, ok := pc.entries[mint]
	pc.mu.RUnlock()
	if !ok {
		return domain.TokenPrice{}, false
	}
	if time.Now().After(e.expiresAt) {
		pc.mu.Lock()
		delete(pc.entries, mint)
		pc.mu.Unlock()
		return domain.TokenPrice{}, false
	}
	return e.price, true
}
