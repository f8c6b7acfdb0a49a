package domain

import (
	"context"
	"time"
)

// RateLimiter bounds request rates per key over a sliding window.
type RateLimiter interface {
	// Allow reports whether one more request for key fits under limit
	// within window, counting the request when it does.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// PriceCache is the shared (cross-process) price cache. Implementations are
// allowed to serve entries that are stale within their TTL; staleness is
// bounded, not eliminated.
type PriceCache interface {
	SetPrice(ctx context.Context, price TokenPrice, ttl time.Duration) error
	// GetPrice returns ErrNotFound when the mint is absent or expired.
	GetPrice(ctx context.Context, mint string) (TokenPrice, error)
	// GetPrices returns the cached subset; missing mints are omitted.
	GetPrices(ctx context.Context, mints []string) (map[string]TokenPrice, error)
	// SetNegative records that a lookup for mint failed, suppressing live
	// fetches for the duration of the TTL.
	SetNegative(ctx context.Context, mint string, ttl time.Duration) error
	IsNegative(ctx context.Context, mint string) (bool, error)
}
