package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Shillz96/solsim-sub007/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis.
//
// Key schema:
//
//	price:{mint}      - JSON-serialized domain.TokenPrice with a TTL
//	price:neg:{mint}  - marker key recording a failed lookup, own TTL
//
// Entries are shared across all engine instances so horizontally-scaled
// scanners do not multiply external API load.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(mint string) string    { return "price:" + mint }
func negativeKey(mint string) string { return "price:neg:" + mint }

// SetPrice stores the latest observation for a mint with the given TTL.
func (pc *PriceCache) SetPrice(ctx context.Context, price domain.TokenPrice, ttl time.Duration) error {
	data, err := json.Marshal(price)
	if err != nil {
		return fmt.Errorf("redis: marshal price %s: %w", price.Mint, err)
	}
	if err := pc.rdb.Set(ctx, priceKey(price.Mint), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", price.Mint, err)
	}
	return nil
}

// GetPrice retrieves the cached observation for a mint.
// It returns domain.ErrNotFound when the key does not exist or has expired.
func (pc *PriceCache) GetPrice(ctx context.Context, mint string) (domain.TokenPrice, error) {
	data, err := pc.rdb.Get(ctx, priceKey(mint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.TokenPrice{}, domain.ErrNotFound
		}
		return domain.TokenPrice{}, fmt.Errorf("redis: get price %s: %w", mint, err)
	}

	var price domain.TokenPrice
	if err := json.Unmarshal(data, &price); err != nil {
		return domain.TokenPrice{}, fmt.Errorf("redis: unmarshal price %s: %w", mint, err)
	}
	return price, nil
}

// GetPrices retrieves cached observations for multiple mints using a
// pipeline. Mints whose keys do not exist are silently omitted.
func (pc *PriceCache) GetPrices(ctx context.Context, mints []string) (map[string]domain.TokenPrice, error) {
	if len(mints) == 0 {
		return map[string]domain.TokenPrice{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(mints))
	for _, mint := range mints {
		cmds[mint] = pipe.Get(ctx, priceKey(mint))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]domain.TokenPrice, len(mints))
	for mint, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var price domain.TokenPrice
		if err := json.Unmarshal(data, &price); err != nil {
			continue
		}
		result[mint] = price
	}

	return result, nil
}

// SetNegative records a failed lookup so repeated misses for a delisted or
// invalid mint do not hammer external sources.
func (pc *PriceCache) SetNegative(ctx context.Context, mint string, ttl time.Duration) error {
	if err := pc.rdb.Set(ctx, negativeKey(mint), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis: set negative %s: %w", mint, err)
	}
	return nil
}

// IsNegative reports whether the mint is currently negative-cached.
func (pc *PriceCache) IsNegative(ctx context.Context, mint string) (bool, error) {
	n, err := pc.rdb.Exists(ctx, negativeKey(mint)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: check negative %s: %w", mint, err)
	}
	return n > 0, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
