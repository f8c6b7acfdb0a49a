package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Shillz96/solsim-sub007/internal/domain"
)

// PriceStore implements domain.PriceStore using PostgreSQL: one row per mint,
// holding the last successfully fetched price as the freshness-bounded
// fallback of last resort.
type PriceStore struct {
	pool *pgxpool.Pool
}

// NewPriceStore creates a new PriceStore backed by the given connection pool.
func NewPriceStore(pool *pgxpool.Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// Upsert records the latest observation for a mint, replacing any prior row.
func (s *PriceStore) Upsert(ctx context.Context, price domain.TokenPrice) error {
	const query = `
		INSERT INTO token_prices (mint, symbol, price_usd, price_sol, source,
			liquidity_usd, volume_24h_usd, fetched_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6::numeric, $7::numeric, $8)
		ON CONFLICT (mint) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			price_usd = EXCLUDED.price_usd,
			price_sol = EXCLUDED.price_sol,
			source = EXCLUDED.source,
			liquidity_usd = EXCLUDED.liquidity_usd,
			volume_24h_usd = EXCLUDED.volume_24h_usd,
			fetched_at = EXCLUDED.fetched_at`

	_, err := s.pool.Exec(ctx, query,
		price.Mint, price.Symbol,
		price.PriceUSD.String(), price.PriceSOL.String(), price.Source,
		price.LiquidityUSD.String(), price.Volume24hUSD.String(),
		price.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert price %s: %w", price.Mint, err)
	}
	return nil
}

// GetLatest returns the last persisted price for a mint.
// It returns domain.ErrNotFound when no price was ever recorded.
func (s *PriceStore) GetLatest(ctx context.Context, mint string) (domain.TokenPrice, error) {
	const query = `
		SELECT mint, symbol, price_usd::text, price_sol::text, source,
			liquidity_usd::text, volume_24h_usd::text, fetched_at
		FROM token_prices
		WHERE mint = $1`

	var p domain.TokenPrice
	var usd, sol, liq, vol string

	err := s.pool.QueryRow(ctx, query, mint).Scan(
		&p.Mint, &p.Symbol, &usd, &sol, &p.Source, &liq, &vol, &p.FetchedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TokenPrice{}, domain.ErrNotFound
		}
		return domain.TokenPrice{}, fmt.Errorf("postgres: get price %s: %w", mint, err)
	}

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&p.PriceUSD, usd}, {&p.PriceSOL, sol}, {&p.LiquidityUSD, liq}, {&p.Volume24hUSD, vol},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return domain.TokenPrice{}, fmt.Errorf("postgres: parse numeric %q: %w", f.src, err)
		}
		*f.dst = d
	}

	return p, nil
}

// Compile-time interface check.
var _ domain.PriceStore = (*PriceStore)(nil)
