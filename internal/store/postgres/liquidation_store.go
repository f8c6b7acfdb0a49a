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

// LiquidationStore implements domain.LiquidationStore using PostgreSQL.
// Rows are inserted only inside PerpStore.LiquidatePosition transactions;
// the position_id UNIQUE constraint backs the exactly-once guarantee.
type LiquidationStore struct {
	pool *pgxpool.Pool
}

// NewLiquidationStore creates a new LiquidationStore backed by the given pool.
func NewLiquidationStore(pool *pgxpool.Pool) *LiquidationStore {
	return &LiquidationStore{pool: pool}
}

const liquidationSelectCols = `id, position_id, user_id, token_mint,
	price::text, margin_lost_sol::text, fee_sol::text, created_at`

func scanLiquidationRow(row pgx.Row) (domain.Liquidation, error) {
	var l domain.Liquidation
	var price, marginLost, fee string

	err := row.Scan(
		&l.ID, &l.PositionID, &l.UserID, &l.TokenMint,
		&price, &marginLost, &fee, &l.CreatedAt,
	)
	if err != nil {
		return domain.Liquidation{}, err
	}

	if l.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Liquidation{}, err
	}
	if l.MarginLostSOL, err = decimal.NewFromString(marginLost); err != nil {
		return domain.Liquidation{}, err
	}
	if l.FeeSOL, err = decimal.NewFromString(fee); err != nil {
		return domain.Liquidation{}, err
	}
	return l, nil
}

// GetByPosition returns the liquidation record for a position.
// It returns domain.ErrNotFound when the position was never liquidated.
func (s *LiquidationStore) GetByPosition(ctx context.Context, positionID string) (domain.Liquidation, error) {
	query := `SELECT ` + liquidationSelectCols + ` FROM liquidations WHERE position_id = $1`

	l, err := scanLiquidationRow(s.pool.QueryRow(ctx, query, positionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Liquidation{}, domain.ErrNotFound
		}
		return domain.Liquidation{}, fmt.Errorf("postgres: get liquidation for %s: %w", positionID, err)
	}
	return l, nil
}

// ListRecent returns the most recent liquidations, newest first.
func (s *LiquidationStore) ListRecent(ctx context.Context, limit int) ([]domain.Liquidation, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + liquidationSelectCols + `
		FROM liquidations
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent liquidations: %w", err)
	}
	defer rows.Close()

	var out []domain.Liquidation
	for rows.Next() {
		l, err := scanLiquidationRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan liquidation: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recent liquidations: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.LiquidationStore = (*LiquidationStore)(nil)
