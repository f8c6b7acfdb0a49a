package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Shillz96/solsim-sub007/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL. Trades are
// append-only; inserts happen inside PerpStore transactions.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, position_id, user_id, token_mint, action, direction,
	leverage, quantity::text, price::text, margin_sol::text,
	realized_pnl::text, fee_sol::text, created_at`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var action, direction string
		var quantity, price, marginSOL, pnl, fee string

		if err := rows.Scan(
			&t.ID, &t.PositionID, &t.UserID, &t.TokenMint,
			&action, &direction, &t.Leverage,
			&quantity, &price, &marginSOL, &pnl, &fee,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}

		t.Action = domain.TradeAction(action)
		t.Direction = domain.Direction(direction)

		var err error
		if t.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, err
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if t.MarginSOL, err = decimal.NewFromString(marginSOL); err != nil {
			return nil, err
		}
		if t.RealizedPnL, err = decimal.NewFromString(pnl); err != nil {
			return nil, err
		}
		if t.FeeSOL, err = decimal.NewFromString(fee); err != nil {
			return nil, err
		}

		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListByPosition returns all trades for a position in event order.
func (s *TradeStore) ListByPosition(ctx context.Context, positionID string) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + `
		FROM trades
		WHERE position_id = $1
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, positionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for position %s: %w", positionID, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades for position %s: %w", positionID, err)
	}
	return trades, nil
}

// ListByUser returns a user's trades, newest first.
func (s *TradeStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Trade, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + tradeSelectCols + `
		FROM trades
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, userID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for user %s: %w", userID, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades for user %s: %w", userID, err)
	}
	return trades, nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
