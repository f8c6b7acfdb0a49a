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

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Numeric columns are selected as text and parsed into decimals so margin
// arithmetic never round-trips through binary floating point.
const positionSelectCols = `id, user_id, token_mint, token_symbol, direction, leverage,
	entry_price::text, current_price::text, size::text, margin_sol::text,
	unrealized_pnl::text, margin_ratio::text, liquidation_price::text,
	status, created_at, closed_at`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var direction, status string
	var entry, current, size, marginSOL, upnl, ratio, liqPrice string

	err := row.Scan(
		&p.ID, &p.UserID, &p.TokenMint, &p.TokenSymbol,
		&direction, &p.Leverage,
		&entry, &current, &size, &marginSOL,
		&upnl, &ratio, &liqPrice,
		&status, &p.CreatedAt, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}

	p.Direction = domain.Direction(direction)
	p.Status = domain.PositionStatus(status)

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&p.EntryPrice, entry},
		{&p.CurrentPrice, current},
		{&p.Size, size},
		{&p.MarginSOL, marginSOL},
		{&p.UnrealizedPnL, upnl},
		{&p.MarginRatio, ratio},
		{&p.LiquidationPrice, liqPrice},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return domain.Position{}, fmt.Errorf("parse numeric %q: %w", f.src, err)
		}
		*f.dst = d
	}

	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// GetByID returns a position by its ID.
// It returns domain.ErrNotFound when no such position exists.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE id = $1`

	p, err := scanPositionRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// GetOpenByUserMint returns the single open position for (user, mint).
// It returns domain.ErrNotFound when the user has no open position there.
func (s *PositionStore) GetOpenByUserMint(ctx context.Context, userID, mint string) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions
		WHERE user_id = $1 AND token_mint = $2 AND status = 'open'`

	p, err := scanPositionRow(s.pool.QueryRow(ctx, query, userID, mint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get open position %s/%s: %w", userID, mint, err)
	}
	return p, nil
}

// ListOpenByUser returns all open positions for a user.
func (s *PositionStore) ListOpenByUser(ctx context.Context, userID string) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions
		WHERE user_id = $1 AND status = 'open'
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions for %s: %w", userID, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions for %s: %w", userID, err)
	}
	return positions, nil
}

// ListOpenByRisk returns open positions ordered by ascending stored margin
// ratio, most at-risk first, capped at limit.
func (s *PositionStore) ListOpenByRisk(ctx context.Context, limit int) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions
		WHERE status = 'open'
		ORDER BY margin_ratio ASC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions by risk: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions by risk: %w", err)
	}
	return positions, nil
}

// ListHistory returns a user's positions, newest first.
func (s *PositionStore) ListHistory(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + positionSelectCols + `
		FROM positions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, userID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list position history for %s: %w", userID, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan position history for %s: %w", userID, err)
	}
	return positions, nil
}

// UpdateHealth persists refreshed derived fields on an open position so
// stale readers see near-live health. Terminal positions are left untouched.
func (s *PositionStore) UpdateHealth(ctx context.Context, id string, currentPrice, unrealizedPnL, marginRatio decimal.Decimal) error {
	const query = `
		UPDATE positions
		SET current_price = $2::numeric,
		    unrealized_pnl = $3::numeric,
		    margin_ratio = $4::numeric
		WHERE id = $1 AND status = 'open'`

	if _, err := s.pool.Exec(ctx, query, id,
		currentPrice.String(), unrealizedPnL.String(), marginRatio.String(),
	); err != nil {
		return fmt.Errorf("postgres: update position health %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
