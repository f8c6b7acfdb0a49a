package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Shillz96/solsim-sub007/internal/domain"
)

// uniqueViolation is the PostgreSQL error code raised when the one-open-
// position-per-(user, mint) partial index is violated.
const uniqueViolation = "23505"

// PerpStore implements domain.PerpStore. Every method is a single pgx
// transaction over the wallet, position, trade and liquidation tables: the
// ledger mutation and the row inserts either all land or none do.
type PerpStore struct {
	pool *pgxpool.Pool
}

// NewPerpStore creates a new PerpStore backed by the given connection pool.
func NewPerpStore(pool *pgxpool.Pool) *PerpStore {
	return &PerpStore{pool: pool}
}

const insertTradeSQL = `
	INSERT INTO trades (id, position_id, user_id, token_mint, action, direction,
		leverage, quantity, price, margin_sol, realized_pnl, fee_sol, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7,
		$8::numeric, $9::numeric, $10::numeric, $11::numeric, $12::numeric, $13)`

func tradeArgs(t domain.Trade) []any {
	return []any{
		t.ID, t.PositionID, t.UserID, t.TokenMint,
		string(t.Action), string(t.Direction), t.Leverage,
		t.Quantity.String(), t.Price.String(), t.MarginSOL.String(),
		t.RealizedPnL.String(), t.FeeSOL.String(), t.CreatedAt,
	}
}

// OpenPosition debits the wallet and inserts the position with its open
// trade, all in one transaction. It returns domain.ErrInsufficientFunds when
// the wallet cannot cover debitSOL and domain.ErrPositionExists when the
// user already holds an open position on the mint.
func (s *PerpStore) OpenPosition(ctx context.Context, pos domain.Position, trade domain.Trade, debitSOL decimal.Decimal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: open position begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := debitWallet(ctx, tx, pos.UserID, debitSOL); err != nil {
		return err
	}

	const insertPos = `
		INSERT INTO positions (id, user_id, token_mint, token_symbol, direction,
			leverage, entry_price, current_price, size, margin_sol,
			unrealized_pnl, margin_ratio, liquidation_price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6,
			$7::numeric, $8::numeric, $9::numeric, $10::numeric,
			$11::numeric, $12::numeric, $13::numeric, $14, $15)`

	_, err = tx.Exec(ctx, insertPos,
		pos.ID, pos.UserID, pos.TokenMint, pos.TokenSymbol, string(pos.Direction),
		pos.Leverage, pos.EntryPrice.String(), pos.CurrentPrice.String(),
		pos.Size.String(), pos.MarginSOL.String(),
		pos.UnrealizedPnL.String(), pos.MarginRatio.String(),
		pos.LiquidationPrice.String(), string(pos.Status), pos.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrPositionExists
		}
		return fmt.Errorf("postgres: insert position %s: %w", pos.ID, err)
	}

	if _, err := tx.Exec(ctx, insertTradeSQL, tradeArgs(trade)...); err != nil {
		return fmt.Errorf("postgres: insert open trade %s: %w", trade.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: open position commit: %w", err)
	}
	return nil
}

// ClosePosition transitions an open position to closed, records the close
// trade, and credits the payout, all in one transaction. The conditional
// UPDATE doubles as the idempotence guard: a position that is no longer open
// yields domain.ErrPositionNotOpen and nothing is written.
func (s *PerpStore) ClosePosition(ctx context.Context, pos domain.Position, trade domain.Trade, payoutSOL decimal.Decimal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: close position begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE positions
		SET status = 'closed', closed_at = $2,
		    current_price = $3::numeric, unrealized_pnl = $4::numeric,
		    margin_ratio = $5::numeric
		WHERE id = $1 AND status = 'open'`,
		pos.ID, pos.ClosedAt,
		pos.CurrentPrice.String(), pos.UnrealizedPnL.String(), pos.MarginRatio.String(),
	)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", pos.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPositionNotOpen
	}

	if _, err := tx.Exec(ctx, insertTradeSQL, tradeArgs(trade)...); err != nil {
		return fmt.Errorf("postgres: insert close trade %s: %w", trade.ID, err)
	}

	if payoutSOL.IsPositive() {
		if err := creditWallet(ctx, tx, pos.UserID, payoutSOL); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: close position commit: %w", err)
	}
	return nil
}

// LiquidatePosition transitions an open position to liquidated and records
// the liquidate trade plus the liquidation row, all in one transaction. The
// posted collateral is forfeited: no wallet credit occurs. Like close, the
// conditional UPDATE guards against double liquidation.
func (s *PerpStore) LiquidatePosition(ctx context.Context, pos domain.Position, trade domain.Trade, liq domain.Liquidation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: liquidate begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE positions
		SET status = 'liquidated', closed_at = $2,
		    current_price = $3::numeric, unrealized_pnl = $4::numeric,
		    margin_ratio = $5::numeric
		WHERE id = $1 AND status = 'open'`,
		pos.ID, pos.ClosedAt,
		pos.CurrentPrice.String(), pos.UnrealizedPnL.String(), pos.MarginRatio.String(),
	)
	if err != nil {
		return fmt.Errorf("postgres: liquidate position %s: %w", pos.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPositionNotOpen
	}

	if _, err := tx.Exec(ctx, insertTradeSQL, tradeArgs(trade)...); err != nil {
		return fmt.Errorf("postgres: insert liquidate trade %s: %w", trade.ID, err)
	}

	const insertLiq = `
		INSERT INTO liquidations (id, position_id, user_id, token_mint,
			price, margin_lost_sol, fee_sol, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8)`

	if _, err := tx.Exec(ctx, insertLiq,
		liq.ID, liq.PositionID, liq.UserID, liq.TokenMint,
		liq.Price.String(), liq.MarginLostSOL.String(), liq.FeeSOL.String(),
		liq.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert liquidation %s: %w", liq.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: liquidate commit: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PerpStore = (*PerpStore)(nil)
