package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// PositionStore reads positions and refreshes their derived health fields.
type PositionStore interface {
	GetByID(ctx context.Context, id string) (Position, error)
	GetOpenByUserMint(ctx context.Context, userID, mint string) (Position, error)
	ListOpenByUser(ctx context.Context, userID string) ([]Position, error)
	// ListOpenByRisk returns open positions ordered by ascending stored
	// margin ratio (most at-risk first), capped at limit.
	ListOpenByRisk(ctx context.Context, limit int) ([]Position, error)
	ListHistory(ctx context.Context, userID string, opts ListOpts) ([]Position, error)
	// UpdateHealth persists refreshed derived fields on an open position.
	UpdateHealth(ctx context.Context, id string, currentPrice, unrealizedPnL, marginRatio decimal.Decimal) error
}

// TradeStore reads the append-only trade ledger.
type TradeStore interface {
	ListByPosition(ctx context.Context, positionID string) ([]Trade, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Trade, error)
}

// LiquidationStore reads liquidation records.
type LiquidationStore interface {
	GetByPosition(ctx context.Context, positionID string) (Liquidation, error)
	ListRecent(ctx context.Context, limit int) ([]Liquidation, error)
}

// PerpStore executes the multi-row state transitions of the position
// lifecycle. Each method is one atomic transaction: either every write in it
// is persisted or none is.
type PerpStore interface {
	// OpenPosition debits the user's wallet by debitSOL (margin plus open
	// fee), inserts the position and its open trade. Returns
	// ErrInsufficientFunds when the wallet cannot cover the debit.
	OpenPosition(ctx context.Context, pos Position, trade Trade, debitSOL decimal.Decimal) error
	// ClosePosition marks the position closed, inserts the close trade and
	// credits the user's wallet with payoutSOL (may be zero, never negative).
	// Returns ErrPositionNotOpen when the position was already terminal.
	ClosePosition(ctx context.Context, pos Position, trade Trade, payoutSOL decimal.Decimal) error
	// LiquidatePosition marks the position liquidated and inserts the
	// liquidate trade plus the liquidation record. No wallet credit occurs.
	// Returns ErrPositionNotOpen when the position was already terminal.
	LiquidatePosition(ctx context.Context, pos Position, trade Trade, liq Liquidation) error
}

// WalletLedger is the user balance ledger, denominated in SOL.
type WalletLedger interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal) error
	// Debit atomically decrements the balance; ErrInsufficientFunds when the
	// balance cannot cover the amount.
	Debit(ctx context.Context, userID string, amount decimal.Decimal) error
}

// PriceStore persists last-known-good prices used as the freshness-bounded
// fallback when every live source is exhausted.
type PriceStore interface {
	Upsert(ctx context.Context, price TokenPrice) error
	// GetLatest returns the most recent persisted price for mint along with
	// the time it was recorded.
	GetLatest(ctx context.Context, mint string) (TokenPrice, error)
}

// LockManager provides bounded-time mutual exclusion with automatic lease
// expiry, keyed by string.
type LockManager interface {
	// Acquire attempts to obtain the lock once. On success it returns an
	// unlock function that is safe to call multiple times. It returns
	// ErrLockHeld when the lock is held by another party.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
