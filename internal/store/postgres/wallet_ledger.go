package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Shillz96/solsim-sub007/internal/domain"
)

// execer is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so wallet
// mutations compose into PerpStore transactions.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// WalletLedger implements domain.WalletLedger using PostgreSQL. All balance
// mutations are conditional single-statement updates, so concurrent debits
// can never drive a balance negative.
type WalletLedger struct {
	pool *pgxpool.Pool
}

// NewWalletLedger creates a new WalletLedger backed by the given pool.
func NewWalletLedger(pool *pgxpool.Pool) *WalletLedger {
	return &WalletLedger{pool: pool}
}

// Balance returns the user's SOL balance. Unknown users have a zero balance.
func (l *WalletLedger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var raw string
	err := l.pool.QueryRow(ctx,
		`SELECT balance_sol::text FROM wallets WHERE user_id = $1`, userID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("postgres: wallet balance %s: %w", userID, err)
	}

	bal, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: parse balance %q: %w", raw, err)
	}
	return bal, nil
}

// Credit increases the user's balance, creating the wallet row on first use.
func (l *WalletLedger) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	return creditWallet(ctx, l.pool, userID, amount)
}

// Debit decreases the user's balance. It returns domain.ErrInsufficientFunds
// when the balance cannot cover the amount.
func (l *WalletLedger) Debit(ctx context.Context, userID string, amount decimal.Decimal) error {
	return debitWallet(ctx, l.pool, userID, amount)
}

func creditWallet(ctx context.Context, db execer, userID string, amount decimal.Decimal) error {
	const query = `
		INSERT INTO wallets (user_id, balance_sol, updated_at)
		VALUES ($1, $2::numeric, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			balance_sol = wallets.balance_sol + EXCLUDED.balance_sol,
			updated_at = NOW()`

	if _, err := db.Exec(ctx, query, userID, amount.String()); err != nil {
		return fmt.Errorf("postgres: credit wallet %s: %w", userID, err)
	}
	return nil
}

func debitWallet(ctx context.Context, db execer, userID string, amount decimal.Decimal) error {
	const query = `
		UPDATE wallets
		SET balance_sol = balance_sol - $2::numeric, updated_at = NOW()
		WHERE user_id = $1 AND balance_sol >= $2::numeric`

	tag, err := db.Exec(ctx, query, userID, amount.String())
	if err != nil {
		return fmt.Errorf("postgres: debit wallet %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// Compile-time interface check.
var _ domain.WalletLedger = (*WalletLedger)(nil)
