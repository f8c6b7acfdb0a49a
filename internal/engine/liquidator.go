// Package engine runs the background margin monitor that liquidates
// underwater positions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Shillz96/solsim-sub007/internal/domain"
	"github.com/Shillz96/solsim-sub007/internal/margin"
)

// Notifier receives liquidation events. Delivery failures are logged only.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config tunes the scan cadence and batch sizing.
type Config struct {
	Interval  time.Duration // time between scan passes
	BatchSize int           // positions examined per pass, most at-risk first
	// PassTimeout bounds a single pass so a stalled one cannot collide with
	// the next tick. Should stay below Interval.
	PassTimeout time.Duration
	LockTTL     time.Duration
	LockWait    time.Duration
}

// DefaultConfig returns production defaults: 10s scans of the 50 riskiest
// positions.
func DefaultConfig() Config {
	return Config{
		Interval:    10 * time.Second,
		BatchSize:   50,
		PassTimeout: 8 * time.Second,
		LockTTL:     5 * time.Second,
		LockWait:    time.Second,
	}
}

// Liquidator periodically scans open positions, refreshes their health from
// batch-fetched prices, and force-closes any whose margin balance has fallen
// below maintenance. Liquidated margin is forfeited in full.
type Liquidator struct {
	positions domain.PositionStore
	perps     domain.PerpStore
	prices    domain.PriceProvider
	locks     domain.LockManager
	notifier  Notifier
	params    margin.Params
	cfg       Config
	logger    *slog.Logger

	// running guards against overlapping passes when a pass outlives the
	// tick interval.
	running atomic.Bool
}

// New creates a Liquidator.
func New(
	positions domain.PositionStore,
	perps domain.PerpStore,
	prices domain.PriceProvider,
	locks domain.LockManager,
	notifier Notifier,
	params margin.Params,
	cfg Config,
	logger *slog.Logger,
) *Liquidator {
	return &Liquidator{
		positions: positions,
		perps:     perps,
		prices:    prices,
		locks:     locks,
		notifier:  notifier,
		params:    params,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "liquidator")),
	}
}

func positionLockKey(positionID string) string { return "position:" + positionID }

// RunLoop scans on a repeating interval until the context is cancelled.
func (l *Liquidator) RunLoop(ctx context.Context) error {
	// Scan immediately on start.
	if err := l.RunOnce(ctx); err != nil {
		l.logger.Error("liquidation pass failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("liquidator loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := l.RunOnce(ctx); err != nil {
				l.logger.Error("liquidation pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce executes a single scan pass. A pass still in flight from a previous
// tick makes this call a no-op.
func (l *Liquidator) RunOnce(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		l.logger.Warn("scan pass still running, skipping tick")
		return nil
	}
	defer l.running.Store(false)

	if l.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.PassTimeout)
		defer cancel()
	}

	positions, err := l.positions.ListOpenByRisk(ctx, l.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("listing at-risk positions: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}

	// One batch price call and one base currency call per pass, regardless
	// of batch size.
	mints := make([]string, 0, len(positions))
	for _, pos := range positions {
		mints = append(mints, pos.TokenMint)
	}
	prices, err := l.prices.GetPrices(ctx, mints)
	if err != nil {
		return fmt.Errorf("batch pricing %d mints: %w", len(mints), err)
	}
	sol, err := l.prices.GetSOLPrice(ctx)
	if err != nil || sol.PriceUSD.IsZero() {
		return fmt.Errorf("base currency price: %w", domain.ErrPriceUnavailable)
	}

	var checked, liquidated, skipped int
	for _, pos := range positions {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scan pass cancelled: %w", err)
		}

		price, ok := prices[pos.TokenMint]
		if !ok {
			// A position is never liquidated on a missing price; it is
			// retried next pass.
			skipped++
			continue
		}
		checked++

		marginUSD := pos.MarginSOL.Mul(sol.PriceUSD)
		upnl := margin.UnrealizedPnL(pos.Direction, pos.EntryPrice, price.PriceUSD, pos.Size)
		balance := margin.MarginBalance(marginUSD, upnl)
		value := margin.PositionValue(pos.Size, price.PriceUSD)

		if !l.params.ShouldLiquidate(balance, value) {
			ratio := l.params.Ratio(balance, value)
			if err := l.positions.UpdateHealth(ctx, pos.ID, price.PriceUSD, upnl, ratio); err != nil {
				l.logger.Warn("health update failed",
					slog.String("position_id", pos.ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		if err := l.liquidate(ctx, pos.ID, sol.PriceUSD); err != nil {
			if errors.Is(err, domain.ErrLockBusy) ||
				errors.Is(err, domain.ErrPositionNotOpen) ||
				errors.Is(err, domain.ErrPriceUnavailable) {
				// The owner closed it first, another actor holds the lock,
				// or the under-lock re-price came up empty. Each resolves
				// itself by the next pass.
				skipped++
				continue
			}
			l.logger.Error("liquidation failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		liquidated++
	}

	if liquidated > 0 || skipped > 0 {
		l.logger.Info("scan pass complete",
			slog.Int("checked", checked),
			slog.Int("liquidated", liquidated),
			slog.Int("skipped", skipped),
		)
	}
	return nil
}

// liquidate force-closes one position under its per-position lock. The
// position is re-loaded and re-checked after the lock is held so a
// concurrent user close always wins cleanly.
func (l *Liquidator) liquidate(ctx context.Context, positionID string, solUSD decimal.Decimal) error {
	unlock, err := domain.AcquireWait(ctx, l.locks, positionLockKey(positionID), l.cfg.LockTTL, l.cfg.LockWait)
	if err != nil {
		return err
	}
	defer unlock()

	pos, err := l.positions.GetByID(ctx, positionID)
	if err != nil {
		return fmt.Errorf("reloading position: %w", err)
	}
	if !pos.IsOpen() {
		return domain.ErrPositionNotOpen
	}

	// Re-price under the lock; the cached batch price may have gone stale
	// while earlier positions in the pass were processed.
	price, err := l.prices.GetPrice(ctx, pos.TokenMint)
	if err != nil {
		return fmt.Errorf("repricing %s: %w", pos.TokenMint, err)
	}

	marginUSD := pos.MarginSOL.Mul(solUSD)
	upnl := margin.UnrealizedPnL(pos.Direction, pos.EntryPrice, price.PriceUSD, pos.Size)
	balance := margin.MarginBalance(marginUSD, upnl)
	value := margin.PositionValue(pos.Size, price.PriceUSD)
	if !l.params.ShouldLiquidate(balance, value) {
		// Recovered between the scan read and lock acquisition.
		return nil
	}

	feeUSD := margin.Fee(value, l.params.LiquidationFeeRate)
	now := time.Now().UTC()

	pos.CurrentPrice = price.PriceUSD
	pos.UnrealizedPnL = upnl
	pos.MarginRatio = l.params.Ratio(balance, value)
	pos.Status = domain.PositionStatusLiquidated
	pos.ClosedAt = &now

	trade := domain.Trade{
		ID:          uuid.New().String(),
		PositionID:  pos.ID,
		UserID:      pos.UserID,
		TokenMint:   pos.TokenMint,
		Action:      domain.TradeActionLiquidate,
		Direction:   pos.Direction,
		Leverage:    pos.Leverage,
		Quantity:    pos.Size,
		Price:       price.PriceUSD,
		MarginSOL:   pos.MarginSOL,
		RealizedPnL: pos.MarginSOL.Mul(solUSD).Neg(),
		FeeSOL:      feeUSD.Div(solUSD),
		CreatedAt:   now,
	}
	liq := domain.Liquidation{
		ID:            uuid.New().String(),
		PositionID:    pos.ID,
		UserID:        pos.UserID,
		TokenMint:     pos.TokenMint,
		Price:         price.PriceUSD,
		MarginLostSOL: pos.MarginSOL,
		FeeSOL:        trade.FeeSOL,
		CreatedAt:     now,
	}

	if err := l.perps.LiquidatePosition(ctx, pos, trade, liq); err != nil {
		return fmt.Errorf("persisting liquidation: %w", err)
	}

	l.logger.Info("position liquidated",
		slog.String("position_id", pos.ID),
		slog.String("user_id", pos.UserID),
		slog.String("mint", pos.TokenMint),
		slog.String("price", price.PriceUSD.String()),
		slog.String("margin_lost_sol", pos.MarginSOL.String()),
	)

	if l.notifier != nil {
		if err := l.notifier.Notify(ctx, "position_liquidated", "Position liquidated",
			fmt.Sprintf("%s %dx %s liquidated @ %s USD, margin lost %s SOL",
				pos.Direction, pos.Leverage, pos.TokenMint, price.PriceUSD, pos.MarginSOL)); err != nil {
			l.logger.Warn("notification failed", slog.String("error", err.Error()))
		}
	}
	return nil
}
