// Package service implements the user-facing perpetual trade operations:
// opening and closing leveraged positions against externally sourced mark
// prices.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Shillz96/solsim-sub007/internal/domain"
	"github.com/Shillz96/solsim-sub007/internal/margin"
)

// Notifier is the fire-and-forget event sink. Delivery failures never roll
// back or block a trade.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config tunes locking and risk admission for the trade service.
type Config struct {
	LockTTL  time.Duration // lease length for open/close locks
	LockWait time.Duration // bounded wait before surfacing ErrLockBusy
	// MinLiquidityUSD rejects opens on tokens whose best pair is thinner
	// than this. Zero disables the check.
	MinLiquidityUSD decimal.Decimal
}

// DefaultConfig returns production defaults: 5s leases, 2s acquisition wait.
func DefaultConfig() Config {
	return Config{
		LockTTL:  5 * time.Second,
		LockWait: 2 * time.Second,
	}
}

// OpenRequest are the caller-supplied parameters for opening a position.
type OpenRequest struct {
	UserID    string
	TokenMint string
	Direction domain.Direction
	Leverage  int64
	MarginSOL decimal.Decimal
}

// PerpService opens and closes simulated leveraged positions. All state
// transitions on a position are serialized through the lock manager; all
// multi-row effects go through the atomic PerpStore.
type PerpService struct {
	positions domain.PositionStore
	perps     domain.PerpStore
	wallet    domain.WalletLedger
	prices    domain.PriceProvider
	locks     domain.LockManager
	notifier  Notifier
	whitelist map[string]bool
	params    margin.Params
	cfg       Config
	logger    *slog.Logger
}

// NewPerpService creates a PerpService. whitelistMints is the risk-approved
// set of tradable tokens.
func NewPerpService(
	positions domain.PositionStore,
	perps domain.PerpStore,
	wallet domain.WalletLedger,
	prices domain.PriceProvider,
	locks domain.LockManager,
	notifier Notifier,
	whitelistMints []string,
	params margin.Params,
	cfg Config,
	logger *slog.Logger,
) *PerpService {
	wl := make(map[string]bool, len(whitelistMints))
	for _, m := range whitelistMints {
		wl[m] = true
	}
	return &PerpService{
		positions: positions,
		perps:     perps,
		wallet:    wallet,
		prices:    prices,
		locks:     locks,
		notifier:  notifier,
		whitelist: wl,
		params:    params,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "perp_service")),
	}
}

func openLockKey(userID, mint string) string { return "open:" + userID + ":" + mint }

// positionLockKey is shared with the liquidation engine so a user close and
// a forced close on the same position can never interleave.
func positionLockKey(positionID string) string { return "position:" + positionID }

// Open validates the request, prices the token, debits margin plus the open
// fee, and persists the new position with its open trade as one atomic unit.
func (s *PerpService) Open(ctx context.Context, req OpenRequest) (domain.Position, domain.Trade, error) {
	if !domain.LeverageAllowed(req.Leverage) {
		return domain.Position{}, domain.Trade{}, domain.ErrInvalidLeverage
	}
	if !req.MarginSOL.IsPositive() {
		return domain.Position{}, domain.Trade{}, domain.ErrInvalidAmount
	}
	if req.Direction != domain.DirectionLong && req.Direction != domain.DirectionShort {
		return domain.Position{}, domain.Trade{}, fmt.Errorf("perp_service: %w: direction %q", domain.ErrInvalidAmount, req.Direction)
	}
	if !s.whitelist[req.TokenMint] {
		return domain.Position{}, domain.Trade{}, domain.ErrNotWhitelisted
	}

	unlock, err := domain.AcquireWait(ctx, s.locks, openLockKey(req.UserID, req.TokenMint), s.cfg.LockTTL, s.cfg.LockWait)
	if err != nil {
		return domain.Position{}, domain.Trade{}, fmt.Errorf("perp_service: open lock: %w", err)
	}
	defer unlock()

	// One open position per (user, token). The store's unique index backs
	// this check against races the lock cannot see.
	if _, err := s.positions.GetOpenByUserMint(ctx, req.UserID, req.TokenMint); err == nil {
		return domain.Position{}, domain.Trade{}, domain.ErrPositionExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Position{}, domain.Trade{}, fmt.Errorf("perp_service: duplicate check: %w", err)
	}

	// Reject unfunded requests before spending a price fetch.
	balance, err := s.wallet.Balance(ctx, req.UserID)
	if err != nil {
		return domain.Position{}, domain.Trade{}, fmt.Errorf("perp_service: balance: %w", err)
	}
	if balance.LessThan(req.MarginSOL) {
		return domain.Position{}, domain.Trade{}, domain.ErrInsufficientFunds
	}

	price, err := s.prices.GetPrice(ctx, req.TokenMint)
	if err != nil {
		return domain.Position{}, domain.Trade{}, fmt.Errorf("perp_service: %w", domain.ErrPriceUnavailable)
	}
	if !s.cfg.MinLiquidityUSD.IsZero() && price.LiquidityUSD.LessThan(s.cfg.MinLiquidityUSD) {
		return domain.Position{}, domain.Trade{}, domain.ErrNotWhitelisted
	}

	sol, err := s.prices.GetSOLPrice(ctx)
	if err != nil || sol.PriceUSD.IsZero() {
		return domain.Position{}, domain.Trade{}, fmt.Errorf("perp_service: base currency: %w", domain.ErrPriceUnavailable)
	}

	// Convert the posted collateral into the pricing numeraire and size the
	// position.
	marginUSD := req.MarginSOL.Mul(sol.PriceUSD)
	size := margin.Size(marginUSD, req.Leverage, price.PriceUSD)
	liqPrice := s.params.LiquidationPrice(req.Direction, price.PriceUSD, req.Leverage)

	// The open fee is charged on notional value; in SOL terms that is
	// margin * leverage * rate.
	feeSOL := margin.Fee(req.MarginSOL.Mul(decimal.NewFromInt(req.Leverage)), s.params.OpenFeeRate)
	total := req.MarginSOL.Add(feeSOL)
	if balance.LessThan(total) {
		return domain.Position{}, domain.Trade{}, domain.ErrInsufficientFunds
	}

	now := time.Now().UTC()
	pos := domain.Position{
		ID:               uuid.New().String(),
		UserID:           req.UserID,
		TokenMint:        req.TokenMint,
		TokenSymbol:      price.Symbol,
		Direction:        req.Direction,
		Leverage:         req.Leverage,
		EntryPrice:       price.PriceUSD,
		CurrentPrice:     price.PriceUSD,
		Size:             size,
		MarginSOL:        req.MarginSOL,
		UnrealizedPnL:    decimal.Zero,
		MarginRatio:      s.params.Ratio(marginUSD, margin.PositionValue(size, price.PriceUSD)),
		LiquidationPrice: liqPrice,
		Status:           domain.PositionStatusOpen,
		CreatedAt:        now,
	}
	trade := domain.Trade{
		ID:         uuid.New().String(),
		PositionID: pos.ID,
		UserID:     req.UserID,
		TokenMint:  req.TokenMint,
		Action:     domain.TradeActionOpen,
		Direction:  req.Direction,
		Leverage:   req.Leverage,
		Quantity:   size,
		Price:      price.PriceUSD,
		MarginSOL:  req.MarginSOL,
		FeeSOL:     feeSOL,
		CreatedAt:  now,
	}

	if err := s.perps.OpenPosition(ctx, pos, trade, total); err != nil {
		return domain.Position{}, domain.Trade{}, fmt.Errorf("perp_service: open position: %w", err)
	}

	s.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("user_id", pos.UserID),
		slog.String("mint", pos.TokenMint),
		slog.String("direction", string(pos.Direction)),
		slog.Int64("leverage", pos.Leverage),
		slog.String("entry_price", pos.EntryPrice.String()),
		slog.String("size", pos.Size.String()),
	)

	s.notify(ctx, "position_opened", "Position opened",
		fmt.Sprintf("%s %dx %s @ %s USD, margin %s SOL",
			pos.Direction, pos.Leverage, pos.TokenMint, pos.EntryPrice, pos.MarginSOL))

	return pos, trade, nil
}

// Close exits a position at the current mark price, credits the payout
// (floored at zero), and records the close trade, all atomically. It takes
// the same per-position lock the liquidation engine uses, so exactly one of
// a racing close and liquidation wins.
func (s *PerpService) Close(ctx context.Context, userID, positionID string) (domain.Position, domain.Trade, error) {
	unlock, err := domain.AcquireWait(ctx, s.locks, positionLockKey(positionID), s.cfg.LockTTL, s.cfg.LockWait)
	if err != nil {
		return domain.Position{}, domain.Trade{}, fmt.Errorf("perp_service: close lock: %w", err)
	}
	defer unlock()

	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return domain.Position{}, domain.Trade{}, fmt.Errorf("perp_service: load position: %w", err)
	}
	if pos.UserID != userID {
		return domain.Position{}, domain.Trade{}, domain.ErrForbidden
	}
	if !pos.IsOpen() {
		return domain.Position{}, domain.Trade{}, domain.ErrPositionNotOpen
	}

	price, err := s.prices.GetPrice(ctx, pos.TokenMint)
	if err != nil {
		return domain.Position{}, domain.Trade{}, fmt.Errorf("perp_service: %w", domain.ErrPriceUnavailable)
	}
	sol, err := s.prices.GetSOLPrice(ctx)
	if err != nil || sol.PriceUSD.IsZero() {
		return domain.Position{}, domain.Trade{}, fmt.Errorf("perp_service: base currency: %w", domain.ErrPriceUnavailable)
	}

	marginUSD := pos.MarginSOL.Mul(sol.PriceUSD)
	upnlUSD := margin.UnrealizedPnL(pos.Direction, pos.EntryPrice, price.PriceUSD, pos.Size)
	balanceUSD := margin.MarginBalance(marginUSD, upnlUSD)
	valueUSD := margin.PositionValue(pos.Size, price.PriceUSD)
	feeUSD := margin.Fee(valueUSD, s.params.CloseFeeRate)

	// A trader never receives a negative payout; any shortfall is absorbed
	// as the collateral being fully consumed.
	payoutUSD := balanceUSD.Sub(feeUSD)
	if payoutUSD.IsNegative() {
		payoutUSD = decimal.Zero
	}
	payoutSOL := payoutUSD.Div(sol.PriceUSD)

	now := time.Now().UTC()
	pos.CurrentPrice = price.PriceUSD
	pos.UnrealizedPnL = upnlUSD
	pos.MarginRatio = s.params.Ratio(balanceUSD, valueUSD)
	pos.Status = domain.PositionStatusClosed
	pos.ClosedAt = &now

	trade := domain.Trade{
		ID:          uuid.New().String(),
		PositionID:  pos.ID,
		UserID:      pos.UserID,
		TokenMint:   pos.TokenMint,
		Action:      domain.TradeActionClose,
		Direction:   pos.Direction,
		Leverage:    pos.Leverage,
		Quantity:    pos.Size,
		Price:       price.PriceUSD,
		MarginSOL:   pos.MarginSOL,
		RealizedPnL: upnlUSD,
		FeeSOL:      feeUSD.Div(sol.PriceUSD),
		CreatedAt:   now,
	}

	if err := s.perps.ClosePosition(ctx, pos, trade, payoutSOL); err != nil {
		return domain.Position{}, domain.Trade{}, fmt.Errorf("perp_service: close position: %w", err)
	}

	s.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", pos.ID),
		slog.String("user_id", pos.UserID),
		slog.String("exit_price", price.PriceUSD.String()),
		slog.String("realized_pnl_usd", upnlUSD.String()),
		slog.String("payout_sol", payoutSOL.String()),
	)

	s.notify(ctx, "position_closed", "Position closed",
		fmt.Sprintf("%s closed @ %s USD, PnL %s USD, payout %s SOL",
			pos.TokenMint, price.PriceUSD, upnlUSD, payoutSOL))

	return pos, trade, nil
}

// GetPosition returns a position with live-recomputed health when it is open
// and a price is available; on price failure the stored snapshot is returned.
func (s *PerpService) GetPosition(ctx context.Context, userID, positionID string) (domain.Position, error) {
	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("perp_service: get position: %w", err)
	}
	if pos.UserID != userID {
		return domain.Position{}, domain.ErrForbidden
	}
	if !pos.IsOpen() {
		return pos, nil
	}

	price, perr := s.prices.GetPrice(ctx, pos.TokenMint)
	sol, serr := s.prices.GetSOLPrice(ctx)
	if perr != nil || serr != nil || sol.PriceUSD.IsZero() {
		return pos, nil
	}

	marginUSD := pos.MarginSOL.Mul(sol.PriceUSD)
	pos.CurrentPrice = price.PriceUSD
	pos.UnrealizedPnL = margin.UnrealizedPnL(pos.Direction, pos.EntryPrice, price.PriceUSD, pos.Size)
	pos.MarginRatio = s.params.Ratio(
		margin.MarginBalance(marginUSD, pos.UnrealizedPnL),
		margin.PositionValue(pos.Size, price.PriceUSD),
	)
	return pos, nil
}

// ListOpen returns the user's open positions.
func (s *PerpService) ListOpen(ctx context.Context, userID string) ([]domain.Position, error) {
	positions, err := s.positions.ListOpenByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("perp_service: list open: %w", err)
	}
	return positions, nil
}

// ListHistory returns the user's positions, newest first.
func (s *PerpService) ListHistory(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	positions, err := s.positions.ListHistory(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("perp_service: list history: %w", err)
	}
	return positions, nil
}

// notify delivers an event without ever failing the caller.
func (s *PerpService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
