package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeAction identifies which lifecycle event a trade records.
type TradeAction string

const (
	TradeActionOpen      TradeAction = "open"
	TradeActionClose     TradeAction = "close"
	TradeActionLiquidate TradeAction = "liquidate"
)

// Trade is an immutable, append-only ledger entry recording one lifecycle
// event against a position.
type Trade struct {
	ID          string
	PositionID  string
	UserID      string
	TokenMint   string
	Action      TradeAction
	Direction   Direction
	Leverage    int64
	Quantity    decimal.Decimal // token units
	Price       decimal.Decimal // USD execution (mark) price
	MarginSOL   decimal.Decimal // collateral involved, SOL
	RealizedPnL decimal.Decimal // USD, zero for open trades
	FeeSOL      decimal.Decimal // fee charged for this event, SOL
	CreatedAt   time.Time
}

// Liquidation is the terminal record of a forced close. Exactly one row is
// created per liquidated position.
type Liquidation struct {
	ID            string
	PositionID    string
	UserID        string
	TokenMint     string
	Price         decimal.Decimal // USD mark price at liquidation
	MarginLostSOL decimal.Decimal // full posted collateral, forfeited
	FeeSOL        decimal.Decimal
	CreatedAt     time.Time
}
