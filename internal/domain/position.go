package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus tracks the lifecycle of a leveraged position. Open is the
// only non-terminal state.
type PositionStatus string

const (
	PositionStatusOpen       PositionStatus = "open"
	PositionStatusClosed     PositionStatus = "closed"
	PositionStatusLiquidated PositionStatus = "liquidated"
)

// Direction is the side of a leveraged position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// AllowedLeverage is the whitelist of leverage multipliers a position may use.
var AllowedLeverage = []int64{2, 5, 10, 20}

// LeverageAllowed reports whether lev is one of the whitelisted multipliers.
func LeverageAllowed(lev int64) bool {
	for _, l := range AllowedLeverage {
		if lev == l {
			return true
		}
	}
	return false
}

// Position represents a simulated leveraged exposure to one token.
//
// MarginSOL is the collateral the user posted, denominated in SOL.
// All USD-denominated fields are derived from the mark price: UnrealizedPnL,
// MarginRatio and CurrentPrice are recomputed on every scan or read and are
// never independently mutated.
type Position struct {
	ID               string
	UserID           string
	TokenMint        string
	TokenSymbol      string
	Direction        Direction
	Leverage         int64
	EntryPrice       decimal.Decimal // USD
	CurrentPrice     decimal.Decimal // USD, last observed
	Size             decimal.Decimal // quantity of the underlying token
	MarginSOL        decimal.Decimal // posted collateral, SOL
	UnrealizedPnL    decimal.Decimal // USD
	MarginRatio      decimal.Decimal // normalized health, >= 1 is safe
	LiquidationPrice decimal.Decimal // USD
	Status           PositionStatus
	CreatedAt        time.Time
	ClosedAt         *time.Time
}

// IsOpen reports whether the position is still live.
func (p Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}
