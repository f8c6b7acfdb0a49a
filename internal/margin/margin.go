// Package margin contains the pure decimal arithmetic behind margin health,
// liquidation thresholds, position sizing and fees. Functions here have no
// side effects and never touch binary floating point, so sizing and
// liquidation boundaries are exact at any decimal precision.
package margin

import (
	"github.com/shopspring/decimal"

	"github.com/Shillz96/solsim-sub007/internal/domain"
)

// Params groups the economic constants of the margin system. The maintenance
// margin ratio is deliberately a parameter rather than a package constant.
type Params struct {
	MaintenanceMarginRatio decimal.Decimal
	OpenFeeRate            decimal.Decimal
	CloseFeeRate           decimal.Decimal
	LiquidationFeeRate     decimal.Decimal
}

// DefaultParams returns the production defaults: 2.5% maintenance margin,
// 0.1% open/close fee, 0.5% liquidation fee.
func DefaultParams() Params {
	return Params{
		MaintenanceMarginRatio: decimal.RequireFromString("0.025"),
		OpenFeeRate:            decimal.RequireFromString("0.001"),
		CloseFeeRate:           decimal.RequireFromString("0.001"),
		LiquidationFeeRate:     decimal.RequireFromString("0.005"),
	}
}

// Size returns the quantity of the underlying bought with marginUSD at
// leverage: (margin * leverage) / price.
func Size(marginUSD decimal.Decimal, leverage int64, price decimal.Decimal) decimal.Decimal {
	return marginUSD.Mul(decimal.NewFromInt(leverage)).Div(price)
}

// UnrealizedPnL returns the mark-to-market profit of a position in USD.
func UnrealizedPnL(dir domain.Direction, entry, current, size decimal.Decimal) decimal.Decimal {
	if dir == domain.DirectionLong {
		return current.Sub(entry).Mul(size)
	}
	return entry.Sub(current).Mul(size)
}

// MarginBalance is the posted margin plus unrealized PnL, in USD.
func MarginBalance(marginUSD, unrealizedPnL decimal.Decimal) decimal.Decimal {
	return marginUSD.Add(unrealizedPnL)
}

// PositionValue is the current notional value of the position, in USD.
func PositionValue(size, currentPrice decimal.Decimal) decimal.Decimal {
	return size.Mul(currentPrice)
}

// Ratio returns the normalized margin ratio
// (marginBalance / positionValue) / maintenanceMarginRatio.
// A ratio >= 1 is safe; below 1 the position is under-margined. A zero
// position value yields a zero ratio.
func (p Params) Ratio(marginBalance, positionValue decimal.Decimal) decimal.Decimal {
	if positionValue.IsZero() {
		return decimal.Zero
	}
	return marginBalance.Div(positionValue).Div(p.MaintenanceMarginRatio)
}

// ShouldLiquidate reports whether the position has crossed the maintenance
// margin threshold. The inequality is strict: a position sitting exactly at
// the boundary is still solvent.
func (p Params) ShouldLiquidate(marginBalance, positionValue decimal.Decimal) bool {
	return marginBalance.LessThan(positionValue.Mul(p.MaintenanceMarginRatio))
}

// LiquidationPrice returns the mark price at which the margin balance exactly
// equals the maintenance margin requirement.
//
// Long:  entry * (1 - (1/leverage - mmr))
// Short: entry * (1 + (1/leverage - mmr))
func (p Params) LiquidationPrice(dir domain.Direction, entry decimal.Decimal, leverage int64) decimal.Decimal {
	offset := decimal.NewFromInt(1).Div(decimal.NewFromInt(leverage)).Sub(p.MaintenanceMarginRatio)
	if dir == domain.DirectionLong {
		return entry.Mul(decimal.NewFromInt(1).Sub(offset))
	}
	return entry.Mul(decimal.NewFromInt(1).Add(offset))
}

// Fee returns value * rate.
func Fee(value, rate decimal.Decimal) decimal.Decimal {
	return value.Mul(rate)
}
