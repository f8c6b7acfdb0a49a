package margin

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shillz96/solsim-sub007/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSizeExactAtHighPrecision(t *testing.T) {
	// (margin * leverage) / price must be exact under decimal arithmetic,
	// with no drift at 9+ decimal places.
	size := Size(d("1.5"), 10, d("0.000000123"))
	// 15 / 0.000000123 = 121951219.512195121951...
	product := size.Mul(d("0.000000123"))
	assert.True(t, product.Equal(d("15")) || product.Sub(d("15")).Abs().LessThan(d("0.0000000000000001")),
		"size*price = %s", product)

	size = Size(d("2"), 5, d("0.25"))
	assert.True(t, size.Equal(d("40")), "got %s", size)
}

func TestUnrealizedPnL(t *testing.T) {
	size := d("10")

	long := UnrealizedPnL(domain.DirectionLong, d("1.00"), d("1.10"), size)
	assert.True(t, long.Equal(d("1")), "got %s", long)

	short := UnrealizedPnL(domain.DirectionShort, d("1.00"), d("1.10"), size)
	assert.True(t, short.Equal(d("-1")), "got %s", short)

	// Losses mirror gains.
	assert.True(t, long.Equal(short.Neg()))
}

func TestLiquidationPriceScenario(t *testing.T) {
	// Long, leverage=10, entry=1.00, mmr=0.025:
	// 1 * (1 - (0.1 - 0.025)) = 0.925
	p := DefaultParams()

	liqLong := p.LiquidationPrice(domain.DirectionLong, d("1.00"), 10)
	assert.True(t, liqLong.Equal(d("0.925")), "got %s", liqLong)

	liqShort := p.LiquidationPrice(domain.DirectionShort, d("1.00"), 10)
	assert.True(t, liqShort.Equal(d("1.075")), "got %s", liqShort)
}

func TestLiquidationPriceSymmetry(t *testing.T) {
	p := DefaultParams()
	entry := d("3.14159")

	for _, lev := range domain.AllowedLeverage {
		liqLong := p.LiquidationPrice(domain.DirectionLong, entry, lev)
		liqShort := p.LiquidationPrice(domain.DirectionShort, entry, lev)

		require.True(t, liqLong.LessThan(entry), "lev=%d long liq %s not below entry", lev, liqLong)
		require.True(t, liqShort.GreaterThan(entry), "lev=%d short liq %s not above entry", lev, liqShort)

		// Both sit the same maintenance-adjusted distance from entry.
		assert.True(t, entry.Sub(liqLong).Equal(liqShort.Sub(entry)),
			"lev=%d asymmetric: %s vs %s", lev, entry.Sub(liqLong), liqShort.Sub(entry))
	}
}

func TestShouldLiquidateStrictBoundary(t *testing.T) {
	p := DefaultParams()
	positionValue := d("9.25")
	threshold := positionValue.Mul(p.MaintenanceMarginRatio)

	// Exactly at the maintenance requirement: still solvent.
	assert.False(t, p.ShouldLiquidate(threshold, positionValue))
	// One minimal step below: liquidatable.
	assert.True(t, p.ShouldLiquidate(threshold.Sub(d("0.000000001")), positionValue))
	// Above: safe.
	assert.False(t, p.ShouldLiquidate(threshold.Add(d("0.000000001")), positionValue))
}

func TestMarginRatioMonotoneForLong(t *testing.T) {
	// For a long position, the margin ratio must decrease monotonically as
	// the mark price falls, crossing 1.0 on the way to the liquidation
	// threshold.
	p := DefaultParams()
	entry := d("1.00")
	size := d("10")      // leverage 10 on 1 USD margin
	marginUSD := d("1")

	prices := []string{"1.00", "0.98", "0.96", "0.94", "0.925", "0.91", "0.90"}
	prev := decimal.Decimal{}
	for i, ps := range prices {
		price := d(ps)
		upnl := UnrealizedPnL(domain.DirectionLong, entry, price, size)
		mb := MarginBalance(marginUSD, upnl)
		pv := PositionValue(size, price)
		ratio := p.Ratio(mb, pv)

		if i > 0 {
			require.True(t, ratio.LessThan(prev),
				"ratio not decreasing at price %s: %s >= %s", ps, ratio, prev)
		}
		prev = ratio
	}

	// At 0.90 the scenario position is under water.
	upnl := UnrealizedPnL(domain.DirectionLong, entry, d("0.90"), size)
	mb := MarginBalance(marginUSD, upnl)
	pv := PositionValue(size, d("0.90"))
	assert.True(t, p.ShouldLiquidate(mb, pv))
	assert.True(t, p.Ratio(mb, pv).LessThan(d("1")))

	// At entry the position is comfortably safe.
	assert.True(t, p.Ratio(marginUSD, PositionValue(size, entry)).GreaterThan(d("1")))
}

func TestFee(t *testing.T) {
	p := DefaultParams()
	notional := d("1000")

	assert.True(t, Fee(notional, p.OpenFeeRate).Equal(d("1")))
	assert.True(t, Fee(notional, p.LiquidationFeeRate).Equal(d("5")))
}

func TestRatioZeroPositionValue(t *testing.T) {
	p := DefaultParams()
	assert.True(t, p.Ratio(d("1"), decimal.Zero).IsZero())
}
