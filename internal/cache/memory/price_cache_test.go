package memory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shillz96/solsim-sub007/internal/domain"
)

func TestPriceCacheSetGet(t *testing.T) {
	pc := NewPriceCache(time.Minute)

	pc.Set(domain.TokenPrice{Mint: "mint-a", PriceUSD: decimal.NewFromFloat(1.5)})

	got, ok := pc.Get("mint-a")
	require.True(t, ok)
	assert.True(t, got.PriceUSD.Equal(decimal.NewFromFloat(1.5)))

	_, ok = pc.Get("mint-b")
	assert.False(t, ok)
}

func TestPriceCacheExpiry(t *testing.T) {
	pc := NewPriceCache(10 * time.Millisecond)

	pc.Set(domain.TokenPrice{Mint: "mint-a", PriceUSD: decimal.NewFromFloat(2)})
	time.Sleep(25 * time.Millisecond)

	_, ok := pc.Get("mint-a")
	assert.False(t, ok)
}

func TestPriceCacheOverwrite(t *testing.T) {
	pc := NewPriceCache(time.Minute)

	pc.Set(domain.TokenPrice{Mint: "mint-a", PriceUSD: decimal.NewFromFloat(1)})
	pc.Set(domain.TokenPrice{Mint: "mint-a", PriceUSD: decimal.NewFromFloat(3)})

	got, ok := pc.Get("mint-a")
	require.True(t, ok)
	assert.True(t, got.PriceUSD.Equal(decimal.NewFromInt(3)))
}
