package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TokenPrice is a transient price observation for one token mint, quoted in
// both USD and SOL. Liquidity/volume metadata is carried when the source
// provides it and is used for trading-pair selection.
type TokenPrice struct {
	Mint         string
	Symbol       string
	PriceUSD     decimal.Decimal
	PriceSOL     decimal.Decimal
	Source       string
	LiquidityUSD decimal.Decimal
	Volume24hUSD decimal.Decimal
	FetchedAt    time.Time
}

// PriceSource fetches live quotes from one external provider.
//
// A clean miss (token genuinely absent from the source) is reported as
// ErrNotFound and is not a source failure; only transport or decode errors
// count against the source's health.
type PriceSource interface {
	Name() string
	Fetch(ctx context.Context, mint string) (TokenPrice, error)
	FetchBatch(ctx context.Context, mints []string) (map[string]TokenPrice, error)
}

// PriceProvider is the consuming side of the price acquisition layer: every
// margin calculation reads prices through this contract.
type PriceProvider interface {
	// GetPrice returns ErrPriceUnavailable when no price can be produced;
	// "not found" is an explicit result, never a panic or transport error.
	GetPrice(ctx context.Context, mint string) (TokenPrice, error)
	// GetPrices returns the subset that could be priced; missing mints are
	// omitted.
	GetPrices(ctx context.Context, mints []string) (map[string]TokenPrice, error)
	// GetSOLPrice returns the base currency's own price, used to convert
	// between numeraires.
	GetSOLPrice(ctx context.Context) (TokenPrice, error)
}
