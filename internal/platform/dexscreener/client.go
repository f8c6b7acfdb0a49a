// Package dexscreener implements the primary price source adapter, selecting
// the best trading pair per token by liquidity and volume.
package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Shillz96/solsim-sub007/internal/domain"
)

const (
	chainSolana = "solana"

	// The tokens endpoint accepts up to this many comma-joined addresses.
	maxBatchSize = 30
)

// Pair-selection weights. Liquidity dominates so thin pairs with wash volume
// do not win; very recent volume and transaction count break ties between
// comparably deep pairs.
const (
	weightLiquidity    = 0.4
	weightVolume24h    = 0.3
	weightVolume5m     = 0.2
	weightTxns24h      = 0.1
	solQuoteScoreBoost = 1.10
)

// Solana wrapped-SOL mint, the platform's base currency.
const SOLMint = "So11111111111111111111111111111111111111112"

// Client is the REST client for the DexScreener pairs API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client. baseURL is the API root,
// e.g. "https://api.dexscreener.com".
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name identifies this source in cache entries and logs.
func (c *Client) Name() string { return "dexscreener" }

// Fetch returns the best-pair quote for a single token mint.
// It returns domain.ErrNotFound when the API knows no pairs for the mint.
func (c *Client) Fetch(ctx context.Context, mint string) (domain.TokenPrice, error) {
	prices, err := c.FetchBatch(ctx, []string{mint})
	if err != nil {
		return domain.TokenPrice{}, err
	}
	price, ok := prices[mint]
	if !ok {
		return domain.TokenPrice{}, fmt.Errorf("dexscreener: %w: mint=%s", domain.ErrNotFound, mint)
	}
	return price, nil
}

// FetchBatch returns quotes for multiple mints, chunking requests at the API
// batch limit. Mints with no tradable pairs are omitted from the result; the
// caller decides whether an omission is negative-cacheable.
func (c *Client) FetchBatch(ctx context.Context, mints []string) (map[string]domain.TokenPrice, error) {
	result := make(map[string]domain.TokenPrice, len(mints))

	for start := 0; start < len(mints); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(mints) {
			end = len(mints)
		}
		chunk := mints[start:end]

		path := "/latest/dex/tokens/" + url.PathEscape(strings.Join(chunk, ","))
		body, err := c.doGet(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("dexscreener: fetch tokens: %w", err)
		}

		var resp APIPairsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("dexscreener: decode pairs: %w", err)
		}

		byMint := groupPairs(resp.Pairs)
		for _, mint := range chunk {
			pairs := byMint[mint]
			if len(pairs) == 0 {
				continue
			}
			price, ok := bestPairPrice(mint, pairs)
			if !ok {
				continue
			}
			result[mint] = price
		}
	}

	return result, nil
}

// groupPairs buckets Solana pairs by base-token mint.
func groupPairs(pairs []APIPair) map[string][]APIPair {
	byMint := make(map[string][]APIPair)
	for _, p := range pairs {
		if p.ChainID != chainSolana {
			continue
		}
		byMint[p.BaseToken.Address] = append(byMint[p.BaseToken.Address], p)
	}
	return byMint
}

// bestPairPrice scores every pair for the mint and converts the winner into
// a domain.TokenPrice. SOL-quoted pairs carry the SOL price directly in
// priceNative; for stable-quoted pairs PriceSOL is left zero and derived by
// the price service from the cached SOL price.
func bestPairPrice(mint string, pairs []APIPair) (domain.TokenPrice, bool) {
	var best APIPair
	bestScore := -1.0
	for _, p := range pairs {
		s := score(p)
		if s > bestScore {
			bestScore = s
			best = p
		}
	}
	if bestScore < 0 || best.PriceUSD == "" {
		return domain.TokenPrice{}, false
	}

	priceUSD, err := decimal.NewFromString(best.PriceUSD)
	if err != nil || priceUSD.IsZero() {
		return domain.TokenPrice{}, false
	}

	price := domain.TokenPrice{
		Mint:         mint,
		Symbol:       best.BaseToken.Symbol,
		PriceUSD:     priceUSD,
		Source:       "dexscreener",
		LiquidityUSD: decimal.NewFromFloat(best.Liquidity.USD),
		Volume24hUSD: decimal.NewFromFloat(best.Volume.H24),
		FetchedAt:    time.Now().UTC(),
	}

	if best.QuoteToken.Address == SOLMint && best.PriceNative != "" {
		if priceSOL, err := decimal.NewFromString(best.PriceNative); err == nil {
			price.PriceSOL = priceSOL
		}
	}

	return price, true
}

// score ranks a pair by a weighted blend of liquidity, 24h volume, very
// recent volume, and 24h transaction count, with a preference for pairs
// quoted in the platform's base currency.
func score(p APIPair) float64 {
	s := weightLiquidity*p.Liquidity.USD +
		weightVolume24h*p.Volume.H24 +
		weightVolume5m*p.Volume.M5 +
		weightTxns24h*float64(p.Txns.H24.Buys+p.Txns.H24.Sells)
	if p.QuoteToken.Address == SOLMint {
		s *= solQuoteScoreBoost
	}
	return s
}

// doGet performs a GET request against the API and returns the response body.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// Compile-time interface check.
var _ domain.PriceSource = (*Client)(nil)
