// Package jupiter implements the secondary price source adapter against a
// flat id-to-price quote API.
package jupiter

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

// The price endpoint accepts up to this many ids per request.
const maxBatchSize = 100

// APIPriceResponse is the wire shape of the price endpoint.
type APIPriceResponse struct {
	Data map[string]APIPrice `json:"data"`
}

// APIPrice is one quote. Price is a decimal string in USD.
type APIPrice struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Price string `json:"price"`
}

// Client is the REST client for the Jupiter price API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client. baseURL is the API root, e.g. "https://api.jup.ag".
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name identifies this source in cache entries and logs.
func (c *Client) Name() string { return "jupiter" }

// Fetch returns the quote for a single token mint.
// It returns domain.ErrNotFound when the API has no price for the mint.
func (c *Client) Fetch(ctx context.Context, mint string) (domain.TokenPrice, error) {
	prices, err := c.FetchBatch(ctx, []string{mint})
	if err != nil {
		return domain.TokenPrice{}, err
	}
	price, ok := prices[mint]
	if !ok {
		return domain.TokenPrice{}, fmt.Errorf("jupiter: %w: mint=%s", domain.ErrNotFound, mint)
	}
	return price, nil
}

// FetchBatch returns quotes for multiple mints, chunked at the API limit.
// Quotes are USD-only; PriceSOL is derived by the price service. Unknown
// mints are omitted from the result.
func (c *Client) FetchBatch(ctx context.Context, mints []string) (map[string]domain.TokenPrice, error) {
	result := make(map[string]domain.TokenPrice, len(mints))

	for start := 0; start < len(mints); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(mints) {
			end = len(mints)
		}
		chunk := mints[start:end]

		params := url.Values{}
		params.Set("ids", strings.Join(chunk, ","))

		body, err := c.doGet(ctx, "/price/v2?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("jupiter: fetch prices: %w", err)
		}

		var resp APIPriceResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("jupiter: decode prices: %w", err)
		}

		now := time.Now().UTC()
		for _, mint := range chunk {
			quote, ok := resp.Data[mint]
			if !ok || quote.Price == "" {
				continue
			}
			priceUSD, err := decimal.NewFromString(quote.Price)
			if err != nil || priceUSD.IsZero() {
				continue
			}
			result[mint] = domain.TokenPrice{
				Mint:      mint,
				PriceUSD:  priceUSD,
				Source:    "jupiter",
				FetchedAt: now,
			}
		}
	}

	return result, nil
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
