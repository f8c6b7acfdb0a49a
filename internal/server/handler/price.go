package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Shillz96/solsim-sub007/internal/domain"
)

// PriceProvider defines the price lookups the handler requires.
type PriceProvider interface {
	GetPrice(ctx context.Context, mint string) (domain.TokenPrice, error)
	GetPrices(ctx context.Context, mints []string) (map[string]domain.TokenPrice, error)
}

// PriceHandler serves token price lookups.
type PriceHandler struct {
	prices PriceProvider
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(prices PriceProvider, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{prices: prices, logger: logger}
}

// GetPrice returns the current price for one token.
// GET /api/prices/{mint}
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	mint := r.PathValue("mint")

	price, err := h.prices.GetPrice(r.Context(), mint)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: price lookup failed",
			slog.String("mint", mint),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]domain.TokenPrice{"price": price})
}

// GetPrices returns current prices for a comma-separated mint list. Mints
// that cannot be priced are omitted from the response.
// GET /api/prices?mints=a,b,c
func (h *PriceHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("mints")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "mints query parameter required")
		return
	}

	var mints []string
	for _, m := range strings.Split(raw, ",") {
		if m = strings.TrimSpace(m); m != "" {
			mints = append(mints, m)
		}
	}

	prices, err := h.prices.GetPrices(r.Context(), mints)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]map[string]domain.TokenPrice{"prices": prices})
}
