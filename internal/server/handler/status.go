package handler

import (
	"net/http"

	"github.com/Shillz96/solsim-sub007/internal/domain"
)

// SourceStater reports circuit breaker state per price source.
type SourceStater interface {
	SourceStates() map[string]string
}

// StatusHandler serves operational status: mode, price source breaker
// states, and recent liquidations.
type StatusHandler struct {
	Mode         string
	sources      SourceStater
	liquidations domain.LiquidationStore
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, sources SourceStater, liquidations domain.LiquidationStore) *StatusHandler {
	return &StatusHandler{Mode: mode, sources: sources, liquidations: liquidations}
}

// GetStatus responds with the operating mode and price source health.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":    h.Mode,
		"sources": h.sources.SourceStates(),
	})
}

// ListLiquidations returns the most recent liquidations, newest first.
// GET /api/liquidations?limit=...
func (h *StatusHandler) ListLiquidations(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	liqs, err := h.liquidations.ListRecent(r.Context(), opts.Limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if liqs == nil {
		liqs = []domain.Liquidation{}
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Liquidation{"liquidations": liqs})
}
