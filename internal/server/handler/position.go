package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/Shillz96/solsim-sub007/internal/domain"
	"github.com/Shillz96/solsim-sub007/internal/service"
)

// TradeService defines the methods that the position handler requires.
type TradeService interface {
	Open(ctx context.Context, req service.OpenRequest) (domain.Position, domain.Trade, error)
	Close(ctx context.Context, userID, positionID string) (domain.Position, domain.Trade, error)
	GetPosition(ctx context.Context, userID, positionID string) (domain.Position, error)
	ListOpen(ctx context.Context, userID string) ([]domain.Position, error)
	ListHistory(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error)
}

// PositionHandler serves the position lifecycle HTTP endpoints.
type PositionHandler struct {
	trades domain.TradeStore
	svc    TradeService
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(svc TradeService, trades domain.TradeStore, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		trades: trades,
		svc:    svc,
		logger: logger,
	}
}

type openPositionRequest struct {
	UserID    string `json:"user_id"`
	TokenMint string `json:"token_mint"`
	Direction string `json:"direction"`
	Leverage  int64  `json:"leverage"`
	MarginSOL string `json:"margin_sol"`
}

type positionResponse struct {
	Position domain.Position `json:"position"`
	Trade    domain.Trade    `json:"trade"`
}

// OpenPosition opens a new leveraged position.
// POST /api/positions
func (h *PositionHandler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.TokenMint == "" {
		writeError(w, http.StatusBadRequest, "user_id and token_mint are required")
		return
	}
	marginSOL, err := decimal.NewFromString(req.MarginSOL)
	if err != nil {
		writeError(w, http.StatusBadRequest, "margin_sol must be a decimal string")
		return
	}

	pos, trade, err := h.svc.Open(r.Context(), service.OpenRequest{
		UserID:    req.UserID,
		TokenMint: req.TokenMint,
		Direction: domain.Direction(req.Direction),
		Leverage:  req.Leverage,
		MarginSOL: marginSOL,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: open position failed",
			slog.String("user_id", req.UserID),
			slog.String("mint", req.TokenMint),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, positionResponse{Position: pos, Trade: trade})
}

type closePositionRequest struct {
	UserID string `json:"user_id"`
}

// ClosePosition closes an open position at the current mark price.
// POST /api/positions/{id}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	positionID := r.PathValue("id")

	var req closePositionRequest
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	pos, trade, err := h.svc.Close(r.Context(), req.UserID, positionID)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: close position failed",
			slog.String("position_id", positionID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, positionResponse{Position: pos, Trade: trade})
}

// GetPosition returns one position with live-recomputed health when open.
// GET /api/positions/{id}?user_id=...
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	positionID := r.PathValue("id")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter required")
		return
	}

	pos, err := h.svc.GetPosition(r.Context(), userID, positionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]domain.Position{"position": pos})
}

// ListPositions returns the user's open positions.
// GET /api/positions?user_id=...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter required")
		return
	}

	positions, err := h.svc.ListOpen(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Position{"positions": positions})
}

// ListHistory returns the user's positions in every state, newest first.
// GET /api/positions/history?user_id=...&limit=...&offset=...
func (h *PositionHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter required")
		return
	}

	positions, err := h.svc.ListHistory(r.Context(), userID, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Position{"positions": positions})
}

// ListTrades returns the trade ledger for a user or a single position.
// GET /api/trades?user_id=... or GET /api/trades?position_id=...
func (h *PositionHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		trades []domain.Trade
		err    error
	)
	switch {
	case q.Get("position_id") != "":
		trades, err = h.trades.ListByPosition(r.Context(), q.Get("position_id"))
	case q.Get("user_id") != "":
		trades, err = h.trades.ListByUser(r.Context(), q.Get("user_id"), parseListOpts(r))
	default:
		writeError(w, http.StatusBadRequest, "user_id or position_id query parameter required")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Trade{"trades": trades})
}
