package handler

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/Shillz96/solsim-sub007/internal/domain"
)

// maxDepositSOL caps a single simulated deposit.
var maxDepositSOL = decimal.NewFromInt(10_000)

// WalletHandler serves the simulated SOL wallet endpoints.
type WalletHandler struct {
	ledger domain.WalletLedger
	logger *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(ledger domain.WalletLedger, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{ledger: ledger, logger: logger}
}

// GetBalance returns the user's SOL balance.
// GET /api/wallet/balance?user_id=...
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter required")
		return
	}

	balance, err := h.ledger.Balance(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: balance lookup failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":     userID,
		"balance_sol": balance.String(),
	})
}

type depositRequest struct {
	UserID    string `json:"user_id"`
	AmountSOL string `json:"amount_sol"`
}

// Deposit credits simulated SOL to the user's wallet.
// POST /api/wallet/deposit
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	amount, err := decimal.NewFromString(req.AmountSOL)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount_sol must be a positive decimal string")
		return
	}
	if amount.GreaterThan(maxDepositSOL) {
		writeError(w, http.StatusBadRequest, "amount_sol exceeds deposit cap")
		return
	}

	if err := h.ledger.Credit(r.Context(), req.UserID, amount); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: deposit failed",
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	balance, err := h.ledger.Balance(r.Context(), req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":     req.UserID,
		"balance_sol": balance.String(),
	})
}
