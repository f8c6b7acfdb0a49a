package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shillz96/solsim-sub007/internal/domain"
	"github.com/Shillz96/solsim-sub007/internal/service"
)

// stubTradeService returns canned results so handler behavior can be tested
// without the full service stack.
type stubTradeService struct {
	openErr  error
	closeErr error
	pos      domain.Position
	trade    domain.Trade

	gotOpen service.OpenRequest
}

func (s *stubTradeService) Open(_ context.Context, req service.OpenRequest) (domain.Position, domain.Trade, error) {
	s.gotOpen = req
	if s.openErr != nil {
		return domain.Position{}, domain.Trade{}, s.openErr
	}
	return s.pos, s.trade, nil
}

func (s *stubTradeService) Close(context.Context, string, string) (domain.Position, domain.Trade, error) {
	if s.closeErr != nil {
		return domain.Position{}, domain.Trade{}, s.closeErr
	}
	return s.pos, s.trade, nil
}

func (s *stubTradeService) GetPosition(context.Context, string, string) (domain.Position, error) {
	return s.pos, nil
}

func (s *stubTradeService) ListOpen(context.Context, string) ([]domain.Position, error) {
	return nil, nil
}

func (s *stubTradeService) ListHistory(context.Context, string, domain.ListOpts) ([]domain.Position, error) {
	return nil, nil
}

func newTestMux(svc TradeService) *http.ServeMux {
	h := NewPositionHandler(svc, nil, slog.New(slog.DiscardHandler))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/positions", h.OpenPosition)
	mux.HandleFunc("POST /api/positions/{id}/close", h.ClosePosition)
	mux.HandleFunc("GET /api/positions", h.ListPositions)
	return mux
}

func TestOpenPositionSuccess(t *testing.T) {
	svc := &stubTradeService{
		pos:   domain.Position{ID: "pos-1", Status: domain.PositionStatusOpen},
		trade: domain.Trade{ID: "trade-1"},
	}
	mux := newTestMux(svc)

	body := `{"user_id":"u1","token_mint":"mint-a","direction":"long","leverage":10,"margin_sol":"1.5"}`
	req := httptest.NewRequest(http.MethodPost, "/api/positions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "u1", svc.gotOpen.UserID)
	assert.Equal(t, domain.DirectionLong, svc.gotOpen.Direction)
	assert.True(t, svc.gotOpen.MarginSOL.Equal(decimal.NewFromFloat(1.5)))

	var resp positionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pos-1", resp.Position.ID)
	assert.Equal(t, "trade-1", resp.Trade.ID)
}

func TestOpenPositionRejectsBadMargin(t *testing.T) {
	mux := newTestMux(&stubTradeService{})

	body := `{"user_id":"u1","token_mint":"mint-a","direction":"long","leverage":10,"margin_sol":"not-a-number"}`
	req := httptest.NewRequest(http.MethodPost, "/api/positions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenPositionRejectsUnknownField(t *testing.T) {
	mux := newTestMux(&stubTradeService{})

	body := `{"user_id":"u1","token_mint":"mint-a","direction":"long","leverage":10,"margin_sol":"1","bogus":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/positions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDomainErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden},
		{"duplicate open", domain.ErrPositionExists, http.StatusConflict},
		{"not open", domain.ErrPositionNotOpen, http.StatusConflict},
		{"insufficient funds", domain.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{"bad leverage", domain.ErrInvalidLeverage, http.StatusBadRequest},
		{"not whitelisted", domain.ErrNotWhitelisted, http.StatusBadRequest},
		{"price unavailable", domain.ErrPriceUnavailable, http.StatusServiceUnavailable},
		{"lock busy", domain.ErrLockBusy, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := newTestMux(&stubTradeService{openErr: tc.err})

			body := `{"user_id":"u1","token_mint":"mint-a","direction":"long","leverage":10,"margin_sol":"1"}`
			req := httptest.NewRequest(http.MethodPost, "/api/positions", strings.NewReader(body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestClosePositionRequiresUserID(t *testing.T) {
	mux := newTestMux(&stubTradeService{})

	req := httptest.NewRequest(http.MethodPost, "/api/positions/pos-1/close", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPositionsEmptySliceNotNull(t *testing.T) {
	mux := newTestMux(&stubTradeService{})

	req := httptest.NewRequest(http.MethodGet, "/api/positions?user_id=u1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"positions":[]`)
}
