package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
)

// TradeManager is the slice of the lifecycle manager the position endpoints
// need.
type TradeManager interface {
	OpenPositions() []domain.Position
	ClosedPositions(limit int) []domain.Position
	CloseManual(ctx context.Context, id string, price float64, reason string) error
	Account() domain.AccountState
	Stats() domain.TradeStats
	SetDryRun(dry bool)
	DryRun() bool
}

// LastPriceSource supplies the last traded price for manual closes without
// an explicit price.
type LastPriceSource interface {
	LastPrice(symbol string) (float64, time.Time, bool)
}

// PositionHandler serves open positions, trade history, and manual closes.
type PositionHandler struct {
	manager TradeManager
	store   domain.PositionStore // optional persisted history
	prices  LastPriceSource      // may be nil; manual close then requires a price
	logger  *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(manager TradeManager, store domain.PositionStore, prices LastPriceSource, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{manager: manager, store: store, prices: prices, logger: logger}
}

// ListPositions responds with all currently open positions.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"positions": h.manager.OpenPositions(),
	})
}

// ListHistory responds with closed positions, newest first. The persisted
// store is preferred when available; otherwise the bounded in-memory ring
// is served.
// GET /api/positions/history
func (h *PositionHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	if h.store != nil {
		symbol := r.URL.Query().Get("symbol")
		positions, err := h.store.ListHistory(r.Context(), symbol, opts)
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
			return
		}
		logHandler(h.logger, "positions").Warn("history store query failed, serving memory",
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"positions": h.manager.ClosedPositions(opts.Limit),
	})
}

// closeRequest is the manual-close request body. Price is optional when a
// live price feed is attached.
type closeRequest struct {
	Price  float64 `json:"price"`
	Reason string  `json:"reason"`
}

// ClosePosition closes one open position at the given or last traded price.
// POST /api/positions/{id}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing position id")
		return
	}

	// An empty body is fine; malformed JSON is not.
	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	price := req.Price
	if price <= 0 {
		price = h.lookupPrice(id)
	}
	if price <= 0 {
		writeError(w, http.StatusBadRequest, "no price supplied and no live price available")
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual close via API"
	}

	if err := h.manager.CloseManual(r.Context(), id, price, reason); err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrPositionClosed) {
			writeError(w, http.StatusNotFound, "position not open")
			return
		}
		logHandler(h.logger, "positions").Error("manual close failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "close failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"closed": id,
		"price":  price,
	})
}

// lookupPrice resolves the last traded price for the symbol of an open
// position. Zero when unavailable.
func (h *PositionHandler) lookupPrice(id string) float64 {
	if h.prices == nil {
		return 0
	}
	for _, p := range h.manager.OpenPositions() {
		if p.ID == id {
			if price, _, ok := h.prices.LastPrice(p.Symbol); ok {
				return price
			}
			return 0
		}
	}
	return 0
}
