package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// AccountHandler serves the account summary and the trading-mode toggle.
type AccountHandler struct {
	manager TradeManager
	logger  *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(manager TradeManager, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{manager: manager, logger: logger}
}

// GetAccount responds with the account snapshot and closed-trade statistics.
// GET /api/account
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account := h.manager.Account()
	stats := h.manager.Stats()

	writeJSON(w, http.StatusOK, map[string]any{
		"balance":             account.Balance,
		"day_start_balance":   account.DayStartBalance,
		"daily_realized_pnl":  account.DailyRealizedPnL,
		"day_start":           account.DayStart,
		"open_position_count": account.OpenPositionCount,
		"dry_run":             h.manager.DryRun(),
		"stats":               stats,
	})
}

// modeRequest is the trading-mode toggle body.
type modeRequest struct {
	DryRun *bool `json:"dry_run"`
}

// SetTradingMode switches between dry-run and live execution. The change
// takes effect before the next candidate is opened.
// POST /api/trading/mode
func (h *AccountHandler) SetTradingMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DryRun == nil {
		writeError(w, http.StatusBadRequest, `body must be {"dry_run": true|false}`)
		return
	}

	h.manager.SetDryRun(*req.DryRun)
	logHandler(h.logger, "account").Info("trading mode changed",
		slog.Bool("dry_run", *req.DryRun),
	)

	writeJSON(w, http.StatusOK, map[string]any{"dry_run": h.manager.DryRun()})
}
