package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
)

// RegimeSource supplies regime snapshots for the read-only API.
type RegimeSource interface {
	Current() domain.RegimeOutput
	Transitions() []domain.RegimeTransition
	DXYTrend(now time.Time) domain.TrendReading
	BTCDominanceTrend(now time.Time) domain.TrendReading
}

// RegimeHandler serves the current regime and its transition history.
type RegimeHandler struct {
	source RegimeSource
	store  domain.RegimeStore // optional persisted history
	logger *slog.Logger
}

// NewRegimeHandler creates a RegimeHandler. store may be nil; the
// transitions endpoint then serves the in-memory ring only.
func NewRegimeHandler(source RegimeSource, store domain.RegimeStore, logger *slog.Logger) *RegimeHandler {
	return &RegimeHandler{source: source, store: store, logger: logger}
}

// GetRegime responds with the current regime snapshot and the macro trend
// readings behind it.
// GET /api/regime
func (h *RegimeHandler) GetRegime(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	out := h.source.Current()

	writeJSON(w, http.StatusOK, map[string]any{
		"state":         out.State,
		"confidence":    out.Confidence,
		"contributions": out.Contributions,
		"permissions":   out.Permissions,
		"time_in_state": out.TimeInState.String(),
		"timestamp":     out.Timestamp,
		"trends": map[string]any{
			"dxy":           h.source.DXYTrend(now),
			"btc_dominance": h.source.BTCDominanceTrend(now),
		},
	})
}

// ListTransitions responds with accepted regime transitions, newest first.
// The persisted store is preferred when available; otherwise the bounded
// in-memory history is served.
// GET /api/regime/transitions
func (h *RegimeHandler) ListTransitions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	if h.store != nil {
		transitions, err := h.store.ListTransitions(r.Context(), opts)
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]any{"transitions": transitions})
			return
		}
		logHandler(h.logger, "regime").Warn("transition store query failed, serving memory",
			slog.String("error", err.Error()),
		)
	}

	transitions := h.source.Transitions()
	// Newest first, bounded by the requested limit.
	for i, j := 0, len(transitions)-1; i < j; i, j = i+1, j-1 {
		transitions[i], transitions[j] = transitions[j], transitions[i]
	}
	if opts.Limit > 0 && len(transitions) > opts.Limit {
		transitions = transitions[:opts.Limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": transitions})
}
