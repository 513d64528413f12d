package handler

import (
	"log/slog"
	"net/http"

	"github.com/knoxfield/regimebot/internal/domain"
)

// CandidateSource supplies the last evaluated candidate and its decision.
type CandidateSource interface {
	LastRecord() (domain.CandidateRecord, bool)
}

// CandidateHistory supplies recently emitted candidates, newest first.
type CandidateHistory interface {
	RecentCandidates(limit int) []domain.TradeCandidate
}

// SignalHandler serves the signal generator's output.
type SignalHandler struct {
	executor CandidateSource
	history  CandidateHistory // may be nil when execution is disabled
	logger   *slog.Logger
}

// NewSignalHandler creates a SignalHandler.
func NewSignalHandler(executor CandidateSource, history CandidateHistory, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{executor: executor, history: history, logger: logger}
}

// GetSignal responds with the last candidate and what was decided about it.
// Before any candidate has been evaluated the outcome is "no_candidate".
// GET /api/signal
func (h *SignalHandler) GetSignal(w http.ResponseWriter, r *http.Request) {
	if h.executor == nil {
		writeJSON(w, http.StatusOK, map[string]any{"outcome": "no_candidate"})
		return
	}

	record, ok := h.executor.LastRecord()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"outcome": "no_candidate"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"outcome":   record.Outcome,
		"candidate": record.Candidate,
		"decision":  record.Decision,
		"timestamp": record.Timestamp,
	})
}

// ListRecent responds with the most recently emitted candidates.
// GET /api/signal/recent
func (h *SignalHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"candidates": []domain.TradeCandidate{}})
		return
	}

	opts := parseListOpts(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"candidates": h.history.RecentCandidates(opts.Limit),
	})
}
