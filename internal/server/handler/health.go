package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	started time.Time
	mode    string
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. mode is the operating mode the
// process was started in ("trade", "monitor", "full").
func NewHealthHandler(mode string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		started: time.Now().UTC(),
		mode:    mode,
		logger:  logger,
	}
}

// HealthCheck responds with a simple JSON status indicating the server is
// alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"mode":      h.mode,
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
