// Package server exposes the read-only query surface and the two mutating
// controls (trading-mode toggle, manual close) over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/knoxfield/regimebot/internal/server/handler"
	"github.com/knoxfield/regimebot/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server registers. Nil
// handlers leave their routes unregistered, so a monitor-mode process simply
// has no execution endpoints.
type Handlers struct {
	Health    *handler.HealthHandler
	Regime    *handler.RegimeHandler
	Signal    *handler.SignalHandler
	Positions *handler.PositionHandler
	Account   *handler.AccountHandler
	Market    *handler.MarketHandler
}

// Server is the headless HTTP API server for the bot.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux
// and the middleware chain (auth, logging, CORS) applied.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}

	// Regime endpoints.
	if handlers.Regime != nil {
		mux.HandleFunc("GET /api/regime", handlers.Regime.GetRegime)
		mux.HandleFunc("GET /api/regime/transitions", handlers.Regime.ListTransitions)
	}

	// Signal endpoints.
	if handlers.Signal != nil {
		mux.HandleFunc("GET /api/signal", handlers.Signal.GetSignal)
		mux.HandleFunc("GET /api/signal/recent", handlers.Signal.ListRecent)
	}

	// Position endpoints.
	if handlers.Positions != nil {
		mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
		mux.HandleFunc("GET /api/positions/history", handlers.Positions.ListHistory)
		mux.HandleFunc("POST /api/positions/{id}/close", handlers.Positions.ClosePosition)
	}

	// Account and trading-mode endpoints.
	if handlers.Account != nil {
		mux.HandleFunc("GET /api/account", handlers.Account.GetAccount)
		mux.HandleFunc("POST /api/trading/mode", handlers.Account.SetTradingMode)
	}

	// Market snapshot endpoint.
	if handlers.Market != nil {
		mux.HandleFunc("GET /api/market", handlers.Market.GetMarket)
	}

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
