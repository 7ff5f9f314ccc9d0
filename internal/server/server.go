// Package server exposes the HTTP control API for the trading engine.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/server/handler"
	"github.com/alanyoungcy/tradepilot/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates the HTTP handlers the server registers. Optional
// handlers (nil fields) simply leave their routes unregistered.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Quotes    *handler.QuotesHandler
	Rules     *handler.RulesHandler
	AutoSell  *handler.AutoSellHandler
	Trade     *handler.TradeHandler
	History   *handler.HistoryHandler
	Positions *handler.PositionsHandler
	Balance   *handler.BalanceHandler
}

// Server is the control API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes registered and the middleware chain
// (CORS, logging, auth) applied.
func New(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	mux.HandleFunc("GET /api/quotes", handlers.Quotes.ListQuotes)
	mux.HandleFunc("GET /api/chart", handlers.Quotes.GetChart)

	mux.HandleFunc("GET /api/rules", handlers.Rules.ListRules)
	mux.HandleFunc("PUT /api/rules/{index}", handlers.Rules.UpdateRule)

	mux.HandleFunc("GET /api/autosell", handlers.AutoSell.GetConfig)
	mux.HandleFunc("PUT /api/autosell", handlers.AutoSell.UpdateConfig)

	mux.HandleFunc("POST /api/trade", handlers.Trade.PlaceTrade)
	mux.HandleFunc("POST /api/trade/{id}/confirm", handlers.Trade.ConfirmTrade)
	mux.HandleFunc("DELETE /api/trade/{id}", handlers.Trade.CancelPending)

	mux.HandleFunc("GET /api/history", handlers.History.ListHistory)

	if handlers.Positions != nil {
		mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	}
	if handlers.Balance != nil {
		mux.HandleFunc("GET /api/balance", handlers.Balance.GetBalance)
	}

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
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
