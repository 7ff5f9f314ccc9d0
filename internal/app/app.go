// Package app provides the top-level application lifecycle for the trading
// engine. It wires together all dependencies (venue clients, feeds, the
// execution coordinator, the journal, caches, and notifications) and runs
// the engine's goroutines until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradepilot/internal/config"
	"github.com/alanyoungcy/tradepilot/internal/feed"
	"github.com/alanyoungcy/tradepilot/internal/monitor"
	"github.com/alanyoungcy/tradepilot/internal/server"
	"github.com/alanyoungcy/tradepilot/internal/server/handler"
	"github.com/alanyoungcy/tradepilot/internal/trigger"
)

// quoteMirrorInterval is the cadence at which session quotes are mirrored
// into the Redis cache for out-of-process readers.
const quoteMirrorInterval = 2 * time.Second

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the
// engine's goroutines, and blocks until the context is cancelled or a
// component fails. On return the registered cleanup functions still need
// Close to run them.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting trading engine",
		slog.String("condition_id", a.cfg.Market.ConditionID),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, ctx := errgroup.WithContext(ctx)

	// Trigger evaluation runs inline in the market feed's read loop.
	eval := trigger.New(a.logger, deps.Session, deps.Executor, deps.Clob.HasCredentials)

	marketFeed := feed.NewMarketFeed(a.logger, deps.Session, deps.Stream, eval)
	if err := marketFeed.Start(ctx); err != nil {
		return fmt.Errorf("app: market feed: %w", err)
	}
	a.closers = append(a.closers, func() { _ = marketFeed.Close() })

	refFeed := feed.NewReferenceFeed(a.logger, deps.Session, deps.RefStream, deps.RefREST)
	refFeed.Start(ctx)
	a.closers = append(a.closers, func() { _ = refFeed.Close() })

	// Position monitor runs regardless of the startup auto-sell setting so
	// enabling it over the API takes effect without a restart.
	mon := monitor.New(a.logger, deps.Session, deps.Clob.Address(),
		deps.Data, deps.Clob, deps.Executor, deps.Funds, deps.Notifier)
	g.Go(func() error {
		return mon.Run(ctx)
	})

	g.Go(func() error {
		return a.mirrorQuotes(ctx, deps)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// mirrorQuotes periodically copies session quotes and the reference price
// into Redis so dashboards and other processes can read them without
// touching the engine.
func (a *App) mirrorQuotes(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(quoteMirrorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for _, q := range deps.Session.Quotes() {
			if err := deps.QuoteCache.SetQuote(ctx, q); err != nil {
				a.logger.WarnContext(ctx, "quote cache write failed",
					slog.String("asset_id", q.AssetID),
					slog.String("error", err.Error()))
			}
		}
		if ref := deps.Session.ReferencePrice(); ref.Symbol != "" {
			if err := deps.QuoteCache.SetReferencePrice(ctx, ref); err != nil {
				a.logger.WarnContext(ctx, "reference price cache write failed",
					slog.String("symbol", ref.Symbol),
					slog.String("error", err.Error()))
			}
		}
	}
}

// startHTTPServer adds the control API server and its shutdown watcher to
// the given errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	srv := server.New(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(a.logger),
			Status:    handler.NewStatusHandler(deps.Session, a.logger),
			Quotes:    handler.NewQuotesHandler(deps.Session, deps.QuoteCache, a.logger),
			Rules:     handler.NewRulesHandler(deps.Session, a.logger),
			AutoSell:  handler.NewAutoSellHandler(deps.Session, a.logger),
			Trade:     handler.NewTradeHandler(deps.Executor, a.cfg.Executor.AutoConfirm, a.logger),
			History:   handler.NewHistoryHandler(deps.Journal, a.logger),
			Positions: handler.NewPositionsHandler(deps.Data, deps.Clob.Address(), a.logger),
			Balance:   handler.NewBalanceHandler(deps.Clob, a.logger),
		},
		a.logger,
	)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "control API listening",
			slog.Int("port", a.cfg.Server.Port))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.InfoContext(ctx, "control API shutting down")
		return srv.Shutdown(shutCtx)
	})
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down trading engine")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
