// Package monitor watches open positions and auto-sells them when the
// configured take-profit or stop-loss threshold is crossed.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/alanyoungcy/tradepilot/internal/session"
)

const (
	// Refresh cadence: tight while live book updates flow, relaxed when
	// the engine is on the REST fallback.
	intervalLive     = 2 * time.Second
	intervalFallback = 10 * time.Second
)

// PositionSource reads the wallet's open positions.
type PositionSource interface {
	GetPositions(ctx context.Context, address string) ([]domain.Position, error)
}

// QuoteSource reads current prices for the pre-flight check and the
// price override.
type QuoteSource interface {
	GetOrderBook(ctx context.Context, tokenID string) (domain.BookSnapshot, error)
	GetPrice(ctx context.Context, tokenID, side string) (float64, error)
}

// SellExecutor submits the sell intent.
type SellExecutor interface {
	ConfirmIntent(ctx context.Context, intent domain.TradeIntent) (domain.OrderResult, error)
}

// Redeemer claims winnings from resolved markets.
type Redeemer interface {
	RedeemResolved(ctx context.Context, conditionID string) (string, error)
}

// Notifier pushes operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Monitor drives the auto-sell loop for one session.
type Monitor struct {
	log      *slog.Logger
	sess     *session.Session
	address  string
	source   PositionSource
	quotes   QuoteSource
	exec     SellExecutor
	redeemer Redeemer // optional
	notifier Notifier // optional

	// interval overrides for tests; zero means production cadence.
	liveInterval, fallbackInterval time.Duration
}

// New creates a monitor. redeemer and notifier may be nil.
func New(logger *slog.Logger, sess *session.Session, address string, source PositionSource, quotes QuoteSource, exec SellExecutor, redeemer Redeemer, notifier Notifier) *Monitor {
	return &Monitor{
		log:      logger.With(slog.String("component", "autosell")),
		sess:     sess,
		address:  address,
		source:   source,
		quotes:   quotes,
		exec:     exec,
		redeemer: redeemer,
		notifier: notifier,
	}
}

// Run loops until ctx is done. The interval tightens while live updates
// flow and relaxes on the fallback, re-evaluated every cycle.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		m.Cycle(ctx)

		interval := m.fallbackIntervalOr(intervalFallback)
		if m.sess.Connected() {
			interval = m.liveIntervalOr(intervalLive)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Cycle refreshes positions once and acts on threshold breaches.
func (m *Monitor) Cycle(ctx context.Context) {
	cfg := m.sess.AutoSellSnapshot()
	if !cfg.Enabled {
		return
	}

	positions, err := m.source.GetPositions(ctx, m.address)
	if err != nil {
		m.log.Warn("position refresh failed", slog.String("error", err.Error()))
		return
	}

	for _, pos := range positions {
		if pos.AssetID == "" || pos.Size <= 0 {
			continue
		}
		if m.isTriggered(pos.ConditionID) {
			continue
		}

		cur := m.currentPrice(ctx, pos)
		if cur <= 0 || pos.AvgPrice <= 0 {
			continue
		}

		pct := (cur - pos.AvgPrice) / pos.AvgPrice * 100

		hitTP := cfg.TakeProfitPercent > 0 && pct >= cfg.TakeProfitPercent
		hitSL := cfg.StopLossPercent > 0 && pct <= -cfg.StopLossPercent
		if !hitTP && !hitSL {
			continue
		}

		reason := "take_profit"
		if hitSL {
			reason = "stop_loss"
		}
		m.log.Info("auto-sell threshold hit",
			slog.String("condition_id", pos.ConditionID),
			slog.String("reason", reason),
			slog.Float64("pnl_pct", pct))

		// Latch before the sell so a slow or failing submit can never
		// fire twice for the same position.
		m.markTriggered(pos.ConditionID)
		m.sell(ctx, pos, reason, pct)
	}
}

// sell pre-flights liquidity and submits an aggressive sell. Failures
// leave the position latched; the operator decides whether to re-enable.
func (m *Monitor) sell(ctx context.Context, pos domain.Position, reason string, pct float64) {
	book, err := m.quotes.GetOrderBook(ctx, pos.AssetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			m.sess.MarkResolved(pos.AssetID)
			m.redeem(ctx, pos)
			return
		}
		m.alert(ctx, "autosell_failed", "Auto-sell aborted",
			fmt.Sprintf("%s: book fetch failed: %v", pos.Title, err))
		return
	}

	bid := book.BestBid()
	if bid.Price <= 0 {
		m.alert(ctx, "autosell_failed", "Auto-sell aborted",
			fmt.Sprintf("%s: no buyers in the book (%s, %.1f%%)", pos.Title, reason, pct))
		return
	}

	intent := domain.TradeIntent{
		ID:             uuid.NewString(),
		Strategy:       domain.StrategyAggressive,
		Side:           domain.OrderSideSell,
		TokenID:        pos.AssetID,
		Price:          domain.ClampPrice(bid.Price),
		WorstCasePrice: domain.MinPriceTick,
		Shares:         pos.Size,
		EstCost:        pos.Size * bid.Price,
		Source:         "auto_sell",
		CreatedAt:      time.Now(),
	}

	result, err := m.exec.ConfirmIntent(ctx, intent)
	if err != nil {
		m.log.Error("auto-sell failed",
			slog.String("condition_id", pos.ConditionID),
			slog.String("error", err.Error()))
		m.alert(ctx, "autosell_failed", "Auto-sell failed",
			fmt.Sprintf("%s: %v", pos.Title, err))
		return
	}

	m.alert(ctx, "autosell_filled", "Auto-sell complete",
		fmt.Sprintf("%s: sold %.2f shares @ %.3f (%s, %.1f%%)",
			pos.Title, result.Shares, result.Price, reason, pct))
}

// redeem claims a resolved market's winnings instead of selling into a
// book that no longer exists.
func (m *Monitor) redeem(ctx context.Context, pos domain.Position) {
	if m.redeemer == nil {
		m.log.Warn("market resolved but no redeemer configured",
			slog.String("condition_id", pos.ConditionID))
		return
	}
	hash, err := m.redeemer.RedeemResolved(ctx, pos.ConditionID)
	if err != nil {
		m.log.Error("redemption failed",
			slog.String("condition_id", pos.ConditionID),
			slog.String("error", err.Error()))
		return
	}
	m.alert(ctx, "position_redeemed", "Position redeemed",
		fmt.Sprintf("%s: resolved market redeemed (tx %s)", pos.Title, hash))
}

// currentPrice prefers the session's live best bid, then the venue's
// quoted sell price, then the data API's stale figure.
func (m *Monitor) currentPrice(ctx context.Context, pos domain.Position) float64 {
	if m.sess.Connected() {
		if q, ok := m.sess.Quote(pos.AssetID); ok && q.Bid > 0 {
			return q.Bid
		}
	}
	if !m.sess.IsResolved(pos.AssetID) {
		if price, err := m.quotes.GetPrice(ctx, pos.AssetID, "sell"); err == nil && price > 0 {
			return price
		}
	}
	return pos.CurPrice
}

func (m *Monitor) isTriggered(conditionID string) bool {
	triggered := false
	m.sess.WithAutoSell(func(c *domain.AutoSellConfig) {
		triggered = c.IsTriggered(conditionID)
	})
	return triggered
}

func (m *Monitor) markTriggered(conditionID string) {
	m.sess.WithAutoSell(func(c *domain.AutoSellConfig) {
		c.MarkTriggered(conditionID)
	})
}

func (m *Monitor) alert(ctx context.Context, event, title, message string) {
	m.log.Info(title, slog.String("detail", message))
	if m.notifier != nil {
		m.notifier.Notify(ctx, event, title, message)
	}
}

func (m *Monitor) liveIntervalOr(d time.Duration) time.Duration {
	if m.liveInterval > 0 {
		return m.liveInterval
	}
	return d
}

func (m *Monitor) fallbackIntervalOr(d time.Duration) time.Duration {
	if m.fallbackInterval > 0 {
		return m.fallbackInterval
	}
	return d
}
