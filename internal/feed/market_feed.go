// Package feed wires the transport clients to the session: the market feed
// keeps outcome quotes fresh and drives the trigger evaluator, the
// reference feed keeps the underlying asset price fresh.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/alanyoungcy/tradepilot/internal/platform/polymarket"
	"github.com/alanyoungcy/tradepilot/internal/session"
	"github.com/alanyoungcy/tradepilot/internal/trigger"
)

// MarketFeed connects the market WebSocket to the session and runs trigger
// evaluation inline on every book update, so rules observe book states in
// arrival order with nothing in between.
type MarketFeed struct {
	log    *slog.Logger
	sess   *session.Session
	stream *polymarket.MarketStream
	eval   *trigger.Evaluator

	outcomeIdx map[string]int // token id -> outcome index
}

// NewMarketFeed creates the feed. eval may be nil when trading is disabled.
func NewMarketFeed(logger *slog.Logger, sess *session.Session, stream *polymarket.MarketStream, eval *trigger.Evaluator) *MarketFeed {
	idx := make(map[string]int, len(sess.Market.TokenIDs))
	for i, id := range sess.Market.TokenIDs {
		idx[id] = i
	}
	return &MarketFeed{
		log:        logger.With(slog.String("component", "market_feed")),
		sess:       sess,
		stream:     stream,
		eval:       eval,
		outcomeIdx: idx,
	}
}

// Start registers handlers and connects. On connection loss the session's
// connectivity flag flips and stays down; reconnecting is the supervisor's
// call, not the feed's.
func (f *MarketFeed) Start(ctx context.Context) error {
	f.stream.OnBook(func(snap domain.BookSnapshot) {
		now := time.Now()
		quote, ok := f.sess.ApplyBook(snap, now)
		if !ok {
			return
		}
		if f.eval != nil {
			f.eval.OnBookUpdate(ctx, f.outcomeIdx[snap.AssetID], quote)
		}
	})

	f.stream.OnTradePrice(func(assetID string, price float64, ts time.Time) {
		f.sess.SetLast(assetID, price, ts)
		f.sess.RecordHistoryPoint(ts)
	})

	f.stream.OnDisconnect(func(err error) {
		f.sess.SetConnected(false)
		f.log.Warn("market stream lost, session dropping to fallback cadence",
			slog.String("error", err.Error()))
	})

	if err := f.stream.Connect(ctx, f.sess.Market.TokenIDs); err != nil {
		return fmt.Errorf("feed: market stream: %w", err)
	}
	f.sess.SetConnected(true)

	f.log.Info("market stream connected",
		slog.String("condition_id", f.sess.Market.ConditionID),
		slog.Int("assets", len(f.sess.Market.TokenIDs)))
	return nil
}

// Close tears the stream down.
func (f *MarketFeed) Close() error {
	f.sess.SetConnected(false)
	return f.stream.Close()
}
