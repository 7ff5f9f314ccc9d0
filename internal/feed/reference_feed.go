package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/alanyoungcy/tradepilot/internal/platform/pricefeed"
	"github.com/alanyoungcy/tradepilot/internal/session"
)

const (
	// pollInterval is the REST fallback cadence after the stream dies.
	pollInterval = 3 * time.Second

	// seedCandleCount is how many 1m bars pre-seed the session at start.
	seedCandleCount = 60
)

// ReferenceFeed keeps the session's underlying asset price fresh. It
// prefers the stream; when the stream dies it switches to REST polling for
// the rest of its life. The switch is one-way: a flapping stream gives a
// worse signal than a steady 3s poll.
type ReferenceFeed struct {
	log    *slog.Logger
	sess   *session.Session
	stream *pricefeed.StreamClient
	rest   *pricefeed.RESTClient
	symbol string

	pollOnce sync.Once
	interval time.Duration // test override; zero means pollInterval
}

// NewReferenceFeed creates the feed for the session's derived symbol.
func NewReferenceFeed(logger *slog.Logger, sess *session.Session, stream *pricefeed.StreamClient, rest *pricefeed.RESTClient) *ReferenceFeed {
	return &ReferenceFeed{
		log:    logger.With(slog.String("component", "reference_feed")),
		sess:   sess,
		stream: stream,
		rest:   rest,
		symbol: sess.Market.ReferenceSymbol(),
	}
}

// Start pre-seeds candles, then connects the stream. A failed connect
// drops straight to polling; the feed never errors out of Start for
// transport reasons.
func (f *ReferenceFeed) Start(ctx context.Context) {
	f.seed(ctx)

	f.stream.OnPrice(func(p domain.ReferencePrice) {
		f.sess.SetReferencePrice(p)
	})
	f.stream.OnDisconnect(func(err error) {
		f.log.Warn("reference stream lost, switching to polling",
			slog.String("symbol", f.symbol),
			slog.String("error", err.Error()))
		f.startPolling(ctx)
	})

	if err := f.stream.Connect(ctx); err != nil {
		f.log.Warn("reference stream connect failed, polling instead",
			slog.String("symbol", f.symbol),
			slog.String("error", err.Error()))
		f.startPolling(ctx)
		return
	}

	f.log.Info("reference stream connected", slog.String("symbol", f.symbol))
}

// Close stops the stream. An active poll loop stops with its context.
func (f *ReferenceFeed) Close() error {
	return f.stream.Close()
}

// seed fetches the startup candle window and publishes the latest close as
// the first reference price, so the UI and monitor have a value before any
// live tick arrives.
func (f *ReferenceFeed) seed(ctx context.Context) {
	candles, err := f.rest.GetKlines(ctx, f.symbol, "1m", seedCandleCount)
	if err != nil {
		f.log.Warn("candle pre-seed failed", slog.String("symbol", f.symbol), slog.String("error", err.Error()))
		return
	}
	if len(candles) == 0 {
		return
	}

	f.sess.SeedCandles(candles)
	last := candles[len(candles)-1]
	f.sess.SetReferencePrice(domain.ReferencePrice{
		Symbol:    f.symbol,
		Value:     last.Close,
		Timestamp: last.OpenTime,
		Source:    domain.SourceSeed,
	})
}

func (f *ReferenceFeed) startPolling(ctx context.Context) {
	f.pollOnce.Do(func() {
		go f.pollLoop(ctx)
	})
}

func (f *ReferenceFeed) pollLoop(ctx context.Context) {
	interval := f.interval
	if interval == 0 {
		interval = pollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			price, err := f.rest.GetPrice(ctx, f.symbol)
			if err != nil {
				f.log.Warn("reference poll failed", slog.String("symbol", f.symbol), slog.String("error", err.Error()))
				continue
			}
			f.sess.SetReferencePrice(price)
		}
	}
}
