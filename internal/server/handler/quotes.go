package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/alanyoungcy/tradepilot/internal/session"
)

// CachedQuotes reads quotes mirrored by a previous run, keyed by asset id.
type CachedQuotes interface {
	GetQuotes(ctx context.Context, assetIDs []string) (map[string]domain.OutcomeQuote, error)
}

// QuotesHandler serves the session's live quotes and sampled history. When
// the session is cold (fresh restart, no book received yet) it falls back to
// the quote cache so the dashboard shows the previous run's prices instead
// of zeros.
type QuotesHandler struct {
	sess   *session.Session
	cache  CachedQuotes // optional
	logger *slog.Logger
}

// NewQuotesHandler creates a QuotesHandler for the given session. cache may
// be nil.
func NewQuotesHandler(sess *session.Session, cache CachedQuotes, logger *slog.Logger) *QuotesHandler {
	return &QuotesHandler{sess: sess, cache: cache, logger: logger}
}

type quoteResponse struct {
	AssetID   string  `json:"asset_id"`
	Outcome   string  `json:"outcome,omitempty"`
	Bid       float64 `json:"bid"`
	BidSize   float64 `json:"bid_size"`
	Ask       float64 `json:"ask"`
	AskSize   float64 `json:"ask_size"`
	Last      float64 `json:"last"`
	UpdatedAt string  `json:"updated_at,omitempty"`
}

// ListQuotes returns the current quote for every outcome token.
// GET /api/quotes
func (h *QuotesHandler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	quotes := h.sess.Quotes()
	if h.cache != nil && allStale(quotes) {
		quotes = h.fromCache(r.Context(), quotes)
	}

	out := make([]quoteResponse, 0, len(quotes))
	for _, q := range quotes {
		resp := quoteResponse{
			AssetID: q.AssetID,
			Outcome: q.Outcome,
			Bid:     q.Bid,
			BidSize: q.BidSize,
			Ask:     q.Ask,
			AskSize: q.AskSize,
			Last:    q.Last,
		}
		if !q.UpdatedAt.IsZero() {
			resp.UpdatedAt = q.UpdatedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, resp)
	}

	writeJSON(w, http.StatusOK, map[string]any{"quotes": out})
}

func allStale(quotes []domain.OutcomeQuote) bool {
	for _, q := range quotes {
		if !q.UpdatedAt.IsZero() {
			return false
		}
	}
	return true
}

// fromCache overlays cached quotes on the cold session entries, keeping the
// placeholder for any token the cache has already expired.
func (h *QuotesHandler) fromCache(ctx context.Context, quotes []domain.OutcomeQuote) []domain.OutcomeQuote {
	ids := make([]string, 0, len(quotes))
	for _, q := range quotes {
		ids = append(ids, q.AssetID)
	}

	cached, err := h.cache.GetQuotes(ctx, ids)
	if err != nil {
		h.logger.Warn("quote cache read failed", slog.String("error", err.Error()))
		return quotes
	}

	for i, q := range quotes {
		if c, ok := cached[q.AssetID]; ok {
			c.Outcome = q.Outcome
			quotes[i] = c
		}
	}
	return quotes
}

type pricePointResponse struct {
	Timestamp string  `json:"timestamp"`
	Up        float64 `json:"up"`
	Down      float64 `json:"down"`
}

type candleResponse struct {
	OpenTime string  `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// GetChart returns the sampled outcome price history plus the seeded
// reference candles, for front-end charting.
// GET /api/chart
func (h *QuotesHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	points := h.sess.History()
	history := make([]pricePointResponse, 0, len(points))
	for _, p := range points {
		history = append(history, pricePointResponse{
			Timestamp: p.Timestamp.UTC().Format(time.RFC3339),
			Up:        p.Up,
			Down:      p.Down,
		})
	}

	raw := h.sess.Candles()
	candles := make([]candleResponse, 0, len(raw))
	for _, c := range raw {
		candles = append(candles, candleResponse{
			OpenTime: c.OpenTime.UTC().Format(time.RFC3339),
			Open:     c.Open,
			High:     c.High,
			Low:      c.Low,
			Close:    c.Close,
			Volume:   c.Volume,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"history": history,
		"candles": candles,
	})
}
