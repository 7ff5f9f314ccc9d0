package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// BookSnapshot is a full snapshot of bids and asks for one instrument.
// Levels are carried as received; the venue does not guarantee ordering,
// so best prices must be found by scanning.
type BookSnapshot struct {
	AssetID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// BestBid returns the highest bid in the snapshot, zero if no bids.
func (b BookSnapshot) BestBid() PriceLevel {
	var best PriceLevel
	for _, lvl := range b.Bids {
		if lvl.Price > best.Price {
			best = lvl
		}
	}
	return best
}

// BestAsk returns the lowest ask in the snapshot, zero if no asks.
// Ties keep the first-seen level.
func (b BookSnapshot) BestAsk() PriceLevel {
	var best PriceLevel
	for _, lvl := range b.Asks {
		if best.Price == 0 || lvl.Price < best.Price {
			best = lvl
		}
	}
	return best
}

// OutcomeQuote is the live best-bid/ask/last state for one outcome of a
// binary market. It is mutated in place by the market feed on every
// relevant message and read synchronously by the trigger evaluator.
type OutcomeQuote struct {
	AssetID   string
	Outcome   string // e.g. "Up", "Down"
	Bid       float64
	BidSize   float64
	Ask       float64
	AskSize   float64
	Last      float64
	UpdatedAt time.Time
}

// ApplyBook overwrites the bid/ask side of the quote from a book snapshot.
// Last is left untouched; price_change messages own it.
func (q *OutcomeQuote) ApplyBook(snap BookSnapshot, now time.Time) {
	bid := snap.BestBid()
	ask := snap.BestAsk()
	q.Bid = bid.Price
	q.BidSize = bid.Size
	q.Ask = ask.Price
	q.AskSize = ask.Size
	q.UpdatedAt = now
}

// PricePoint is one entry of the bounded recent-price window kept for the
// status API. It is chart history, not authoritative state.
type PricePoint struct {
	Timestamp time.Time
	Up        float64
	Down      float64
}

// PriceHistory is a fixed-capacity ring of PricePoints (oldest dropped).
type PriceHistory struct {
	points []PricePoint
	max    int
}

// NewPriceHistory creates a history retaining at most max points.
func NewPriceHistory(max int) *PriceHistory {
	if max <= 0 {
		max = 100
	}
	return &PriceHistory{max: max}
}

// Push appends a point, evicting the oldest when the window is full.
func (h *PriceHistory) Push(p PricePoint) {
	h.points = append(h.points, p)
	if len(h.points) > h.max {
		h.points = h.points[len(h.points)-h.max:]
	}
}

// Points returns a copy of the retained window, oldest first.
func (h *PriceHistory) Points() []PricePoint {
	out := make([]PricePoint, len(h.points))
	copy(out, h.points)
	return out
}

// Len returns the number of retained points.
func (h *PriceHistory) Len() int { return len(h.points) }
