package domain

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookSnapshot_BestBidAsk(t *testing.T) {
	snap := BookSnapshot{
		Bids: []PriceLevel{
			{Price: 0.41, Size: 100},
			{Price: 0.44, Size: 25},
			{Price: 0.43, Size: 50},
		},
		Asks: []PriceLevel{
			{Price: 0.49, Size: 10},
			{Price: 0.46, Size: 80},
			{Price: 0.47, Size: 5},
		},
	}

	assert.Equal(t, 0.44, snap.BestBid().Price)
	assert.Equal(t, 25.0, snap.BestBid().Size)
	assert.Equal(t, 0.46, snap.BestAsk().Price)
	assert.Equal(t, 80.0, snap.BestAsk().Size)
}

func TestBookSnapshot_BestScanOrderIndependent(t *testing.T) {
	levels := []PriceLevel{
		{Price: 0.31, Size: 1}, {Price: 0.35, Size: 2}, {Price: 0.29, Size: 3},
		{Price: 0.33, Size: 4}, {Price: 0.30, Size: 5},
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := make([]PriceLevel, len(levels))
		copy(shuffled, levels)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		snap := BookSnapshot{Bids: shuffled, Asks: shuffled}
		assert.Equal(t, 0.35, snap.BestBid().Price)
		assert.Equal(t, 0.29, snap.BestAsk().Price)
	}
}

func TestBookSnapshot_Empty(t *testing.T) {
	var snap BookSnapshot
	assert.Zero(t, snap.BestBid().Price)
	assert.Zero(t, snap.BestAsk().Price)
}

func TestOutcomeQuote_ApplyBookKeepsLast(t *testing.T) {
	q := OutcomeQuote{AssetID: "tok-up", Last: 0.52}
	now := time.Now()

	q.ApplyBook(BookSnapshot{
		Bids: []PriceLevel{{Price: 0.50, Size: 40}},
		Asks: []PriceLevel{{Price: 0.53, Size: 15}},
	}, now)

	assert.Equal(t, 0.50, q.Bid)
	assert.Equal(t, 40.0, q.BidSize)
	assert.Equal(t, 0.53, q.Ask)
	assert.Equal(t, 15.0, q.AskSize)
	assert.Equal(t, 0.52, q.Last, "book updates must not touch last trade price")
	assert.Equal(t, now, q.UpdatedAt)
}

func TestPriceHistory_BoundedWindow(t *testing.T) {
	h := NewPriceHistory(3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		h.Push(PricePoint{Timestamp: base.Add(time.Duration(i) * time.Second), Up: float64(i)})
	}

	require.Equal(t, 3, h.Len())
	pts := h.Points()
	assert.Equal(t, 2.0, pts[0].Up)
	assert.Equal(t, 4.0, pts[2].Up)
}

func TestClampPrice(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.50, 0.50},
		{1.00, 0.99},
		{0.995, 0.99},
		{0.001, 0.01},
		{-0.2, 0.01},
		{0.99, 0.99},
		{0.01, 0.01},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampPrice(tt.in))
	}
}
