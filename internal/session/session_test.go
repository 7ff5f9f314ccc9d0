package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

func testMarket() MarketInfo {
	return MarketInfo{
		ConditionID: "cond-1",
		Title:       "Bitcoin Up or Down - August 28, 3PM ET",
		TokenIDs:    []string{"tok-up", "tok-down"},
		Outcomes:    []string{"Up", "Down"},
	}
}

func TestReferenceSymbol(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Bitcoin Up or Down", "BTC"},
		{"BTC above 100k?", "BTC"},
		{"Ethereum Up or Down", "ETH"},
		{"Solana price today", "SOL"},
		{"XRP Up or Down", "XRP"},
		{"Some unrelated market", "BTC"},
	}
	for _, tt := range tests {
		m := MarketInfo{Title: tt.title}
		assert.Equal(t, tt.want, m.ReferenceSymbol(), tt.title)
	}
}

func TestApplyBookUpdatesOnlyMatchingOutcome(t *testing.T) {
	s := New(testMarket())
	now := time.Now()

	q, ok := s.ApplyBook(domain.BookSnapshot{
		AssetID: "tok-up",
		Bids:    []domain.PriceLevel{{Price: 0.48, Size: 100}},
		Asks:    []domain.PriceLevel{{Price: 0.52, Size: 60}},
	}, now)
	require.True(t, ok)
	assert.InDelta(t, 0.48, q.Bid, 1e-9)
	assert.InDelta(t, 0.52, q.Ask, 1e-9)

	down, ok := s.Quote("tok-down")
	require.True(t, ok)
	assert.Zero(t, down.Bid)
	assert.Zero(t, down.Ask)

	_, ok = s.ApplyBook(domain.BookSnapshot{AssetID: "tok-unknown"}, now)
	assert.False(t, ok)
}

func TestSetLastAndHistory(t *testing.T) {
	s := New(testMarket())
	now := time.Now()

	s.SetLast("tok-up", 0.55, now)
	s.SetLast("tok-down", 0.45, now)
	s.RecordHistoryPoint(now)

	points := s.History()
	require.Len(t, points, 1)
	assert.InDelta(t, 0.55, points[0].Up, 1e-9)
	assert.InDelta(t, 0.45, points[0].Down, 1e-9)
}

func TestHistoryBounded(t *testing.T) {
	s := New(testMarket())
	for i := 0; i < historyCapacity+20; i++ {
		s.RecordHistoryPoint(time.Now())
	}
	assert.Len(t, s.History(), historyCapacity)
}

func TestRuleLatchUnderSessionLock(t *testing.T) {
	s := New(testMarket())

	fired := 0
	arm := func() {
		s.WithRule(0, func(r *domain.TriggerRule) {
			r.TargetReturn = 2.0
			r.AmountUSD = 10
			r.Arm()
		})
	}

	arm()
	for i := 0; i < 3; i++ {
		s.WithRule(0, func(r *domain.TriggerRule) {
			if r.TryFire() {
				fired++
			}
		})
	}
	assert.Equal(t, 1, fired, "armed rule fires exactly once")

	// Re-enable resets the latch.
	arm()
	s.WithRule(0, func(r *domain.TriggerRule) {
		assert.True(t, r.TryFire())
	})

	assert.False(t, s.WithRule(5, func(*domain.TriggerRule) {}), "out of range index")
}

func TestOrderGateSingleInFlight(t *testing.T) {
	s := New(testMarket())

	require.True(t, s.TryAcquireOrder())
	assert.False(t, s.TryAcquireOrder(), "second acquire while busy must fail")

	state, _ := s.OrderStatus()
	assert.Equal(t, domain.OrderStateSubmitting, state)

	s.SetOrderOpen("ord-1")
	state, orderID := s.OrderStatus()
	assert.Equal(t, domain.OrderStateOpen, state)
	assert.Equal(t, "ord-1", orderID)

	s.SetOrderTerminal(domain.OrderStateFilled)
	s.ReleaseOrder()

	state, _ = s.OrderStatus()
	assert.Equal(t, domain.OrderStateIdle, state)
	assert.True(t, s.TryAcquireOrder())
	s.ReleaseOrder()
}

func TestResolvedSet(t *testing.T) {
	s := New(testMarket())
	assert.False(t, s.IsResolved("tok-up"))
	s.MarkResolved("tok-up")
	assert.True(t, s.IsResolved("tok-up"))
}
