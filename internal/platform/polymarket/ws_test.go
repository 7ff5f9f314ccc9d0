package polymarket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

func TestHandleFrameBook(t *testing.T) {
	m := NewMarketStream("ws://unused")

	var got []domain.BookSnapshot
	m.OnBook(func(s domain.BookSnapshot) { got = append(got, s) })

	m.handleFrame([]byte(`{
		"event_type": "book",
		"asset_id": "tok-up",
		"bids": [{"price":"0.40","size":"10"},{"price":"0.42","size":"5"}],
		"asks": [{"price":"0.60","size":"7"},{"price":"0.58","size":"3"}],
		"timestamp": "1700000000000"
	}`))

	require.Len(t, got, 1)
	assert.Equal(t, "tok-up", got[0].AssetID)
	assert.InDelta(t, 0.42, got[0].BestBid().Price, 1e-9)
	assert.InDelta(t, 0.58, got[0].BestAsk().Price, 1e-9)
	assert.Equal(t, int64(1700000000000), got[0].Timestamp.UnixMilli())
}

func TestHandleFramePriceChangeBatch(t *testing.T) {
	m := NewMarketStream("ws://unused")

	type update struct {
		assetID string
		price   float64
	}
	var got []update
	m.OnTradePrice(func(assetID string, price float64, _ time.Time) {
		got = append(got, update{assetID, price})
	})

	// One price_change frame carries an array of per-asset entries.
	m.handleFrame([]byte(`{
		"event_type": "price_change",
		"market": "0xcond",
		"price_changes": [
			{"asset_id":"tok-up","price":"0.55"},
			{"asset_id":"tok-down","price":"0.45"}
		],
		"timestamp": "1700000000000"
	}`))

	require.Len(t, got, 2)
	assert.Equal(t, update{"tok-up", 0.55}, got[0])
	assert.Equal(t, update{"tok-down", 0.45}, got[1])
}

func TestHandleFrameBatchedArray(t *testing.T) {
	m := NewMarketStream("ws://unused")

	var prices []float64
	m.OnTradePrice(func(assetID string, price float64, _ time.Time) {
		prices = append(prices, price)
	})

	m.handleFrame([]byte(`[
		{"event_type":"price_change","price_changes":[{"asset_id":"tok-up","price":"0.51"}],"timestamp":"1700000000000"},
		{"event_type":"last_trade_price","asset_id":"tok-up","price":"0.52","timestamp":"1700000001000"}
	]`))

	assert.Equal(t, []float64{0.51, 0.52}, prices)
}

func TestHandleFrameDropsMalformed(t *testing.T) {
	m := NewMarketStream("ws://unused")

	calls := 0
	m.OnBook(func(domain.BookSnapshot) { calls++ })
	m.OnTradePrice(func(string, float64, time.Time) { calls++ })

	for _, frame := range [][]byte{
		[]byte(``),
		[]byte(`not json`),
		[]byte(`{"event_type":"price_change","price_changes":[{"asset_id":"a","price":"abc"}]}`),
		[]byte(`{"event_type":"last_trade_price","asset_id":"a","price":"abc"}`),
		[]byte(`{"event_type":"unknown_kind"}`),
		[]byte(`[{"event_type":"book","bids":"oops"}]`),
	} {
		m.handleFrame(frame)
	}
	assert.Zero(t, calls, "malformed frames must be dropped silently")
}

func TestBookLevelsSkipUnparseable(t *testing.T) {
	m := NewMarketStream("ws://unused")

	var got []domain.BookSnapshot
	m.OnBook(func(s domain.BookSnapshot) { got = append(got, s) })

	m.handleFrame([]byte(`{
		"event_type":"book",
		"asset_id":"tok-up",
		"bids":[{"price":"bad","size":"10"},{"price":"0.40","size":"10"}],
		"asks":[]
	}`))

	require.Len(t, got, 1)
	require.Len(t, got[0].Bids, 1)
	assert.InDelta(t, 0.40, got[0].Bids[0].Price, 1e-9)
}

func TestMarkDisconnectedFiresOnce(t *testing.T) {
	m := NewMarketStream("ws://unused")

	notified := 0
	m.OnDisconnect(func(err error) {
		notified++
		assert.ErrorIs(t, err, domain.ErrWSDisconnect)
	})

	m.markDisconnected(assert.AnError)
	m.markDisconnected(assert.AnError)

	assert.Equal(t, 1, notified)
	assert.False(t, m.Connected())
}
