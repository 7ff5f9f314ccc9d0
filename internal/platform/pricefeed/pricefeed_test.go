package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

func TestStreamHandleFrame(t *testing.T) {
	s := NewStreamClient("ws://unused", "BTC")

	var got []domain.ReferencePrice
	s.OnPrice(func(p domain.ReferencePrice) { got = append(got, p) })

	s.handleFrame([]byte(`{"topic":"crypto_prices","payload":{"value":64250.5,"timestamp":1700000000000}}`))

	require.Len(t, got, 1)
	assert.Equal(t, "BTC", got[0].Symbol)
	assert.InDelta(t, 64250.5, got[0].Value, 1e-9)
	assert.Equal(t, domain.SourceStream, got[0].Source)
	assert.Equal(t, int64(1700000000000), got[0].Timestamp.UnixMilli())
}

func TestStreamHandleFrameStringValue(t *testing.T) {
	s := NewStreamClient("ws://unused", "ETH")

	var got []domain.ReferencePrice
	s.OnPrice(func(p domain.ReferencePrice) { got = append(got, p) })

	s.handleFrame([]byte(`{"topic":"crypto_prices","payload":{"value":"3120.25","timestamp":0}}`))

	require.Len(t, got, 1)
	assert.InDelta(t, 3120.25, got[0].Value, 1e-9)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestStreamDropsIrrelevantFrames(t *testing.T) {
	s := NewStreamClient("ws://unused", "BTC")

	calls := 0
	s.OnPrice(func(domain.ReferencePrice) { calls++ })

	for _, frame := range [][]byte{
		[]byte(`PONG`),
		[]byte(`{"topic":"other_topic","payload":{"value":1}}`),
		[]byte(`{"topic":"crypto_prices","payload":{"value":"nope"}}`),
		[]byte(`{"topic":"crypto_prices","payload":{"value":-5}}`),
	} {
		s.handleFrame(frame)
	}
	assert.Zero(t, calls)
}

func TestStreamDisconnectFiresOnce(t *testing.T) {
	s := NewStreamClient("ws://unused", "BTC")

	notified := 0
	s.OnDisconnect(func(err error) {
		notified++
		assert.ErrorIs(t, err, domain.ErrWSDisconnect)
	})

	s.markDisconnected(assert.AnError)
	s.markDisconnected(assert.AnError)
	assert.Equal(t, 1, notified)
	assert.False(t, s.Connected())
}

func TestGetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ticker/price", r.URL.Path)
		assert.Equal(t, "SOL", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"symbol":"SOLUSDT","price":"142.37"}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL)
	price, err := c.GetPrice(context.Background(), "SOL")
	require.NoError(t, err)

	assert.Equal(t, "SOL", price.Symbol)
	assert.InDelta(t, 142.37, price.Value, 1e-9)
	assert.Equal(t, domain.SourcePoll, price.Source)
}

func TestGetPriceHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL)
	_, err := c.GetPrice(context.Background(), "BTC")
	assert.Error(t, err)
}

func TestGetKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/klines", r.URL.Path)
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		w.Write([]byte(`[
			[1700000000000, "64000.0", "64100.5", "63950.2", "64050.1", "12.5", 1700000059999],
			[1700000060000, "64050.1", "bad", "63990.0", "64010.0", "8.1"],
			[1700000120000, "64010.0", "64080.0", "64000.0", "64075.5", "9.9"]
		]`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL)
	candles, err := c.GetKlines(context.Background(), "BTC", "1m", 2)
	require.NoError(t, err)

	// The malformed middle row is skipped.
	require.Len(t, candles, 2)
	assert.Equal(t, int64(1700000000000), candles[0].OpenTime.UnixMilli())
	assert.InDelta(t, 64050.1, candles[0].Close, 1e-9)
	assert.InDelta(t, 64075.5, candles[1].Close, 1e-9)
}
