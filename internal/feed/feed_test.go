package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/alanyoungcy/tradepilot/internal/platform/polymarket"
	"github.com/alanyoungcy/tradepilot/internal/platform/pricefeed"
	"github.com/alanyoungcy/tradepilot/internal/session"
	"github.com/alanyoungcy/tradepilot/internal/trigger"
)

func newTestSession() *session.Session {
	return session.New(session.MarketInfo{
		ConditionID: "cond-1",
		Title:       "Bitcoin Up or Down",
		TokenIDs:    []string{"tok-up", "tok-down"},
		Outcomes:    []string{"Up", "Down"},
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeConfirmer struct {
	intents chan domain.TradeIntent
}

func (f *fakeConfirmer) ConfirmIntent(_ context.Context, intent domain.TradeIntent) (domain.OrderResult, error) {
	f.intents <- intent
	return domain.OrderResult{Success: true}, nil
}

// wsServer upgrades one connection and plays the given frames.
func wsServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Consume the subscribe frame first.
		_, _, err = conn.ReadMessage()
		require.NoError(t, err)

		for _, frame := range frames {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
		}
		time.Sleep(100 * time.Millisecond)
	}))
}

func TestMarketFeedUpdatesSessionAndFiresTrigger(t *testing.T) {
	sess := newTestSession()
	sess.WithRule(0, func(r *domain.TriggerRule) {
		r.TargetReturn = 2.0
		r.AmountUSD = 10
		r.Arm()
	})

	confirmer := &fakeConfirmer{intents: make(chan domain.TradeIntent, 1)}
	eval := trigger.New(discardLogger(), sess, confirmer, func() bool { return true })

	srv := wsServer(t, []string{
		`{"event_type":"book","asset_id":"tok-up","bids":[{"price":"0.38","size":"50"}],"asks":[{"price":"0.40","size":"80"}],"timestamp":"1700000000000"}`,
		`{"event_type":"last_trade_price","asset_id":"tok-up","price":"0.41","timestamp":"1700000001000"}`,
	})
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	stream := polymarket.NewMarketStream(wsURL)
	f := NewMarketFeed(discardLogger(), sess, stream, eval)

	require.NoError(t, f.Start(context.Background()))
	defer f.Close()

	select {
	case intent := <-confirmer.intents:
		assert.Equal(t, "tok-up", intent.TokenID)
		assert.InDelta(t, 0.40, intent.Price, 1e-9)
		assert.Equal(t, "trigger", intent.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not fire from a streamed book update")
	}

	require.Eventually(t, func() bool {
		q, ok := sess.Quote("tok-up")
		return ok && q.Last == 0.41
	}, 2*time.Second, 10*time.Millisecond, "last trade price not applied")

	q, _ := sess.Quote("tok-up")
	assert.InDelta(t, 0.38, q.Bid, 1e-9)
	assert.InDelta(t, 0.40, q.Ask, 1e-9)
	assert.True(t, sess.Connected())
}

func TestMarketFeedDisconnectFlipsFlag(t *testing.T) {
	sess := newTestSession()
	srv := wsServer(t, nil) // server hangs up after the subscribe
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	stream := polymarket.NewMarketStream(wsURL)
	f := NewMarketFeed(discardLogger(), sess, stream, nil)

	require.NoError(t, f.Start(context.Background()))
	require.Eventually(t, func() bool { return !sess.Connected() }, 2*time.Second, 10*time.Millisecond)
}

func TestReferenceFeedSeedsAndPolls(t *testing.T) {
	var calls int
	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/klines":
			w.Write([]byte(`[[1700000000000,"64000","64100","63900","64050","10"]]`))
		case "/ticker/price":
			calls++
			w.Write([]byte(`{"symbol":"BTCUSDT","price":"64200.5"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer rest.Close()

	sess := newTestSession()
	stream := pricefeed.NewStreamClient("ws://127.0.0.1:1", "BTC") // unreachable, forces polling
	f := NewReferenceFeed(discardLogger(), sess, stream, pricefeed.NewRESTClient(rest.URL))
	f.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)

	// Seeded value is visible immediately.
	seeded := sess.ReferencePrice()
	assert.Equal(t, domain.SourceSeed, seeded.Source)
	assert.InDelta(t, 64050, seeded.Value, 1e-9)
	require.Len(t, sess.Candles(), 1)

	// Poll fallback takes over after the failed connect.
	require.Eventually(t, func() bool {
		return sess.ReferencePrice().Source == domain.SourcePoll
	}, 2*time.Second, 10*time.Millisecond)
	assert.InDelta(t, 64200.5, sess.ReferencePrice().Value, 1e-9)
	assert.Greater(t, calls, 0)
}
