package polymarket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradepilot/internal/crypto"
	"github.com/alanyoungcy/tradepilot/internal/domain"
)

const testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newTestClob(t *testing.T, srv *httptest.Server) *ClobClient {
	t.Helper()
	signer, err := crypto.NewSigner(testPrivateKey, 137)
	require.NoError(t, err)

	c := NewClobClient(srv.URL, signer)
	c.creds = crypto.APICredentials{
		APIKey:     "test-key",
		Secret:     "c2VjcmV0LXNlY3JldC1zZWNyZXQ=",
		Passphrase: "test-pass",
	}
	c.hasCreds = true
	return c
}

func TestGetOrderBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		assert.Equal(t, "tok-1", r.URL.Query().Get("token_id"))
		json.NewEncoder(w).Encode(apiBook{
			AssetID: "tok-1",
			Bids:    []wsLevel{{Price: "0.40", Size: "100"}, {Price: "0.45", Size: "50"}},
			Asks:    []wsLevel{{Price: "0.55", Size: "30"}, {Price: "0.50", Size: "20"}},
		})
	}))
	defer srv.Close()

	c := newTestClob(t, srv)
	book, err := c.GetOrderBook(context.Background(), "tok-1")
	require.NoError(t, err)

	// Books arrive unsorted; best prices come from a scan.
	assert.InDelta(t, 0.45, book.BestBid().Price, 1e-9)
	assert.InDelta(t, 0.50, book.BestAsk().Price, 1e-9)
}

func TestGetOrderBookResolvedMarket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no orderbook exists"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClob(t, srv)
	_, err := c.GetOrderBook(context.Background(), "tok-resolved")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateAndPostOrderSendsSignedPayload(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		assert.Equal(t, "test-key", r.Header.Get("POLY_API_KEY"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(APIOrderResult{Success: true, OrderID: "ord-1", Status: "live"})
	}))
	defer srv.Close()

	c := newTestClob(t, srv)
	result, err := c.CreateAndPostOrder(context.Background(), OrderArgs{
		TokenID:   "123456",
		Price:     0.50,
		Size:      10,
		Side:      domain.OrderSideBuy,
		OrderType: "FOK",
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "ord-1", result.OrderID)

	order := captured["order"].(map[string]any)
	assert.Equal(t, "5000000", order["makerAmount"]) // $5 in 6-decimal units
	assert.Equal(t, "10000000", order["takerAmount"])
	assert.Equal(t, "BUY", order["side"])
	assert.Equal(t, "1000", order["feeRateBps"])
	assert.NotEmpty(t, order["signature"])
	assert.Equal(t, "test-key", captured["owner"])
	assert.Equal(t, "FOK", captured["orderType"])
}

func TestCreateAndPostOrderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(APIOrderResult{Success: false, ErrorMsg: "not enough balance"})
	}))
	defer srv.Close()

	c := newTestClob(t, srv)
	result, err := c.CreateAndPostOrder(context.Background(), OrderArgs{
		TokenID: "123456", Price: 0.50, Size: 10, Side: domain.OrderSideBuy,
	})
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "not enough balance")
}

func TestCreateAndPostOrderRequiresCredentials(t *testing.T) {
	signer, err := crypto.NewSigner(testPrivateKey, 137)
	require.NoError(t, err)
	c := NewClobClient("http://unused", signer)

	_, err = c.CreateAndPostOrder(context.Background(), OrderArgs{TokenID: "1", Price: 0.5, Size: 10, Side: domain.OrderSideBuy})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCancelOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ord-9", body["orderID"])
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	c := newTestClob(t, srv)
	assert.NoError(t, c.CancelOrder(context.Background(), "ord-9"))
}

func TestSyncServerTimeOffset(t *testing.T) {
	serverNow := time.Now().Add(90 * time.Second).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/time", r.URL.Path)
		w.Write([]byte(`  ` + jsonInt(serverNow) + "\n"))
	}))
	defer srv.Close()

	c := newTestClob(t, srv)
	require.NoError(t, c.SyncServerTime(context.Background()))

	c.mu.RLock()
	offset := c.serverOffset
	c.mu.RUnlock()
	// Roughly 90s ahead, within scheduling slack.
	assert.InDelta(t, 90_000, offset, 2_000)

	salt := c.nextSalt()
	assert.Greater(t, salt, time.Now().UnixMilli())
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestGetBalanceAllowance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "COLLATERAL", r.URL.Query().Get("asset_type"))
		json.NewEncoder(w).Encode(apiBalanceAllowance{Balance: "12500000", Allowance: "99000000"})
	}))
	defer srv.Close()

	c := newTestClob(t, srv)
	ba, err := c.GetBalanceAllowance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 12.5, ba.Balance, 1e-9)
	assert.InDelta(t, 99.0, ba.Allowance, 1e-9)
}

func TestOrderAmounts(t *testing.T) {
	maker, taker := orderAmounts(domain.OrderSideBuy, 0.37, 27.5)
	assert.Equal(t, "10175000", maker)
	assert.Equal(t, "27500000", taker)

	maker, taker = orderAmounts(domain.OrderSideSell, 0.37, 27.5)
	assert.Equal(t, "27500000", maker)
	assert.Equal(t, "10175000", taker)
}

func TestGetPositionsFiltersDust(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions", r.URL.Path)
		assert.Equal(t, "0xabc", r.URL.Query().Get("user"))
		json.NewEncoder(w).Encode([]APIPosition{
			{ConditionID: "c1", Asset: "tok-1", Title: "BTC up", Outcome: "Up", Size: 25, AvgPrice: 0.4, CurPrice: 0.5},
			{ConditionID: "c2", Asset: "tok-2", Title: "empty", Size: 0},
		})
	}))
	defer srv.Close()

	d := NewDataClient(srv.URL)
	positions, err := d.GetPositions(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "tok-1", positions[0].AssetID)
	assert.InDelta(t, 0.25, positions[0].PercentPnL(), 1e-9)
}
