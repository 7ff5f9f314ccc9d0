// Package polymarket contains the venue-facing clients: the CLOB REST
// client used for trading, the market data WebSocket stream, and the data
// API client for portfolio reads.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/crypto"
	"github.com/alanyoungcy/tradepilot/internal/domain"
)

const (
	// usdcDecimals scales human prices and sizes into 6-decimal token units.
	usdcDecimals = 1e6

	// defaultFeeRateBps is the taker fee the venue currently charges.
	defaultFeeRateBps = "1000"
)

// OrderArgs describes one limit order to build, sign, and post.
type OrderArgs struct {
	TokenID    string
	Price      float64
	Size       float64
	Side       domain.OrderSide
	OrderType  string // "GTC" or "FOK"
	Expiration int64  // unix seconds, 0 for none
}

// ClobClient is the REST client for the CLOB trading API. It owns the
// EIP-712 signer, the derived HMAC credentials, and the server clock
// offset used to salt orders.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer

	mu            sync.RWMutex
	creds         crypto.APICredentials
	hasCreds      bool
	serverOffset  int64 // serverMs - localMs, sampled once at startup
	offsetSampled bool
}

// NewClobClient creates a CLOB client rooted at baseURL
// (e.g. "https://clob.polymarket.com").
func NewClobClient(baseURL string, signer *crypto.Signer) *ClobClient {
	return &ClobClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		signer:     signer,
	}
}

// Address returns the trading wallet address.
func (c *ClobClient) Address() string { return c.signer.Address().Hex() }

// HasCredentials reports whether the L1 auth flow has completed and HMAC
// credentials are available for authenticated requests.
func (c *ClobClient) HasCredentials() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasCreds
}

// DeriveAPIKey runs the L1 auth flow and stores the resulting HMAC
// credentials for subsequent authenticated requests.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	nonce := int64(0)

	sig, err := c.signer.SignAuthMessage(address, timestamp, nonce)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("POLY_NONCE", strconv.FormatInt(nonce, 10))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polymarket/clob: auth failed (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	var creds crypto.APICredentials
	if err := json.Unmarshal(respBody, &creds); err != nil {
		return fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}

	c.mu.Lock()
	c.creds = creds
	c.hasCreds = true
	c.mu.Unlock()

	return nil
}

// SyncServerTime samples the venue clock once and records the offset used
// to salt orders. Safe to call again; the latest sample wins.
func (c *ClobClient) SyncServerTime(ctx context.Context) error {
	localBefore := time.Now().UnixMilli()

	body, err := c.doRequest(ctx, http.MethodGet, "/time", nil, false)
	if err != nil {
		return fmt.Errorf("polymarket/clob: server time: %w", err)
	}

	serverSec, err := strconv.ParseInt(string(bytes.TrimSpace(body)), 10, 64)
	if err != nil {
		return fmt.Errorf("polymarket/clob: parse server time %q: %w", string(body), err)
	}

	c.mu.Lock()
	c.serverOffset = serverSec*1000 - localBefore
	c.offsetSampled = true
	c.mu.Unlock()

	return nil
}

// nextSalt produces an order salt from the offset-corrected clock plus a
// sub-second jitter, so two orders in the same millisecond stay distinct.
func (c *ClobClient) nextSalt() int64 {
	c.mu.RLock()
	offset := c.serverOffset
	c.mu.RUnlock()
	return time.Now().UnixMilli() + offset + rand.Int63n(1000)
}

// GetOrderBook fetches the current book for a token. A resolved or delisted
// token surfaces as domain.ErrNotFound.
func (c *ClobClient) GetOrderBook(ctx context.Context, tokenID string) (domain.BookSnapshot, error) {
	path := "/book?token_id=" + url.QueryEscape(tokenID)

	body, err := c.doRequest(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("polymarket/clob: get book: %w", err)
	}

	var book apiBook
	if err := json.Unmarshal(body, &book); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}

	return domain.BookSnapshot{
		AssetID:   book.AssetID,
		Bids:      parseLevels(book.Bids),
		Asks:      parseLevels(book.Asks),
		Timestamp: parseMillis(book.Timestamp),
	}, nil
}

// GetPrice fetches the venue's quoted price for one side of a token.
// side is "buy" or "sell".
func (c *ClobClient) GetPrice(ctx context.Context, tokenID, side string) (float64, error) {
	path := fmt.Sprintf("/price?token_id=%s&side=%s", url.QueryEscape(tokenID), url.QueryEscape(side))

	body, err := c.doRequest(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: get price: %w", err)
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode price: %w", err)
	}

	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: parse price %q: %w", resp.Price, err)
	}
	return price, nil
}

// CreateAndPostOrder builds the EIP-712 order, signs it, and posts it.
// Amounts are scaled to 6-decimal USDC units.
func (c *ClobClient) CreateAndPostOrder(ctx context.Context, args OrderArgs) (domain.OrderResult, error) {
	c.mu.RLock()
	hasCreds := c.hasCreds
	c.mu.RUnlock()
	if !hasCreds {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", domain.ErrUnauthorized)
	}

	makerAmount, takerAmount := orderAmounts(args.Side, args.Price, args.Size)
	address := c.signer.Address().Hex()

	sideNum := 0
	if args.Side == domain.OrderSideSell {
		sideNum = 1
	}

	payload := crypto.OrderPayload{
		Salt:        strconv.FormatInt(c.nextSalt(), 10),
		Maker:       address,
		Signer:      address,
		Taker:       "0x0000000000000000000000000000000000000000",
		TokenID:     args.TokenID,
		MakerAmount: makerAmount,
		TakerAmount: takerAmount,
		Expiration:  strconv.FormatInt(args.Expiration, 10),
		Nonce:       "0",
		FeeRateBps:  defaultFeeRateBps,
		Side:        sideNum,
	}

	sig, err := c.signer.SignOrder(payload)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: %w: %v", domain.ErrSigningFailed, err)
	}

	orderType := args.OrderType
	if orderType == "" {
		orderType = "GTC"
	}

	reqBody := map[string]any{
		"order": map[string]any{
			"salt":          payload.Salt,
			"maker":         payload.Maker,
			"signer":        payload.Signer,
			"taker":         payload.Taker,
			"tokenID":       payload.TokenID,
			"makerAmount":   payload.MakerAmount,
			"takerAmount":   payload.TakerAmount,
			"expiration":    payload.Expiration,
			"nonce":         payload.Nonce,
			"feeRateBps":    payload.FeeRateBps,
			"side":          string(args.Side),
			"signatureType": payload.SignatureType,
			"signature":     sig,
		},
		"owner":     c.apiKey(),
		"orderType": orderType,
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/order", reqBody, true)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var apiResult APIOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}

	result := domain.OrderResult{
		Success:   apiResult.Success,
		OrderID:   apiResult.OrderID,
		Price:     args.Price,
		Shares:    args.Size,
		Side:      args.Side,
		Message:   apiResult.ErrorMsg,
		Timestamp: time.Now(),
	}
	if len(apiResult.TransactIDs) > 0 {
		result.TxHash = apiResult.TransactIDs[0]
	}
	if !result.Success {
		return result, fmt.Errorf("polymarket/clob: order rejected: %s", apiResult.ErrorMsg)
	}
	return result, nil
}

// CancelOrder cancels one open order by ID.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	respBody, err := c.doRequest(ctx, http.MethodDelete, "/order", map[string]any{"orderID": orderID}, true)
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel order %s: %w", orderID, err)
	}

	var result struct {
		Success  bool   `json:"success"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("polymarket/clob: decode cancel response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("polymarket/clob: cancel failed: %s", result.ErrorMsg)
	}
	return nil
}

// GetOrder retrieves one order, typically to learn whether it filled.
func (c *ClobClient) GetOrder(ctx context.Context, orderID string) (APIOrder, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/data/order/"+url.PathEscape(orderID), nil, true)
	if err != nil {
		return APIOrder{}, fmt.Errorf("polymarket/clob: get order %s: %w", orderID, err)
	}

	var order APIOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return APIOrder{}, fmt.Errorf("polymarket/clob: decode order: %w", err)
	}
	return order, nil
}

// GetBalanceAllowance returns the collateral balance and exchange allowance
// of the trading wallet in whole USDC.
func (c *ClobClient) GetBalanceAllowance(ctx context.Context) (BalanceAllowance, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/balance-allowance?asset_type=COLLATERAL", nil, true)
	if err != nil {
		return BalanceAllowance{}, fmt.Errorf("polymarket/clob: balance allowance: %w", err)
	}

	var raw apiBalanceAllowance
	if err := json.Unmarshal(body, &raw); err != nil {
		return BalanceAllowance{}, fmt.Errorf("polymarket/clob: decode balance allowance: %w", err)
	}

	balance, _ := strconv.ParseFloat(raw.Balance, 64)
	allowance, _ := strconv.ParseFloat(raw.Allowance, 64)
	return BalanceAllowance{
		Balance:   balance / usdcDecimals,
		Allowance: allowance / usdcDecimals,
	}, nil
}

// orderAmounts converts a human price and share size into the 6-decimal
// maker/taker amounts the exchange contract expects.
func orderAmounts(side domain.OrderSide, price, size float64) (maker, taker string) {
	shares := strconv.FormatInt(int64(math.Round(size*usdcDecimals)), 10)
	dollars := strconv.FormatInt(int64(math.Round(price*size*usdcDecimals)), 10)

	if side == domain.OrderSideBuy {
		return dollars, shares // pay dollars, receive shares
	}
	return shares, dollars
}

func (c *ClobClient) apiKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds.APIKey
}

// doRequest builds, optionally HMAC-signs, sends, and reads one request.
func (c *ClobClient) doRequest(ctx context.Context, method, path string, body any, authed bool) ([]byte, error) {
	var bodyBytes []byte
	var bodyReader io.Reader
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if authed {
		c.mu.RLock()
		creds := c.creds
		hasCreds := c.hasCreds
		c.mu.RUnlock()
		if !hasCreds {
			return nil, domain.ErrUnauthorized
		}

		// The signed path excludes the query string.
		sigPath := path
		if i := strings.IndexByte(path, '?'); i >= 0 {
			sigPath = path[:i]
		}
		headers, err := crypto.L2Headers(creds, c.signer.Address().Hex(), method, sigPath, bodyBytes)
		if err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to sentinel errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
