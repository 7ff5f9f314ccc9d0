package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// RESTClient polls the reference feed's HTTP API. It backs the one-way
// fallback when the stream dies and pre-seeds candles at startup.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTClient creates a REST client rooted at baseURL.
func NewRESTClient(baseURL string) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetPrice fetches the current ticker price for a symbol.
func (r *RESTClient) GetPrice(ctx context.Context, symbol string) (domain.ReferencePrice, error) {
	endpoint := fmt.Sprintf("%s/ticker/price?symbol=%s", r.baseURL, url.QueryEscape(symbol))

	body, err := r.get(ctx, endpoint)
	if err != nil {
		return domain.ReferencePrice{}, fmt.Errorf("pricefeed/rest: ticker price: %w", err)
	}

	var resp struct {
		Symbol string      `json:"symbol"`
		Price  json.Number `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.ReferencePrice{}, fmt.Errorf("pricefeed/rest: decode ticker: %w", err)
	}

	value, err := strconv.ParseFloat(resp.Price.String(), 64)
	if err != nil {
		return domain.ReferencePrice{}, fmt.Errorf("pricefeed/rest: parse price %q: %w", resp.Price, err)
	}

	return domain.ReferencePrice{
		Symbol:    symbol,
		Value:     value,
		Timestamp: time.Now(),
		Source:    domain.SourcePoll,
	}, nil
}

// GetKlines fetches recent OHLC bars for a symbol. Rows arrive as
// positional arrays: openTime, open, high, low, close, volume, ...
func (r *RESTClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	endpoint := fmt.Sprintf("%s/klines?symbol=%s&interval=%s&limit=%d",
		r.baseURL, url.QueryEscape(symbol), url.QueryEscape(interval), limit)

	body, err := r.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("pricefeed/rest: klines: %w", err)
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("pricefeed/rest: decode klines: %w", err)
	}

	candles := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		vals := make([]float64, 6)
		ok := true
		for i := 0; i < 6; i++ {
			v, err := klineNumber(row[i])
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}
		candles = append(candles, domain.Candle{
			OpenTime: time.UnixMilli(int64(vals[0])),
			Open:     vals[1],
			High:     vals[2],
			Low:      vals[3],
			Close:    vals[4],
			Volume:   vals[5],
		})
	}
	return candles, nil
}

// klineNumber parses a kline cell, which the feed sends either as a raw
// JSON number (timestamps) or a quoted decimal string (prices).
func klineNumber(raw json.RawMessage) (float64, error) {
	s := string(raw)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return strconv.ParseFloat(s, 64)
}

func (r *RESTClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
