package polymarket

import (
	"strconv"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// --------------------------------------------------------------------------
// Market WebSocket frames
// --------------------------------------------------------------------------

// wsSubscribe is the market-channel subscription frame.
type wsSubscribe struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"`
}

type wsLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookMessage is a full orderbook snapshot frame on the market channel.
type BookMessage struct {
	EventType string    `json:"event_type"`
	AssetID   string    `json:"asset_id"`
	Market    string    `json:"market"`
	Bids      []wsLevel `json:"bids"`
	Asks      []wsLevel `json:"asks"`
	Timestamp string    `json:"timestamp"`
}

// PriceChangeMessage carries a batch of incremental price updates, one
// entry per asset.
type PriceChangeMessage struct {
	EventType    string          `json:"event_type"`
	Market       string          `json:"market"`
	PriceChanges []wsPriceChange `json:"price_changes"`
	Timestamp    string          `json:"timestamp"`
}

type wsPriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
}

// LastTradePriceMessage reports the most recent trade print for an asset.
type LastTradePriceMessage struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Timestamp string `json:"timestamp"`
}

// ToDomainSnapshot converts a book frame into a domain snapshot. Levels that
// fail to parse are skipped rather than failing the whole frame.
func (b *BookMessage) ToDomainSnapshot() domain.BookSnapshot {
	snap := domain.BookSnapshot{
		AssetID:   b.AssetID,
		Bids:      parseLevels(b.Bids),
		Asks:      parseLevels(b.Asks),
		Timestamp: parseMillis(b.Timestamp),
	}
	return snap
}

func parseLevels(levels []wsLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, l := range levels {
		price, err := strconv.ParseFloat(l.Price, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(l.Size, 64)
		if err != nil {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out
}

func parsePrice(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success     bool     `json:"success"`
	ErrorMsg    string   `json:"errorMsg,omitempty"`
	OrderID     string   `json:"orderID,omitempty"`
	Status      string   `json:"status,omitempty"`
	TransactIDs []string `json:"transactionsHashes,omitempty"`
}

// APIOrder is an order as returned by the CLOB order query endpoints.
type APIOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Market       string `json:"market"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
	CreatedAt    string `json:"created_at"`
}

// Filled reports whether the order has any matched size.
func (o *APIOrder) Filled() bool {
	matched, err := strconv.ParseFloat(o.SizeMatched, 64)
	return err == nil && matched > 0
}

type apiBook struct {
	AssetID   string    `json:"asset_id"`
	Market    string    `json:"market"`
	Bids      []wsLevel `json:"bids"`
	Asks      []wsLevel `json:"asks"`
	Timestamp string    `json:"timestamp"`
}

type apiBalanceAllowance struct {
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}

// BalanceAllowance is the wallet's collateral balance and exchange allowance
// in whole USDC.
type BalanceAllowance struct {
	Balance   float64
	Allowance float64
}

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// APIPosition is a position row from the data API.
type APIPosition struct {
	ConditionID  string  `json:"conditionId"`
	Asset        string  `json:"asset"`
	Title        string  `json:"title"`
	Outcome      string  `json:"outcome"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	CurPrice     float64 `json:"curPrice"`
	EndDate      string  `json:"endDate"`
	Redeemable   bool    `json:"redeemable"`
	CurrentValue float64 `json:"currentValue"`
}

// ToDomainPosition converts a data API row to a domain position.
func (p *APIPosition) ToDomainPosition() domain.Position {
	pos := domain.Position{
		ConditionID: p.ConditionID,
		AssetID:     p.Asset,
		Title:       p.Title,
		Outcome:     p.Outcome,
		Size:        p.Size,
		AvgPrice:    p.AvgPrice,
		CurPrice:    p.CurPrice,
		Redeemable:  p.Redeemable,
	}
	if t, err := time.Parse(time.RFC3339, p.EndDate); err == nil {
		pos.EndDate = t
	}
	return pos
}
