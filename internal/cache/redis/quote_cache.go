package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// QuoteCache mirrors the session's live quotes into Redis so dashboards and
// other processes can read them without touching the trading process. Each
// outcome is a hash at "quote:{assetID}"; the underlying asset's reference
// price is a hash at "ref:{symbol}". Entries expire so a dead writer never
// leaves stale prices looking live.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), ttl: 30 * time.Second}
}

func quoteKey(assetID string) string { return "quote:" + assetID }
func refKey(symbol string) string    { return "ref:" + symbol }

func fmtFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// SetQuote stores the latest quote for one outcome token.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.OutcomeQuote) error {
	key := quoteKey(q.AssetID)
	fields := map[string]interface{}{
		"outcome":  q.Outcome,
		"bid":      fmtFloat(q.Bid),
		"bid_size": fmtFloat(q.BidSize),
		"ask":      fmtFloat(q.Ask),
		"ask_size": fmtFloat(q.AskSize),
		"last":     fmtFloat(q.Last),
		"ts":       strconv.FormatInt(q.UpdatedAt.UnixNano(), 10),
	}

	pipe := qc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, qc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.AssetID, err)
	}
	return nil
}

// GetQuotes retrieves cached quotes for multiple tokens using a pipeline.
// Tokens with no cached quote are silently omitted. A cold session (fresh
// restart before the first book arrives) reads the previous run's quotes
// through here.
func (qc *QuoteCache) GetQuotes(ctx context.Context, assetIDs []string) (map[string]domain.OutcomeQuote, error) {
	if len(assetIDs) == 0 {
		return map[string]domain.OutcomeQuote{}, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(assetIDs))
	for _, id := range assetIDs {
		cmds[id] = pipe.HGetAll(ctx, quoteKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	result := make(map[string]domain.OutcomeQuote, len(assetIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		q := domain.OutcomeQuote{
			AssetID: id,
			Outcome: vals["outcome"],
			Bid:     parseField(vals, "bid"),
			BidSize: parseField(vals, "bid_size"),
			Ask:     parseField(vals, "ask"),
			AskSize: parseField(vals, "ask_size"),
			Last:    parseField(vals, "last"),
		}
		if tsNano, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
			q.UpdatedAt = time.Unix(0, tsNano)
		}
		result[id] = q
	}
	return result, nil
}

// SetReferencePrice stores the latest underlying asset price.
func (qc *QuoteCache) SetReferencePrice(ctx context.Context, ref domain.ReferencePrice) error {
	key := refKey(ref.Symbol)
	fields := map[string]interface{}{
		"value":  fmtFloat(ref.Value),
		"source": string(ref.Source),
		"ts":     strconv.FormatInt(ref.Timestamp.UnixNano(), 10),
	}

	pipe := qc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, qc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set reference price %s: %w", ref.Symbol, err)
	}
	return nil
}

func parseField(vals map[string]string, field string) float64 {
	f, _ := strconv.ParseFloat(vals[field], 64)
	return f
}
