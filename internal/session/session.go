// Package session holds the mutable per-market trading state: live quotes,
// the reference price, trigger rules, auto-sell config, and the single
// in-flight order lock. One session exists per viewed market; everything
// that reacts to feed events reads through it synchronously.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// historyCapacity bounds the recent-price window kept for the status API.
const historyCapacity = 100

// MarketInfo identifies the market a session trades.
type MarketInfo struct {
	ConditionID string
	Title       string
	Slug        string
	// Outcome token ids in outcome order; binary markets carry two.
	TokenIDs []string
	Outcomes []string
	EndDate  time.Time
}

// ReferenceSymbol derives the underlying asset symbol from the market
// title. Unrecognized titles default to BTC.
func (m MarketInfo) ReferenceSymbol() string {
	title := strings.ToLower(m.Title)
	switch {
	case strings.Contains(title, "bitcoin"), strings.Contains(title, "btc"):
		return "BTC"
	case strings.Contains(title, "ethereum"), strings.Contains(title, "eth"):
		return "ETH"
	case strings.Contains(title, "solana"), strings.Contains(title, "sol"):
		return "SOL"
	case strings.Contains(title, "xrp"):
		return "XRP"
	default:
		return "BTC"
	}
}

// Session is the state holder for one market. A single mutex guards all
// state; the order gate is separate so a long-running submit does not
// block quote updates.
type Session struct {
	Market MarketInfo

	mu        sync.RWMutex
	quotes    map[string]*domain.OutcomeQuote // by token id
	refPrice  domain.ReferencePrice
	history   *domain.PriceHistory
	candles   []domain.Candle
	rules     []*domain.TriggerRule // by outcome index
	autoSell  *domain.AutoSellConfig
	connected bool
	resolved  map[string]struct{} // token ids whose book 404s

	orderState domain.OrderState
	openOrder  string // venue order id while state is OPEN

	// orderGate serializes order submission; TryLock gives callers the
	// busy signal without blocking.
	orderGate sync.Mutex
}

// New creates a session for the given market with one armed-capable rule
// per outcome, all starting disabled.
func New(market MarketInfo) *Session {
	s := &Session{
		Market:     market,
		quotes:     make(map[string]*domain.OutcomeQuote, len(market.TokenIDs)),
		history:    domain.NewPriceHistory(historyCapacity),
		rules:      make([]*domain.TriggerRule, len(market.Outcomes)),
		autoSell:   domain.NewAutoSellConfig(),
		resolved:   make(map[string]struct{}),
		orderState: domain.OrderStateIdle,
	}
	for i, tokenID := range market.TokenIDs {
		outcome := ""
		if i < len(market.Outcomes) {
			outcome = market.Outcomes[i]
		}
		s.quotes[tokenID] = &domain.OutcomeQuote{AssetID: tokenID, Outcome: outcome}
	}
	for i := range s.rules {
		s.rules[i] = &domain.TriggerRule{}
	}
	return s
}

// --------------------------------------------------------------------------
// Quotes
// --------------------------------------------------------------------------

// ApplyBook updates the matching outcome's quote from a book snapshot and
// returns a copy of the updated quote. ok is false for unknown assets.
func (s *Session) ApplyBook(snap domain.BookSnapshot, now time.Time) (domain.OutcomeQuote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotes[snap.AssetID]
	if !ok {
		return domain.OutcomeQuote{}, false
	}
	q.ApplyBook(snap, now)
	return *q, true
}

// SetLast updates the last trade price for an asset.
func (s *Session) SetLast(assetID string, price float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.quotes[assetID]; ok {
		q.Last = price
		q.UpdatedAt = ts
	}
}

// Quote returns a copy of the quote for a token id.
func (s *Session) Quote(tokenID string) (domain.OutcomeQuote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[tokenID]
	if !ok {
		return domain.OutcomeQuote{}, false
	}
	return *q, true
}

// Quotes returns copies of all outcome quotes in token order.
func (s *Session) Quotes() []domain.OutcomeQuote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.OutcomeQuote, 0, len(s.Market.TokenIDs))
	for _, id := range s.Market.TokenIDs {
		if q, ok := s.quotes[id]; ok {
			out = append(out, *q)
		}
	}
	return out
}

// RecordHistoryPoint appends the current mid prices of both outcomes to
// the bounded history window.
func (s *Session) RecordHistoryPoint(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	point := domain.PricePoint{Timestamp: now}
	if len(s.Market.TokenIDs) > 0 {
		if q, ok := s.quotes[s.Market.TokenIDs[0]]; ok {
			point.Up = q.Last
		}
	}
	if len(s.Market.TokenIDs) > 1 {
		if q, ok := s.quotes[s.Market.TokenIDs[1]]; ok {
			point.Down = q.Last
		}
	}
	s.history.Push(point)
}

// History returns a copy of the recent price window.
func (s *Session) History() []domain.PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Points()
}

// --------------------------------------------------------------------------
// Reference price and candles
// --------------------------------------------------------------------------

// SetReferencePrice stores the latest underlying price.
func (s *Session) SetReferencePrice(p domain.ReferencePrice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refPrice = p
}

// ReferencePrice returns the latest underlying price.
func (s *Session) ReferencePrice() domain.ReferencePrice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refPrice
}

// SeedCandles stores the startup candle window.
func (s *Session) SeedCandles(candles []domain.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles = candles
}

// Candles returns the seeded candle window.
func (s *Session) Candles() []domain.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// --------------------------------------------------------------------------
// Rules and auto-sell
// --------------------------------------------------------------------------

// WithRule runs fn with the rule for an outcome index under the session
// lock. fn sees and may mutate live rule state; the check-and-latch of
// TryFire stays atomic this way.
func (s *Session) WithRule(outcomeIndex int, fn func(*domain.TriggerRule)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if outcomeIndex < 0 || outcomeIndex >= len(s.rules) {
		return false
	}
	fn(s.rules[outcomeIndex])
	return true
}

// RuleSnapshot returns a copy of the rule for an outcome index.
func (s *Session) RuleSnapshot(outcomeIndex int) (domain.TriggerRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if outcomeIndex < 0 || outcomeIndex >= len(s.rules) {
		return domain.TriggerRule{}, false
	}
	return *s.rules[outcomeIndex], true
}

// WithAutoSell runs fn with the auto-sell config under the session lock.
func (s *Session) WithAutoSell(fn func(*domain.AutoSellConfig)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.autoSell)
}

// AutoSellSnapshot returns a copy of the auto-sell config without its
// triggered set.
func (s *Session) AutoSellSnapshot() domain.AutoSellConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.AutoSellConfig{
		Enabled:           s.autoSell.Enabled,
		TakeProfitPercent: s.autoSell.TakeProfitPercent,
		StopLossPercent:   s.autoSell.StopLossPercent,
	}
}

// --------------------------------------------------------------------------
// Connectivity and resolution
// --------------------------------------------------------------------------

// SetConnected flips the live-updates flag.
func (s *Session) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

// Connected reports whether live book updates are flowing.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// MarkResolved records that a token's book no longer exists, so refresh
// cycles stop re-fetching it.
func (s *Session) MarkResolved(tokenID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved[tokenID] = struct{}{}
}

// IsResolved reports whether a token was marked resolved.
func (s *Session) IsResolved(tokenID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.resolved[tokenID]
	return ok
}

// --------------------------------------------------------------------------
// Order gate
// --------------------------------------------------------------------------

// TryAcquireOrder takes the single in-flight order slot. It returns false
// without blocking when an order is already in flight.
func (s *Session) TryAcquireOrder() bool {
	if !s.orderGate.TryLock() {
		return false
	}
	s.setOrderState(domain.OrderStateSubmitting, "")
	return true
}

// ReleaseOrder frees the order slot and returns the state to idle.
func (s *Session) ReleaseOrder() {
	s.setOrderState(domain.OrderStateIdle, "")
	s.orderGate.Unlock()
}

// SetOrderOpen records a resting order while the slot is held.
func (s *Session) SetOrderOpen(orderID string) {
	s.setOrderState(domain.OrderStateOpen, orderID)
}

// SetOrderTerminal records the terminal state before release.
func (s *Session) SetOrderTerminal(state domain.OrderState) {
	s.setOrderState(state, "")
}

// OrderStatus returns the current lifecycle state and open order id.
func (s *Session) OrderStatus() (domain.OrderState, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderState, s.openOrder
}

func (s *Session) setOrderState(state domain.OrderState, orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderState = state
	s.openOrder = orderID
}
