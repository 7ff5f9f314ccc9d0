// Package executor coordinates order execution: it owns the order
// lifecycle, the single in-flight slot, slippage and sizing math, and the
// gasless-first settlement step.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/alanyoungcy/tradepilot/internal/platform/polymarket"
	"github.com/alanyoungcy/tradepilot/internal/session"
)

// VenueClient is the slice of the CLOB client the coordinator uses.
type VenueClient interface {
	GetOrderBook(ctx context.Context, tokenID string) (domain.BookSnapshot, error)
	CreateAndPostOrder(ctx context.Context, args polymarket.OrderArgs) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (polymarket.APIOrder, error)
}

// Journal persists terminal order results.
type Journal interface {
	Record(ctx context.Context, intent domain.TradeIntent, result domain.OrderResult) error
}

// Notifier pushes operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config tunes the coordinator.
type Config struct {
	// AutoConfirm skips the manual confirm gate: Initiate submits
	// immediately. It is an explicit operator choice, independent of
	// strategy.
	AutoConfirm bool

	// Auto-cancel deadlines for resting orders after submission.
	PassiveCancelAfter    time.Duration
	AggressiveCancelAfter time.Duration
}

// DefaultConfig returns the production auto-cancel deadlines.
func DefaultConfig() Config {
	return Config{
		PassiveCancelAfter:    30 * time.Second,
		AggressiveCancelAfter: 2 * time.Second,
	}
}

// InitiateRequest describes a manual trade before price resolution.
type InitiateRequest struct {
	Side         domain.OrderSide
	Strategy     domain.TradeStrategy
	OutcomeIndex int
	AmountUSD    float64 // buys: dollars to spend
	Shares       float64 // sells: shares to unload
}

// Coordinator drives intents through the order lifecycle.
type Coordinator struct {
	log      *slog.Logger
	cfg      Config
	sess     *session.Session
	venue    VenueClient
	funds    *FundsPreparer
	journal  Journal  // optional
	notifier Notifier // optional
}

// New creates a coordinator. journal and notifier may be nil.
func New(logger *slog.Logger, cfg Config, sess *session.Session, venue VenueClient, funds *FundsPreparer, journal Journal, notifier Notifier) *Coordinator {
	if cfg.PassiveCancelAfter == 0 {
		cfg.PassiveCancelAfter = DefaultConfig().PassiveCancelAfter
	}
	if cfg.AggressiveCancelAfter == 0 {
		cfg.AggressiveCancelAfter = DefaultConfig().AggressiveCancelAfter
	}
	return &Coordinator{
		log:      logger.With(slog.String("component", "executor")),
		cfg:      cfg,
		sess:     sess,
		venue:    venue,
		funds:    funds,
		journal:  journal,
		notifier: notifier,
	}
}

// Initiate resolves prices and sizing for a manual trade and returns the
// intent for confirmation. With AutoConfirm set it submits immediately and
// returns the populated intent alongside the submit error, if any.
func (c *Coordinator) Initiate(ctx context.Context, req InitiateRequest) (domain.TradeIntent, error) {
	if req.OutcomeIndex < 0 || req.OutcomeIndex >= len(c.sess.Market.TokenIDs) {
		return domain.TradeIntent{}, fmt.Errorf("executor: %w: outcome index %d", domain.ErrInvalidOrder, req.OutcomeIndex)
	}
	tokenID := c.sess.Market.TokenIDs[req.OutcomeIndex]

	quote, err := c.resolveQuote(ctx, tokenID)
	if err != nil {
		return domain.TradeIntent{}, err
	}

	estPrice := c.estPrice(req.Side, req.Strategy, quote)
	if estPrice <= 0 {
		return domain.TradeIntent{}, fmt.Errorf("executor: %w: no %s side for %s", domain.ErrNoLiquidity, oppositeSideName(req.Side, req.Strategy), tokenID)
	}

	intent := domain.TradeIntent{
		ID:             uuid.NewString(),
		Strategy:       req.Strategy,
		Side:           req.Side,
		OutcomeIndex:   req.OutcomeIndex,
		TokenID:        tokenID,
		Price:          estPrice,
		WorstCasePrice: worstCasePrice(req.Strategy, estPrice),
		Source:         "manual",
		CreatedAt:      time.Now(),
	}

	if req.Side == domain.OrderSideBuy {
		shares := bumpToMinNotional(req.AmountUSD/estPrice, estPrice)
		intent.Shares = shares
		intent.EstCost = shares * estPrice
	} else {
		intent.Shares = req.Shares
		intent.EstCost = req.Shares * estPrice
	}

	if !c.cfg.AutoConfirm {
		return intent, nil
	}
	_, err = c.ConfirmIntent(ctx, intent)
	return intent, err
}

// ConfirmIntent submits an intent. It takes the session's single in-flight
// slot for the whole lifecycle; a second confirm while one is running
// returns ErrOrderInFlight.
func (c *Coordinator) ConfirmIntent(ctx context.Context, intent domain.TradeIntent) (domain.OrderResult, error) {
	if !c.sess.TryAcquireOrder() {
		return domain.OrderResult{}, fmt.Errorf("executor: confirm %s: %w", intent.ID, domain.ErrOrderInFlight)
	}
	defer c.sess.ReleaseOrder()

	result, err := c.submit(ctx, intent)

	c.finish(ctx, intent, result, err)
	return result, err
}

func (c *Coordinator) submit(ctx context.Context, intent domain.TradeIntent) (domain.OrderResult, error) {
	// Prices move between initiation and confirm; always re-read the book.
	book, err := c.venue.GetOrderBook(ctx, intent.TokenID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.sess.MarkResolved(intent.TokenID)
			return domain.OrderResult{}, fmt.Errorf("executor: %w: %s", domain.ErrMarketResolved, intent.TokenID)
		}
		return domain.OrderResult{}, fmt.Errorf("executor: refetch book: %w", err)
	}

	limitPrice, shares, err := c.resolveSubmission(intent, book)
	if err != nil {
		return domain.OrderResult{}, err
	}

	var fundsTx string
	var gasless bool
	if c.funds != nil {
		fundsTx, gasless, err = c.funds.Prepare(ctx, intent.Side, limitPrice, shares)
		if err != nil {
			return domain.OrderResult{}, err
		}
	}

	orderType := "GTC"
	if intent.Strategy == domain.StrategyAggressive {
		orderType = "FAK"
	}

	result, err := c.venue.CreateAndPostOrder(ctx, polymarket.OrderArgs{
		TokenID:   intent.TokenID,
		Price:     limitPrice,
		Size:      shares,
		Side:      intent.Side,
		OrderType: orderType,
	})
	if err != nil {
		return result, fmt.Errorf("executor: submit: %w", err)
	}
	result.Gasless = gasless
	if result.TxHash == "" {
		result.TxHash = fundsTx
	}

	c.sess.SetOrderOpen(result.OrderID)
	c.log.Info("order open",
		slog.String("intent_id", intent.ID),
		slog.String("order_id", result.OrderID),
		slog.Float64("price", limitPrice),
		slog.Float64("shares", shares),
		slog.Bool("gasless", gasless))

	state := c.awaitFillOrCancel(ctx, intent, result.OrderID)
	c.sess.SetOrderTerminal(state)
	result.Success = state == domain.OrderStateFilled

	return result, nil
}

// resolveSubmission turns the intent plus a fresh book into the final
// limit price and share count.
func (c *Coordinator) resolveSubmission(intent domain.TradeIntent, book domain.BookSnapshot) (float64, float64, error) {
	if intent.Strategy != domain.StrategyAggressive {
		return domain.ClampPrice(intent.Price), intent.Shares, nil
	}

	fast := intent.Source == "trigger"
	var limit float64
	if intent.Side == domain.OrderSideBuy {
		ask := book.BestAsk()
		if ask.Price <= 0 {
			return 0, 0, fmt.Errorf("executor: %w: no asks for %s", domain.ErrNoLiquidity, intent.TokenID)
		}
		limit = marketOrderPrice(ask.Price, fast)
	} else {
		bid := book.BestBid()
		if bid.Price <= 0 {
			return 0, 0, fmt.Errorf("executor: %w: no bids for %s", domain.ErrNoLiquidity, intent.TokenID)
		}
		limit = marketSellPrice(bid.Price, fast)
	}

	if intent.WorstCasePrice > 0 && intent.Side == domain.OrderSideBuy && limit > intent.WorstCasePrice {
		limit = intent.WorstCasePrice
	}

	shares := intent.Shares
	if intent.Side == domain.OrderSideBuy && intent.EstCost > 0 {
		shares = bumpToMinNotional(dollarsToShares(intent.EstCost, limit), limit)
	}
	return limit, shares, nil
}

// awaitFillOrCancel waits out the strategy's deadline, then resolves the
// order to filled or cancelled. A failed cancel means the venue matched
// the order first, so it counts as filled.
func (c *Coordinator) awaitFillOrCancel(ctx context.Context, intent domain.TradeIntent, orderID string) domain.OrderState {
	deadline := c.cfg.PassiveCancelAfter
	if intent.Strategy == domain.StrategyAggressive {
		deadline = c.cfg.AggressiveCancelAfter
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	order, err := c.venue.GetOrder(ctx, orderID)
	if err == nil && order.Filled() {
		return domain.OrderStateFilled
	}

	if err := c.venue.CancelOrder(ctx, orderID); err != nil {
		c.log.Warn("cancel failed, treating order as filled",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()))
		return domain.OrderStateFilled
	}
	return domain.OrderStateCancelled
}

// finish journals and notifies the terminal result.
func (c *Coordinator) finish(ctx context.Context, intent domain.TradeIntent, result domain.OrderResult, err error) {
	if err != nil {
		c.log.Error("order failed",
			slog.String("intent_id", intent.ID),
			slog.String("token_id", intent.TokenID),
			slog.String("error", err.Error()))
	}

	if c.journal != nil {
		if jerr := c.journal.Record(ctx, intent, result); jerr != nil {
			c.log.Error("journal write failed", slog.String("error", jerr.Error()))
		}
	}
	if c.notifier == nil {
		return
	}

	if err != nil {
		c.notifier.Notify(ctx, "order_failed", "Order failed",
			fmt.Sprintf("%s %s %.2f shares: %v", intent.Side, intent.TokenID, intent.Shares, err))
		return
	}
	c.notifier.Notify(ctx, "order_filled", "Order complete",
		fmt.Sprintf("%s %.2f shares @ %.3f (order %s, gasless=%t)",
			intent.Side, result.Shares, result.Price, result.OrderID, result.Gasless))
}

// resolveQuote prefers the session's live quote and falls back to a fresh
// book fetch when the quote has never been populated.
func (c *Coordinator) resolveQuote(ctx context.Context, tokenID string) (domain.OutcomeQuote, error) {
	quote, ok := c.sess.Quote(tokenID)
	if ok && (quote.Bid > 0 || quote.Ask > 0) {
		return quote, nil
	}

	book, err := c.venue.GetOrderBook(ctx, tokenID)
	if err != nil {
		return domain.OutcomeQuote{}, fmt.Errorf("executor: fetch book for %s: %w", tokenID, err)
	}
	fresh := domain.OutcomeQuote{AssetID: tokenID}
	fresh.ApplyBook(book, time.Now())
	return fresh, nil
}

func (c *Coordinator) estPrice(side domain.OrderSide, strategy domain.TradeStrategy, quote domain.OutcomeQuote) float64 {
	if strategy == domain.StrategyAggressive {
		if side == domain.OrderSideBuy {
			return quote.Ask
		}
		return quote.Bid
	}
	if side == domain.OrderSideBuy {
		return quote.Bid
	}
	return quote.Ask
}

func oppositeSideName(side domain.OrderSide, strategy domain.TradeStrategy) string {
	crossing := strategy == domain.StrategyAggressive
	if (side == domain.OrderSideBuy) == crossing {
		return "ask"
	}
	return "bid"
}
