// Package trigger evaluates auto-buy rules against live book updates and
// dispatches trade intents when a rule fires.
package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/alanyoungcy/tradepilot/internal/session"
)

// Confirmer executes a confirmed trade intent. The execution coordinator
// implements it.
type Confirmer interface {
	ConfirmIntent(ctx context.Context, intent domain.TradeIntent) (domain.OrderResult, error)
}

// Evaluate is the pure trigger decision: the rule fires when the implied
// return at the best ask reaches the target. Fires on the >= boundary;
// an empty or crossed-out book (bestAsk <= 0) never fires.
func Evaluate(bestAsk, targetReturn float64) bool {
	if bestAsk <= 0 || targetReturn <= 0 {
		return false
	}
	return 1/bestAsk >= targetReturn
}

// Evaluator wires rules to the market feed. It runs synchronously in the
// feed's read loop so rule checks observe every book update in order.
type Evaluator struct {
	log  *slog.Logger
	sess *session.Session
	exec Confirmer

	// ready is flipped once the authenticated trading client exists. A
	// rule whose condition is met before then logs a warning and stays
	// armed, so it can still fire after login.
	ready func() bool
}

// New creates an evaluator for a session. ready reports whether the
// trading client is available.
func New(logger *slog.Logger, sess *session.Session, exec Confirmer, ready func() bool) *Evaluator {
	return &Evaluator{
		log:   logger.With(slog.String("component", "trigger")),
		sess:  sess,
		exec:  exec,
		ready: ready,
	}
}

// OnBookUpdate checks the rule for one outcome against its fresh quote and
// dispatches a buy when it fires. The Armed -> Fired latch happens under
// the session lock before any network call, so bursty updates cannot
// double-fire.
func (e *Evaluator) OnBookUpdate(ctx context.Context, outcomeIndex int, quote domain.OutcomeQuote) {
	var (
		fired  bool
		amount float64
		target float64
	)

	e.sess.WithRule(outcomeIndex, func(r *domain.TriggerRule) {
		if r.State != domain.RuleArmed {
			return
		}
		if !Evaluate(quote.Ask, r.TargetReturn) {
			return
		}
		if !e.ready() {
			e.log.Warn("trigger condition met but no trading client, rule stays armed",
				slog.Int("outcome", outcomeIndex),
				slog.Float64("best_ask", quote.Ask),
				slog.Float64("target_return", r.TargetReturn))
			return
		}
		if !r.TryFire() {
			return
		}
		fired = true
		amount = r.AmountUSD
		target = r.TargetReturn
	})

	if !fired {
		return
	}

	intent := domain.TradeIntent{
		ID:             uuid.NewString(),
		Strategy:       domain.StrategyAggressive,
		Side:           domain.OrderSideBuy,
		OutcomeIndex:   outcomeIndex,
		TokenID:        quote.AssetID,
		Price:          quote.Ask,
		WorstCasePrice: domain.MaxPriceTick,
		Shares:         amount / quote.Ask,
		EstCost:        amount,
		Source:         "trigger",
		CreatedAt:      time.Now(),
	}

	e.log.Info("trigger fired",
		slog.Int("outcome", outcomeIndex),
		slog.String("token_id", quote.AssetID),
		slog.Float64("best_ask", quote.Ask),
		slog.Float64("target_return", target),
		slog.Float64("amount_usd", amount))

	result, err := e.exec.ConfirmIntent(ctx, intent)
	if err != nil {
		e.log.Error("trigger buy failed",
			slog.String("intent_id", intent.ID),
			slog.String("error", err.Error()))
		return
	}

	e.log.Info("trigger buy submitted",
		slog.String("intent_id", intent.ID),
		slog.String("order_id", result.OrderID),
		slog.Float64("price", result.Price),
		slog.Float64("shares", result.Shares))
}
