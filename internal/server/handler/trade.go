package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/alanyoungcy/tradepilot/internal/executor"
)

// pendingTTL bounds how long an unconfirmed intent stays accept-able; the
// price estimate behind it goes stale quickly.
const pendingTTL = 2 * time.Minute

// TradeService is the slice of the executor the trade handler needs.
type TradeService interface {
	Initiate(ctx context.Context, req executor.InitiateRequest) (domain.TradeIntent, error)
	ConfirmIntent(ctx context.Context, intent domain.TradeIntent) (domain.OrderResult, error)
}

// TradeHandler initiates and confirms manual trades. When the executor is
// not auto-confirming, initiated intents are parked here until the operator
// confirms or they expire.
type TradeHandler struct {
	exec        TradeService
	autoConfirm bool
	logger      *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingIntent
}

type pendingIntent struct {
	intent  domain.TradeIntent
	expires time.Time
}

// NewTradeHandler creates a TradeHandler. autoConfirm must mirror the
// executor's setting so responses tell the caller whether a confirm step
// remains.
func NewTradeHandler(exec TradeService, autoConfirm bool, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		exec:        exec,
		autoConfirm: autoConfirm,
		logger:      logger,
		pending:     make(map[string]pendingIntent),
	}
}

type tradeRequest struct {
	Side         string  `json:"side"`     // "BUY" or "SELL"
	Strategy     string  `json:"strategy"` // "PASSIVE" or "AGGRESSIVE"
	OutcomeIndex int     `json:"outcome_index"`
	AmountUSD    float64 `json:"amount_usd"`
	Shares       float64 `json:"shares"`
}

type intentResponse struct {
	IntentID       string  `json:"intent_id"`
	Side           string  `json:"side"`
	Strategy       string  `json:"strategy"`
	OutcomeIndex   int     `json:"outcome_index"`
	TokenID        string  `json:"token_id"`
	Price          float64 `json:"price"`
	WorstCasePrice float64 `json:"worst_case_price"`
	Shares         float64 `json:"shares"`
	EstCost        float64 `json:"est_cost"`
}

type tradeResponse struct {
	Intent               intentResponse  `json:"intent"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
	Result               *resultResponse `json:"result,omitempty"`
}

type resultResponse struct {
	Success bool    `json:"success"`
	OrderID string  `json:"order_id,omitempty"`
	Price   float64 `json:"price"`
	Shares  float64 `json:"shares"`
	Gasless bool    `json:"gasless"`
	TxHash  string  `json:"tx_hash,omitempty"`
	Message string  `json:"message,omitempty"`
}

// PlaceTrade resolves prices and sizing for a manual trade. Without
// auto-confirm the intent is parked and the response asks for confirmation;
// with it the trade is submitted in the same call.
// POST /api/trade
func (h *TradeHandler) PlaceTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	side := domain.OrderSide(req.Side)
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		writeError(w, http.StatusUnprocessableEntity, `side must be "BUY" or "SELL"`)
		return
	}
	strategy := domain.TradeStrategy(req.Strategy)
	if strategy == "" {
		strategy = domain.StrategyAggressive
	}
	if strategy != domain.StrategyPassive && strategy != domain.StrategyAggressive {
		writeError(w, http.StatusUnprocessableEntity, `strategy must be "PASSIVE" or "AGGRESSIVE"`)
		return
	}
	if side == domain.OrderSideBuy && req.AmountUSD <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "amount_usd must be > 0 for buys")
		return
	}
	if side == domain.OrderSideSell && req.Shares <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "shares must be > 0 for sells")
		return
	}

	intent, err := h.exec.Initiate(r.Context(), executor.InitiateRequest{
		Side:         side,
		Strategy:     strategy,
		OutcomeIndex: req.OutcomeIndex,
		AmountUSD:    req.AmountUSD,
		Shares:       req.Shares,
	})
	if err != nil && intent.ID == "" {
		h.writeTradeError(w, r, err)
		return
	}

	resp := tradeResponse{Intent: toIntentResponse(intent)}

	if h.autoConfirm {
		// Initiate already submitted; err carries the submit outcome.
		resp.Result = &resultResponse{Success: err == nil}
		if err != nil {
			resp.Result.Message = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	h.park(intent)
	resp.RequiresConfirmation = true
	writeJSON(w, http.StatusAccepted, resp)
}

// ConfirmTrade submits a parked intent.
// POST /api/trade/{id}/confirm
func (h *TradeHandler) ConfirmTrade(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	intent, ok := h.take(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no pending trade with that id (expired?)")
		return
	}

	result, err := h.exec.ConfirmIntent(r.Context(), intent)
	if err != nil {
		h.writeTradeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tradeResponse{
		Intent: toIntentResponse(intent),
		Result: &resultResponse{
			Success: result.Success,
			OrderID: result.OrderID,
			Price:   result.Price,
			Shares:  result.Shares,
			Gasless: result.Gasless,
			TxHash:  result.TxHash,
			Message: result.Message,
		},
	})
}

// CancelPending discards a parked intent without submitting it.
// DELETE /api/trade/{id}
func (h *TradeHandler) CancelPending(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.take(id); !ok {
		writeError(w, http.StatusNotFound, "no pending trade with that id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
}

func (h *TradeHandler) park(intent domain.TradeIntent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	for id, p := range h.pending {
		if now.After(p.expires) {
			delete(h.pending, id)
		}
	}
	h.pending[intent.ID] = pendingIntent{intent: intent, expires: now.Add(pendingTTL)}
}

func (h *TradeHandler) take(id string) (domain.TradeIntent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.pending[id]
	if !ok {
		return domain.TradeIntent{}, false
	}
	delete(h.pending, id)
	if time.Now().After(p.expires) {
		return domain.TradeIntent{}, false
	}
	return p.intent, true
}

func (h *TradeHandler) writeTradeError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "trade failed", slog.String("error", err.Error()))

	switch {
	case errors.Is(err, domain.ErrOrderInFlight):
		writeError(w, http.StatusConflict, "an order is already in flight")
	case errors.Is(err, domain.ErrMarketResolved):
		writeError(w, http.StatusGone, "market is resolved")
	case errors.Is(err, domain.ErrNoLiquidity):
		writeError(w, http.StatusUnprocessableEntity, "no liquidity on the required side")
	case errors.Is(err, domain.ErrInvalidOrder):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "trade submission failed")
	}
}

func toIntentResponse(intent domain.TradeIntent) intentResponse {
	return intentResponse{
		IntentID:       intent.ID,
		Side:           string(intent.Side),
		Strategy:       string(intent.Strategy),
		OutcomeIndex:   intent.OutcomeIndex,
		TokenID:        intent.TokenID,
		Price:          intent.Price,
		WorstCasePrice: intent.WorstCasePrice,
		Shares:         intent.Shares,
		EstCost:        intent.EstCost,
	}
}
