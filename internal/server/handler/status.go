package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/session"
)

// StatusHandler reports the live state of the trading session.
type StatusHandler struct {
	sess   *session.Session
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler for the given session.
func NewStatusHandler(sess *session.Session, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{sess: sess, logger: logger}
}

type marketStatus struct {
	ConditionID string   `json:"condition_id"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug,omitempty"`
	TokenIDs    []string `json:"token_ids"`
	Outcomes    []string `json:"outcomes"`
	EndDate     string   `json:"end_date,omitempty"`
}

type ruleStatus struct {
	OutcomeIndex int     `json:"outcome_index"`
	Outcome      string  `json:"outcome,omitempty"`
	State        string  `json:"state"`
	TargetReturn float64 `json:"target_return"`
	AmountUSD    float64 `json:"amount_usd"`
}

type autoSellStatus struct {
	Enabled           bool    `json:"enabled"`
	TakeProfitPercent float64 `json:"take_profit_percent"`
	StopLossPercent   float64 `json:"stop_loss_percent"`
}

type referenceStatus struct {
	Symbol    string  `json:"symbol"`
	Value     float64 `json:"value"`
	Source    string  `json:"source,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

type statusResponse struct {
	Market    marketStatus    `json:"market"`
	Connected bool            `json:"connected"`
	Order     orderStatus     `json:"order"`
	Reference referenceStatus `json:"reference"`
	Rules     []ruleStatus    `json:"rules"`
	AutoSell  autoSellStatus  `json:"autosell"`
}

type orderStatus struct {
	State   string `json:"state"`
	OrderID string `json:"order_id,omitempty"`
}

// GetStatus returns the session snapshot: market identity, feed
// connectivity, the in-flight order, the reference price, and the
// configured rules.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	m := h.sess.Market

	resp := statusResponse{
		Market: marketStatus{
			ConditionID: m.ConditionID,
			Title:       m.Title,
			Slug:        m.Slug,
			TokenIDs:    m.TokenIDs,
			Outcomes:    m.Outcomes,
		},
		Connected: h.sess.Connected(),
	}
	if !m.EndDate.IsZero() {
		resp.Market.EndDate = m.EndDate.UTC().Format(time.RFC3339)
	}

	state, orderID := h.sess.OrderStatus()
	resp.Order = orderStatus{State: string(state), OrderID: orderID}

	ref := h.sess.ReferencePrice()
	resp.Reference = referenceStatus{
		Symbol: ref.Symbol,
		Value:  ref.Value,
		Source: string(ref.Source),
	}
	if !ref.Timestamp.IsZero() {
		resp.Reference.Timestamp = ref.Timestamp.UTC().Format(time.RFC3339)
	}

	resp.Rules = ruleStatuses(h.sess)

	as := h.sess.AutoSellSnapshot()
	resp.AutoSell = autoSellStatus{
		Enabled:           as.Enabled,
		TakeProfitPercent: as.TakeProfitPercent,
		StopLossPercent:   as.StopLossPercent,
	}

	writeJSON(w, http.StatusOK, resp)
}

// ruleStatuses snapshots every outcome's rule.
func ruleStatuses(sess *session.Session) []ruleStatus {
	out := make([]ruleStatus, 0, len(sess.Market.Outcomes))
	for i := range sess.Market.Outcomes {
		rule, ok := sess.RuleSnapshot(i)
		if !ok {
			continue
		}
		out = append(out, ruleStatus{
			OutcomeIndex: i,
			Outcome:      sess.Market.Outcomes[i],
			State:        rule.State.String(),
			TargetReturn: rule.TargetReturn,
			AmountUSD:    rule.AmountUSD,
		})
	}
	return out
}
