package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/alanyoungcy/tradepilot/internal/session"
)

// RulesHandler manages the per-outcome trigger rules.
type RulesHandler struct {
	sess   *session.Session
	logger *slog.Logger
}

// NewRulesHandler creates a RulesHandler for the given session.
func NewRulesHandler(sess *session.Session, logger *slog.Logger) *RulesHandler {
	return &RulesHandler{sess: sess, logger: logger}
}

// ListRules returns every outcome's trigger rule.
// GET /api/rules
func (h *RulesHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rules": ruleStatuses(h.sess)})
}

// updateRuleRequest carries the mutable rule fields. Pointer fields
// distinguish "not sent" from zero values.
type updateRuleRequest struct {
	Armed        *bool    `json:"armed"`
	TargetReturn *float64 `json:"target_return"`
	AmountUSD    *float64 `json:"amount_usd"`
}

// UpdateRule patches one outcome's rule. Arming validates that a usable
// target and amount are in place; re-arming a fired rule clears its latch.
// PUT /api/rules/{index}
func (h *RulesHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule index")
		return
	}

	var req updateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.TargetReturn != nil && *req.TargetReturn <= 1 {
		writeError(w, http.StatusUnprocessableEntity, "target_return must be > 1")
		return
	}
	if req.AmountUSD != nil && *req.AmountUSD <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "amount_usd must be > 0")
		return
	}

	var invalid string
	ok := h.sess.WithRule(idx, func(rule *domain.TriggerRule) {
		if req.TargetReturn != nil {
			rule.TargetReturn = *req.TargetReturn
		}
		if req.AmountUSD != nil {
			rule.AmountUSD = *req.AmountUSD
		}
		if req.Armed != nil {
			if *req.Armed {
				if rule.TargetReturn <= 1 || rule.AmountUSD <= 0 {
					invalid = "cannot arm: target_return and amount_usd must be set"
					return
				}
				rule.Arm()
			} else {
				rule.Disable()
			}
		}
	})
	if !ok {
		writeError(w, http.StatusNotFound, "no rule for outcome index "+strconv.Itoa(idx))
		return
	}
	if invalid != "" {
		writeError(w, http.StatusUnprocessableEntity, invalid)
		return
	}

	rule, _ := h.sess.RuleSnapshot(idx)
	h.logger.InfoContext(r.Context(), "rule updated",
		slog.Int("outcome_index", idx),
		slog.String("state", rule.State.String()),
		slog.Float64("target_return", rule.TargetReturn),
		slog.Float64("amount_usd", rule.AmountUSD),
	)

	writeJSON(w, http.StatusOK, ruleStatus{
		OutcomeIndex: idx,
		Outcome:      outcomeName(h.sess, idx),
		State:        rule.State.String(),
		TargetReturn: rule.TargetReturn,
		AmountUSD:    rule.AmountUSD,
	})
}

func outcomeName(sess *session.Session, idx int) string {
	if idx >= 0 && idx < len(sess.Market.Outcomes) {
		return sess.Market.Outcomes[idx]
	}
	return ""
}
