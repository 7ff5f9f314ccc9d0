package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/alanyoungcy/tradepilot/internal/session"
)

// AutoSellHandler manages the take-profit / stop-loss configuration.
type AutoSellHandler struct {
	sess   *session.Session
	logger *slog.Logger
}

// NewAutoSellHandler creates an AutoSellHandler for the given session.
func NewAutoSellHandler(sess *session.Session, logger *slog.Logger) *AutoSellHandler {
	return &AutoSellHandler{sess: sess, logger: logger}
}

// GetConfig returns the current auto-sell parameters.
// GET /api/autosell
func (h *AutoSellHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	as := h.sess.AutoSellSnapshot()
	writeJSON(w, http.StatusOK, autoSellStatus{
		Enabled:           as.Enabled,
		TakeProfitPercent: as.TakeProfitPercent,
		StopLossPercent:   as.StopLossPercent,
	})
}

// updateAutoSellRequest carries the mutable auto-sell fields.
type updateAutoSellRequest struct {
	Enabled           *bool    `json:"enabled"`
	TakeProfitPercent *float64 `json:"take_profit_percent"`
	StopLossPercent   *float64 `json:"stop_loss_percent"`
}

// UpdateConfig patches the auto-sell parameters.
// PUT /api/autosell
func (h *AutoSellHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateAutoSellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.TakeProfitPercent != nil && *req.TakeProfitPercent <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "take_profit_percent must be > 0")
		return
	}
	if req.StopLossPercent != nil && *req.StopLossPercent <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "stop_loss_percent must be > 0")
		return
	}

	h.sess.WithAutoSell(func(cfg *domain.AutoSellConfig) {
		if req.Enabled != nil {
			// Re-enabling starts a fresh cycle: positions that triggered
			// during the previous one become eligible again.
			if *req.Enabled && !cfg.Enabled {
				cfg.Reset()
			}
			cfg.Enabled = *req.Enabled
		}
		if req.TakeProfitPercent != nil {
			cfg.TakeProfitPercent = *req.TakeProfitPercent
		}
		if req.StopLossPercent != nil {
			cfg.StopLossPercent = *req.StopLossPercent
		}
	})

	as := h.sess.AutoSellSnapshot()
	h.logger.InfoContext(r.Context(), "autosell updated",
		slog.Bool("enabled", as.Enabled),
		slog.Float64("take_profit", as.TakeProfitPercent),
		slog.Float64("stop_loss", as.StopLossPercent),
	)

	writeJSON(w, http.StatusOK, autoSellStatus{
		Enabled:           as.Enabled,
		TakeProfitPercent: as.TakeProfitPercent,
		StopLossPercent:   as.StopLossPercent,
	})
}
