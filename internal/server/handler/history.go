package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// JournalReader reads back persisted order attempts.
type JournalReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.JournalEntry, error)
}

// HistoryHandler serves the order journal.
type HistoryHandler struct {
	journal JournalReader
	logger  *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler. journal may be nil when no
// database is configured; the endpoint then reports 503.
func NewHistoryHandler(journal JournalReader, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{journal: journal, logger: logger}
}

type journalEntryResponse struct {
	ID           string  `json:"id"`
	IntentID     string  `json:"intent_id"`
	Source       string  `json:"source"`
	Strategy     string  `json:"strategy"`
	Side         string  `json:"side"`
	OutcomeIndex int     `json:"outcome_index"`
	TokenID      string  `json:"token_id"`
	LimitPrice   float64 `json:"limit_price"`
	Shares       float64 `json:"shares"`
	EstCost      float64 `json:"est_cost"`
	Success      bool    `json:"success"`
	OrderID      string  `json:"order_id,omitempty"`
	FillPrice    float64 `json:"fill_price"`
	FillShares   float64 `json:"fill_shares"`
	Gasless      bool    `json:"gasless"`
	TxHash       string  `json:"tx_hash,omitempty"`
	Message      string  `json:"message,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// ListHistory returns recent order attempts, newest first.
// GET /api/history?limit=50
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "order journal not configured")
		return
	}

	limit := parseLimit(r, 50, 500)

	entries, err := h.journal.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list journal failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read order history")
		return
	}

	out := make([]journalEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, journalEntryResponse{
			ID:           e.ID,
			IntentID:     e.IntentID,
			Source:       e.Source,
			Strategy:     string(e.Strategy),
			Side:         string(e.Side),
			OutcomeIndex: e.OutcomeIndex,
			TokenID:      e.TokenID,
			LimitPrice:   e.LimitPrice,
			Shares:       e.Shares,
			EstCost:      e.EstCost,
			Success:      e.Success,
			OrderID:      e.OrderID,
			FillPrice:    e.FillPrice,
			FillShares:   e.FillShares,
			Gasless:      e.Gasless,
			TxHash:       e.TxHash,
			Message:      e.Message,
			CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}
