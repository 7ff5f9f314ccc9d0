package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// PositionSource reads the wallet's open positions from the venue.
type PositionSource interface {
	GetPositions(ctx context.Context, address string) ([]domain.Position, error)
}

// PositionsHandler serves the wallet's current holdings.
type PositionsHandler struct {
	source  PositionSource
	address string
	logger  *slog.Logger
}

// NewPositionsHandler creates a PositionsHandler for the given wallet.
func NewPositionsHandler(source PositionSource, address string, logger *slog.Logger) *PositionsHandler {
	return &PositionsHandler{source: source, address: address, logger: logger}
}

type positionResponse struct {
	ConditionID string  `json:"condition_id"`
	AssetID     string  `json:"asset_id,omitempty"`
	Title       string  `json:"title"`
	Outcome     string  `json:"outcome"`
	Size        float64 `json:"size"`
	AvgPrice    float64 `json:"avg_price"`
	CurPrice    float64 `json:"cur_price"`
	PercentPnL  float64 `json:"percent_pnl"`
	CashPnL     float64 `json:"cash_pnl"`
	Redeemable  bool    `json:"redeemable"`
	EndDate     string  `json:"end_date,omitempty"`
}

// ListPositions returns the wallet's open positions with computed P&L.
// GET /api/positions
func (h *PositionsHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.source.GetPositions(r.Context(), h.address)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list positions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to fetch positions")
		return
	}

	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		resp := positionResponse{
			ConditionID: p.ConditionID,
			AssetID:     p.AssetID,
			Title:       p.Title,
			Outcome:     p.Outcome,
			Size:        p.Size,
			AvgPrice:    p.AvgPrice,
			CurPrice:    p.CurPrice,
			PercentPnL:  p.PercentPnL() * 100,
			CashPnL:     p.CashPnL(),
			Redeemable:  p.Redeemable,
		}
		if !p.EndDate.IsZero() {
			resp.EndDate = p.EndDate.UTC().Format(time.RFC3339)
		}
		out = append(out, resp)
	}

	writeJSON(w, http.StatusOK, map[string]any{"positions": out})
}
