package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradepilot/internal/platform/polymarket"
)

// BalanceSource reads the trading wallet's collateral balance.
type BalanceSource interface {
	GetBalanceAllowance(ctx context.Context) (polymarket.BalanceAllowance, error)
}

// BalanceHandler serves the wallet's USDC balance and exchange allowance.
type BalanceHandler struct {
	source BalanceSource
	logger *slog.Logger
}

// NewBalanceHandler creates a BalanceHandler.
func NewBalanceHandler(source BalanceSource, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{source: source, logger: logger}
}

// GetBalance returns the wallet's collateral balance in whole USDC.
// GET /api/balance
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ba, err := h.source.GetBalanceAllowance(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "balance fetch failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to fetch balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]float64{
		"balance":   ba.Balance,
		"allowance": ba.Allowance,
	})
}
