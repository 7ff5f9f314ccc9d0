package executor

import (
	"math"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

const (
	// Slippage budgets applied on top of the best ask for marketable
	// orders. The fast path takes more to guarantee a cross.
	slippageFast    = 0.10
	slippageDefault = 0.05

	// aggressivePad is added to the best ask when estimating the worst
	// case of an aggressive order at initiation time.
	aggressivePad = 0.005

	// sharesBuffer over-asks by 0.1% when converting dollars to shares,
	// covering price drift between quote and match.
	sharesBuffer = 1.001
)

// marketOrderPrice returns the limit price for a marketable order: the
// best ask plus the slippage budget, clamped to the venue's legal range.
func marketOrderPrice(bestAsk float64, fast bool) float64 {
	slip := slippageDefault
	if fast {
		slip = slippageFast
	}
	return domain.ClampPrice(bestAsk * (1 + slip))
}

// marketSellPrice mirrors marketOrderPrice for sells: the best bid minus
// the slippage budget, clamped.
func marketSellPrice(bestBid float64, fast bool) float64 {
	slip := slippageDefault
	if fast {
		slip = slippageFast
	}
	return domain.ClampPrice(bestBid * (1 - slip))
}

// dollarsToShares converts a dollar amount into shares at the given limit
// price with the upward buffer applied.
func dollarsToShares(dollars, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return dollars / price * sharesBuffer
}

// bumpToMinNotional grows the share count so the order notional clears the
// venue minimum. Orders already above it pass through unchanged.
func bumpToMinNotional(shares, price float64) float64 {
	if price <= 0 || shares*price >= domain.MinNotional {
		return shares
	}
	return domain.MinNotional / price
}

// worstCasePrice estimates the worst execution price for an intent at
// initiation. Passive orders rest at the estimate; aggressive orders pay
// up to a small pad over the ask.
func worstCasePrice(strategy domain.TradeStrategy, estPrice float64) float64 {
	if strategy == domain.StrategyAggressive {
		return math.Min(estPrice+aggressivePad, domain.MaxPriceTick)
	}
	return estPrice
}
