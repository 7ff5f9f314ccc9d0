package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// TradeStrategy selects between resting at the best bid and crossing the
// spread at the best ask.
type TradeStrategy string

const (
	// StrategyPassive rests a limit order at the best bid (maker).
	StrategyPassive TradeStrategy = "PASSIVE"
	// StrategyAggressive crosses the spread at the best ask (taker).
	StrategyAggressive TradeStrategy = "AGGRESSIVE"
)

// OrderState is the lifecycle of the single in-flight order per session.
type OrderState string

const (
	OrderStateIdle       OrderState = "IDLE"
	OrderStateSubmitting OrderState = "SUBMITTING"
	OrderStateOpen       OrderState = "OPEN"
	OrderStateFilled     OrderState = "FILLED"
	OrderStateCancelled  OrderState = "CANCELLED"
)

// TradeIntent is an immutable request to trade, created by manual initiation
// or by a trigger firing, and consumed exactly once by the coordinator.
type TradeIntent struct {
	ID             string
	Strategy       TradeStrategy
	Side           OrderSide
	OutcomeIndex   int
	TokenID        string
	Price          float64 // estimated execution price
	WorstCasePrice float64 // hard limit after slippage budget
	Shares         float64
	EstCost        float64
	Source         string // "manual", "trigger", "auto_sell"
	CreatedAt      time.Time
}

// OrderResult is the terminal outcome of one intent.
type OrderResult struct {
	Success   bool
	OrderID   string
	Price     float64
	Shares    float64
	Side      OrderSide
	Gasless   bool
	Message   string // venue's raw error text on failure
	TxHash    string // approval/settlement hash when gasless
	Timestamp time.Time
}

const (
	// MinPriceTick and MaxPriceTick are the venue's legal price range.
	MinPriceTick = 0.01
	MaxPriceTick = 0.99

	// MinNotional is the venue's minimum order notional in dollars. Orders
	// under it are bumped up, never rejected silently.
	MinNotional = 1.0001
)

// ClampPrice forces p into the venue's legal [0.01, 0.99] range.
func ClampPrice(p float64) float64 {
	if p > MaxPriceTick {
		return MaxPriceTick
	}
	if p < MinPriceTick {
		return MinPriceTick
	}
	return p
}
