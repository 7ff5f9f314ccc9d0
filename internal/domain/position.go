package domain

import "time"

// Position is an open holding as reported by the venue's data API. The
// engine treats positions as read/refresh-only; they are never created
// locally.
type Position struct {
	ConditionID string
	AssetID     string // tradable token id; may be empty for unmapped positions
	Title       string
	Outcome     string
	Size        float64
	AvgPrice    float64
	CurPrice    float64
	EndDate     time.Time
	Redeemable  bool // market resolved, winnings claimable
	Live        bool // CurPrice came from a live book read, not the data API
}

// PercentPnL returns (cur-avg)/avg, zero when avgPrice is not positive.
func (p Position) PercentPnL() float64 {
	if p.AvgPrice <= 0 {
		return 0
	}
	return (p.CurPrice - p.AvgPrice) / p.AvgPrice
}

// CashPnL returns the unrealized dollar P&L of the position.
func (p Position) CashPnL() float64 {
	if p.AvgPrice <= 0 {
		return 0
	}
	return (p.CurPrice - p.AvgPrice) * p.Size
}
