package domain

import "time"

// JournalEntry is one persisted order attempt: the intent that was
// submitted and the terminal result the venue reported. Failed attempts are
// journaled too so the history endpoint shows every submission.
type JournalEntry struct {
	ID           string
	IntentID     string
	Source       string
	Strategy     TradeStrategy
	Side         OrderSide
	OutcomeIndex int
	TokenID      string
	LimitPrice   float64
	WorstCase    float64
	Shares       float64
	EstCost      float64

	Success    bool
	OrderID    string
	FillPrice  float64
	FillShares float64
	Gasless    bool
	TxHash     string
	Message    string

	CreatedAt time.Time
}
