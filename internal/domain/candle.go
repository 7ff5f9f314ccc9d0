package domain

import "time"

// ReferencePrice is the latest underlying asset price from the reference
// feed, with the transport that delivered it.
type ReferencePrice struct {
	Symbol    string
	Value     float64
	Timestamp time.Time
	Source    PriceSource
}

// PriceSource tells which transport a reference price came over.
type PriceSource string

const (
	SourceStream PriceSource = "stream"
	SourcePoll   PriceSource = "poll"
	SourceSeed   PriceSource = "seed"
)

// Candle is one OHLC bar of the underlying asset, used to pre-seed the
// reference series before live data arrives.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}
