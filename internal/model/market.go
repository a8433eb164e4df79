package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OHLCV represents a single candlestick bar. Indicator math runs on float64;
// prices that feed orders never come from here.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Tick is one trade event from the live feed.
type Tick struct {
	Time   time.Time
	Symbol string
	Price  decimal.Decimal
}

// PricePoint is one stored trade price of a symbol.
type PricePoint struct {
	Time  time.Time
	Price decimal.Decimal
}
