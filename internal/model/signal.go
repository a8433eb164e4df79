package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SymbolCandidate is one entry of a momentum ranking pass.
type SymbolCandidate struct {
	Symbol           string
	Prices           []decimal.Decimal
	CumulativeReturn decimal.Decimal
}

// TradeState is the outcome of a closed trade.
type TradeState string

const (
	TradeWon  TradeState = "WON"
	TradeLost TradeState = "LOST"
)

// TradeSettlement is the closing record of one position. It is immutable once built.
type TradeSettlement struct {
	Symbol         string
	OpenedAt       time.Time
	ClosedAt       time.Time
	Duration       time.Duration
	BuyPrice       decimal.Decimal
	BuyQty         decimal.Decimal
	SellPrice      decimal.Decimal
	SellQty        decimal.Decimal
	Dust           decimal.Decimal
	ProfitPerShare decimal.Decimal
	ProfitTotal    decimal.Decimal
	ProfitRelative decimal.Decimal
	DiffPct        decimal.Decimal
	Win            bool
	Indicators     Indicators
}

// State reports WON or LOST.
func (t *TradeSettlement) State() TradeState {
	if t.Win {
		return TradeWon
	}
	return TradeLost
}
