package model

import "github.com/shopspring/decimal"

// Asset is the exchange metadata of a tradable symbol, fetched once per cycle.
type Asset struct {
	Symbol         string
	Base           string
	Quote          string
	BasePrecision  int32
	QuotePrecision int32
	MinQty         decimal.Decimal
	MaxQty         decimal.Decimal
	StepSize       decimal.Decimal
	SpotAllowed    bool
	MarginAllowed  bool
	Permissions    []string
}

// Inspection is what the selector learns about one candidate before buying it.
type Inspection struct {
	Asset      Asset
	Indicators Indicators
}
