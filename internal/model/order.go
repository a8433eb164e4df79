package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Fill is one partial execution of an order.
type Fill struct {
	Price           decimal.Decimal
	Qty             decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
}

// Order is a submitted order reduced to its effective execution.
type Order struct {
	ID           string
	Symbol       string
	Side         Side
	RequestedQty decimal.Decimal
	RefPrice     decimal.Decimal
	Fills        []Fill

	Price      decimal.Decimal // effective price per the fill policy
	Qty        decimal.Decimal // sum of executed quantity
	Commission decimal.Decimal // sum of fill commissions paid in the base asset
	Slippage   decimal.Decimal
	// OtherFees holds commissions paid in any other asset, keyed by asset.
	OtherFees map[string]decimal.Decimal
	CreatedAt  time.Time
}
