// Package order sizes orders to exchange lot rules and reduces fills into a single
// effective execution. All arithmetic is exact decimal.
package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"MomentumTrader/internal/model"
)

var (
	// ErrInvalidSizing is returned for non-positive sizing inputs.
	ErrInvalidSizing = errors.New("invalid sizing input")
	// ErrBelowMinQty is returned when the budget buys less than the exchange minimum.
	ErrBelowMinQty = errors.New("quantity below minimum")
)

// SizeQuantity returns floor(investment / (price*step)) * step: the largest multiple
// of step that investment can pay for at price. It never rounds up to reach minQty.
func SizeQuantity(investment, price, minQty, step decimal.Decimal) (decimal.Decimal, error) {
	if !investment.IsPositive() || !price.IsPositive() || !step.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: investment=%s price=%s step=%s", ErrInvalidSizing, investment, price, step)
	}
	lots, _ := investment.QuoRem(price.Mul(step), 0)
	qty := lots.Mul(step)
	if !qty.IsPositive() || qty.LessThan(minQty) {
		return decimal.Zero, fmt.Errorf("%w: %s < %s", ErrBelowMinQty, qty, minQty)
	}
	return qty, nil
}

// SizeForAsset sizes against the asset's lot filter and caps at its maximum quantity.
func SizeForAsset(asset *model.Asset, investment, price decimal.Decimal) (decimal.Decimal, error) {
	qty, err := SizeQuantity(investment, price, asset.MinQty, asset.StepSize)
	if err != nil {
		return decimal.Zero, err
	}
	return CapQuantity(qty, asset.MaxQty, asset.StepSize), nil
}

// CapQuantity clamps qty to max, flooring max to a multiple of step. A non-positive
// max means no cap.
func CapQuantity(qty, max, step decimal.Decimal) decimal.Decimal {
	if !max.IsPositive() || qty.LessThanOrEqual(max) {
		return qty
	}
	if !step.IsPositive() {
		return max
	}
	lots, _ := max.QuoRem(step, 0)
	return lots.Mul(step)
}

// SellQuantity is the quantity available to liquidate a BUY: commission paid in
// the base asset cannot be sold. Fees paid in other assets do not reduce it.
func SellQuantity(buy *model.Order) decimal.Decimal {
	return buy.Qty.Sub(buy.Commission)
}
