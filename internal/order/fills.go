package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"MomentumTrader/internal/model"
)

// FillPolicy selects how the effective price of an order is derived from its fills.
type FillPolicy string

const (
	// PolicyMax takes the highest fill price. It biases both buy and sell prices
	// upward; kept for parity with the recorded trade history.
	PolicyMax FillPolicy = "max"
	// PolicyVWAP takes the volume-weighted average fill price.
	PolicyVWAP FillPolicy = "vwap"
	// PolicyLast takes the price of the final fill.
	PolicyLast FillPolicy = "last"
)

// PricePlaces is the precision effective prices are truncated to.
const PricePlaces = 8

var (
	ErrNoFills  = errors.New("order has no fills")
	ErrOverfill = errors.New("executed quantity exceeds requested quantity")
)

// ParseFillPolicy maps a config value to a FillPolicy; empty means PolicyMax.
func ParseFillPolicy(s string) (FillPolicy, error) {
	switch FillPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyMax:
		return PolicyMax, nil
	case PolicyVWAP:
		return PolicyVWAP, nil
	case PolicyLast:
		return PolicyLast, nil
	default:
		return "", fmt.Errorf("unknown fill policy %q", s)
	}
}

// Request describes what was asked of the exchange. BaseAsset and BasePrecision
// come from the symbol metadata; an empty BaseAsset counts every commission as
// paid in the base asset.
type Request struct {
	ID            string
	Symbol        string
	Side          model.Side
	Qty           decimal.Decimal
	RefPrice      decimal.Decimal
	BaseAsset     string
	BasePrecision int32
}

// Aggregate reduces fills into one effective Order.
func Aggregate(req Request, fills []model.Fill, policy FillPolicy) (*model.Order, error) {
	if len(fills) == 0 {
		return nil, fmt.Errorf("%s %s: %w", req.Side, req.Symbol, ErrNoFills)
	}

	qty := decimal.Zero
	commission := decimal.Zero
	notional := decimal.Zero
	maxPrice := fills[0].Price
	var otherFees map[string]decimal.Decimal
	for _, f := range fills {
		qty = qty.Add(f.Qty)
		if req.BaseAsset == "" || f.CommissionAsset == "" || f.CommissionAsset == req.BaseAsset {
			commission = commission.Add(f.Commission)
		} else if !f.Commission.IsZero() {
			if otherFees == nil {
				otherFees = make(map[string]decimal.Decimal)
			}
			otherFees[f.CommissionAsset] = otherFees[f.CommissionAsset].Add(f.Commission)
		}
		notional = notional.Add(f.Price.Mul(f.Qty))
		if f.Price.GreaterThan(maxPrice) {
			maxPrice = f.Price
		}
	}
	if qty.GreaterThan(req.Qty) {
		return nil, fmt.Errorf("%s %s: %w (%s > %s)", req.Side, req.Symbol, ErrOverfill, qty, req.Qty)
	}

	var price decimal.Decimal
	switch policy {
	case PolicyVWAP:
		if !qty.IsPositive() {
			return nil, fmt.Errorf("%s %s: %w", req.Side, req.Symbol, ErrNoFills)
		}
		price = notional.DivRound(qty, PricePlaces+8)
	case PolicyLast:
		price = fills[len(fills)-1].Price
	default:
		price = maxPrice
	}
	price = price.Truncate(PricePlaces)

	copied := make([]model.Fill, len(fills))
	copy(copied, fills)
	return &model.Order{
		ID:           req.ID,
		Symbol:       req.Symbol,
		Side:         req.Side,
		RequestedQty: req.Qty,
		RefPrice:     req.RefPrice,
		Fills:        copied,
		Price:        price,
		Qty:          qty,
		Commission:   commission,
		OtherFees:    otherFees,
		Slippage:     price.Sub(req.RefPrice),
		CreatedAt:    time.Now(),
	}, nil
}
