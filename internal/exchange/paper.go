package exchange

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"MomentumTrader/internal/metrics"
	"MomentumTrader/internal/model"
	"MomentumTrader/internal/order"
)

// PaperExecutor fills orders locally at the reference price. Each order is split
// into two fills of 75% and 25% of the quantity; BUY commission is charged in the
// base asset, SELL commission in the quote asset.
type PaperExecutor struct {
	quote     string
	feePct    decimal.Decimal
	precision int32
	log       zerolog.Logger
}

// NewPaperExecutor creates a simulator charging feePct percent per fill. BUY
// commissions are rounded to the request's base precision, falling back to
// precision, which also rounds SELL commissions.
func NewPaperExecutor(quote string, feePct float64, precision int32, log zerolog.Logger) *PaperExecutor {
	if precision <= 0 {
		precision = 8
	}
	return &PaperExecutor{
		quote:     quote,
		feePct:    decimal.NewFromFloat(feePct),
		precision: precision,
		log:       log.With().Str("component", "paper").Logger(),
	}
}

// Submit simulates a market order.
func (p *PaperExecutor) Submit(_ context.Context, req order.Request) ([]model.Fill, error) {
	if !req.Qty.IsPositive() {
		return nil, errors.New("quantity must be positive")
	}
	if !req.RefPrice.IsPositive() {
		return nil, errors.New("price must be positive")
	}
	metrics.OrdersTotal.WithLabelValues(req.Symbol, string(req.Side)).Inc()

	second := req.Qty.Div(decimal.NewFromInt(4))
	first := req.Qty.Sub(second)

	fills := make([]model.Fill, 0, 2)
	for _, qty := range []decimal.Decimal{first, second} {
		fills = append(fills, p.fill(req, qty))
	}
	p.log.Info().Str("symbol", req.Symbol).Str("side", string(req.Side)).
		Str("qty", req.Qty.String()).Str("price", req.RefPrice.String()).Msg("paper order filled")
	return fills, nil
}

func (p *PaperExecutor) fill(req order.Request, qty decimal.Decimal) model.Fill {
	hundred := decimal.NewFromInt(100)
	f := model.Fill{Price: req.RefPrice, Qty: qty}
	if req.Side == model.Buy {
		places := p.precision
		if req.BasePrecision > 0 {
			places = req.BasePrecision
		}
		f.Commission = qty.Div(hundred).Mul(p.feePct).Round(places)
		f.CommissionAsset = req.BaseAsset
		if f.CommissionAsset == "" {
			f.CommissionAsset = strings.TrimSuffix(req.Symbol, p.quote)
		}
	} else {
		f.Commission = qty.Mul(req.RefPrice).Div(hundred).Mul(p.feePct).Round(p.precision)
		f.CommissionAsset = p.quote
	}
	return f
}
