package monitor

import (
	"time"

	"github.com/shopspring/decimal"

	"MomentumTrader/internal/model"
	"MomentumTrader/internal/order"
)

// Settle builds the closing record of pos sold by sell. Profits are truncated to
// eight places; the percentage difference is rounded half-to-even to two.
func Settle(pos Position, sell *model.Order, closedAt time.Time) *model.TradeSettlement {
	buy := pos.Buy
	diff := sell.Price.Sub(buy.Price)

	var relative, diffPct decimal.Decimal
	if buy.Price.IsPositive() {
		ratio := diff.DivRound(buy.Price, 16)
		relative = ratio.Truncate(order.PricePlaces)
		diffPct = ratio.Mul(decimal.NewFromInt(100)).RoundBank(2)
	}
	pps := diff.Truncate(order.PricePlaces)

	return &model.TradeSettlement{
		Symbol:         buy.Symbol,
		OpenedAt:       pos.OpenedAt,
		ClosedAt:       closedAt,
		Duration:       closedAt.Sub(pos.OpenedAt),
		BuyPrice:       buy.Price,
		BuyQty:         buy.Qty,
		SellPrice:      sell.Price,
		SellQty:        sell.Qty,
		Dust:           buy.Qty.Sub(sell.Qty),
		ProfitPerShare: pps,
		ProfitTotal:    pps.Mul(sell.Qty).Truncate(order.PricePlaces),
		ProfitRelative: relative,
		DiffPct:        diffPct,
		Win:            sell.Price.GreaterThan(buy.Price),
		Indicators:     pos.Indicators,
	}
}
