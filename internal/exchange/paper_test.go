package exchange

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"MomentumTrader/internal/model"
	"MomentumTrader/internal/order"
)

func TestPaperExecutorBuy(t *testing.T) {
	p := NewPaperExecutor("USDT", 0.1, 8, zerolog.Nop())
	fills, err := p.Submit(context.Background(), order.Request{Symbol: "LRCUSDT", Side: model.Buy, Qty: d("100"), RefPrice: d("1.5")})
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(fills))
	}
	want := []struct{ qty, fee string }{{"75", "0.075"}, {"25", "0.025"}}
	for i, w := range want {
		if !fills[i].Qty.Equal(d(w.qty)) || !fills[i].Commission.Equal(d(w.fee)) {
			t.Errorf("fill %d: expected %s/%s, got %s/%s", i, w.qty, w.fee, fills[i].Qty, fills[i].Commission)
		}
		if fills[i].CommissionAsset != "LRC" {
			t.Errorf("fill %d: expected base commission asset, got %s", i, fills[i].CommissionAsset)
		}
		if !fills[i].Price.Equal(d("1.5")) {
			t.Errorf("fill %d: expected reference price, got %s", i, fills[i].Price)
		}
	}

	o, err := order.Aggregate(order.Request{Symbol: "LRCUSDT", Side: model.Buy, Qty: d("100"), RefPrice: d("1.5")}, fills, order.PolicyMax)
	if err != nil {
		t.Fatal(err)
	}
	if !order.SellQuantity(o).Equal(d("99.9")) {
		t.Errorf("expected sell qty 99.9, got %s", order.SellQuantity(o))
	}
}

func TestPaperExecutorSellChargesQuote(t *testing.T) {
	p := NewPaperExecutor("USDT", 0.1, 8, zerolog.Nop())
	fills, err := p.Submit(context.Background(), order.Request{Symbol: "LRCUSDT", Side: model.Sell, Qty: d("40"), RefPrice: d("2")})
	if err != nil {
		t.Fatal(err)
	}
	if fills[0].CommissionAsset != "USDT" || !fills[0].Commission.Equal(d("0.06")) {
		t.Errorf("unexpected sell fill %+v", fills[0])
	}
}

func TestPaperExecutorRejectsZeroQty(t *testing.T) {
	p := NewPaperExecutor("USDT", 0.1, 8, zerolog.Nop())
	if _, err := p.Submit(context.Background(), order.Request{Symbol: "LRCUSDT", Side: model.Buy, RefPrice: d("1")}); err == nil {
		t.Error("expected error for zero quantity")
	}
}

func TestPaperExecutorRoundsToBasePrecision(t *testing.T) {
	p := NewPaperExecutor("USDT", 0.1, 8, zerolog.Nop())
	req := order.Request{Symbol: "LRCUSDT", Side: model.Buy, Qty: d("61"), RefPrice: d("1.5"), BaseAsset: "LRC", BasePrecision: 2}
	fills, err := p.Submit(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	// 45.75 and 15.25 at 0.1% are 0.04575 and 0.01525
	want := []string{"0.05", "0.02"}
	for i, w := range want {
		if !fills[i].Commission.Equal(d(w)) {
			t.Errorf("fill %d: expected commission %s, got %s", i, w, fills[i].Commission)
		}
	}
}
