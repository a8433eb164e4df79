package monitor

import (
	"testing"
	"time"

	"MomentumTrader/internal/model"
)

func TestSettle(t *testing.T) {
	opened := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	closed := opened.Add(90 * time.Second)
	pos := Position{
		Buy:        buyAt("1.6455", "61", "0.061"),
		OpenedAt:   opened,
		Indicators: model.Indicators{ROC: 1.2, RSI: 61},
	}
	sell := &model.Order{Symbol: "LRCUSDT", Side: model.Sell, Price: d("1.6601"), Qty: d("60.939")}

	s := Settle(pos, sell, closed)
	checks := []struct {
		name string
		got  string
		want string
	}{
		{"pps", s.ProfitPerShare.String(), "0.0146"},
		{"total", s.ProfitTotal.String(), "0.88970940"},
		{"relative", s.ProfitRelative.String(), "0.00887268"},
		{"diff", s.DiffPct.String(), "0.89"},
		{"dust", s.Dust.String(), "0.061"},
	}
	for _, c := range checks {
		if !d(c.got).Equal(d(c.want)) {
			t.Errorf("%s: expected %s, got %s", c.name, c.want, c.got)
		}
	}
	if s.Duration != 90*time.Second || !s.Win || s.Indicators.RSI != 61 {
		t.Errorf("unexpected settlement %+v", s)
	}
}

func TestSettleWinIffSellAboveBuy(t *testing.T) {
	tests := []struct {
		buy, sell string
		win       bool
	}{
		{"100", "100.00000001", true},
		{"100", "100", false},
		{"100", "99.99999999", false},
		{"0.00001234", "0.00001235", true},
	}
	for _, tt := range tests {
		pos := Position{Buy: buyAt(tt.buy, "1", "0")}
		s := Settle(pos, &model.Order{Price: d(tt.sell), Qty: d("1")}, time.Now())
		if s.Win != tt.win {
			t.Errorf("buy %s sell %s: expected win=%v", tt.buy, tt.sell, tt.win)
		}
	}
}
