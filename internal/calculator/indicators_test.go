package calculator

import (
	"math"
	"testing"
	"time"

	"MomentumTrader/internal/model"
)

func rising(n int, start, step float64) []model.OHLCV {
	bars := make([]model.OHLCV, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		p := start + float64(i)*step
		bars[i] = model.OHLCV{
			Time:   now.Add(time.Duration(i-n) * time.Minute),
			Open:   p - step/2,
			High:   p + step,
			Low:    p - step,
			Close:  p,
			Volume: 10,
		}
	}
	return bars
}

func TestROC(t *testing.T) {
	got := ROC([]float64{100, 101, 102, 103}, 3)
	if math.Abs(got-3) > 1e-9 {
		t.Fatalf("expected ROC 3, got %f", got)
	}
	if got := ROC([]float64{100, 101}, 3); got != 0 {
		t.Fatalf("expected 0 for short series, got %f", got)
	}
}

func TestSnapshotRisingMarket(t *testing.T) {
	ind := Snapshot(rising(60, 100, 0.5))
	if ind.ROC <= 0 {
		t.Errorf("expected positive ROC, got %f", ind.ROC)
	}
	if math.Abs(ind.RSI-100) > 1e-6 {
		t.Errorf("expected RSI 100 for monotonic gains, got %f", ind.RSI)
	}
	if ind.ATR <= 0 {
		t.Errorf("expected positive ATR, got %f", ind.ATR)
	}
	if ind.OBV <= 0 {
		t.Errorf("expected positive OBV, got %f", ind.OBV)
	}
	if ind.SMA7 <= ind.SMA25 {
		t.Errorf("expected SMA7 > SMA25 in a rising market, got %f <= %f", ind.SMA7, ind.SMA25)
	}
}

func TestSnapshotShortSeries(t *testing.T) {
	if ind := Snapshot(nil); ind != (model.Indicators{}) {
		t.Fatalf("expected zero snapshot for no bars, got %+v", ind)
	}
	ind := Snapshot(rising(2, 100, 1))
	if ind.RSI != 50 {
		t.Errorf("expected RSI default 50, got %f", ind.RSI)
	}
	if ind.ROC != 0 || ind.ATR != 0 || ind.SMA7 != 0 || ind.MACDDiff != 0 {
		t.Errorf("expected zero values for short series, got %+v", ind)
	}
}

func TestSMA(t *testing.T) {
	if got := SMA([]float64{1, 2, 3, 4, 5, 6, 7}, 7); math.Abs(got-4) > 1e-9 {
		t.Fatalf("expected 4, got %f", got)
	}
}
