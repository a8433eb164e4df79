// Package calculator derives technical indicators from OHLCV bars.
package calculator

import (
	"github.com/markcheno/go-talib"

	"MomentumTrader/internal/model"
)

// Indicator periods used for the decision snapshot.
const (
	ROCPeriod  = 3
	RSIPeriod  = 14
	ATRPeriod  = 14
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
)

// Snapshot computes the latest value of every indicator. Series too short for an
// indicator leave that value at zero.
func Snapshot(bars []model.OHLCV) model.Indicators {
	var ind model.Indicators
	if len(bars) == 0 {
		return ind
	}
	highs, lows, closes, volumes := columns(bars)

	ind.ROC = ROC(closes, ROCPeriod)
	ind.RSI = RSI(closes, RSIPeriod)
	ind.ATR = ATR(highs, lows, closes, ATRPeriod)
	ind.OBV = last(talib.Obv(closes, volumes))
	ind.SMA7 = SMA(closes, 7)
	ind.SMA25 = SMA(closes, 25)
	if len(closes) >= MACDSlow+MACDSignal {
		_, _, hist := talib.Macd(closes, MACDFast, MACDSlow, MACDSignal)
		ind.MACDDiff = last(hist)
	}
	return ind
}

// ROC returns the latest rate of change in percent over period bars.
func ROC(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return 0
	}
	return last(talib.Roc(closes, period))
}

// RSI returns the latest Wilder RSI; 50 when there is not enough data.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return 50
	}
	return last(talib.Rsi(closes, period))
}

// ATR returns the latest average true range.
func ATR(highs, lows, closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return 0
	}
	return last(talib.Atr(highs, lows, closes, period))
}

// SMA returns the latest simple moving average.
func SMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	return last(talib.Sma(closes, period))
}

func columns(bars []model.OHLCV) (highs, lows, closes, volumes []float64) {
	n := len(bars)
	highs = make([]float64, n)
	lows = make([]float64, n)
	closes = make([]float64, n)
	volumes = make([]float64, n)
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
		volumes[i] = b.Volume
	}
	return
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
