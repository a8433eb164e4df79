package model

// Indicators holds the latest value of each technical indicator for a symbol.
type Indicators struct {
	ROC      float64
	RSI      float64
	ATR      float64
	OBV      float64
	SMA7     float64
	SMA25    float64
	MACDDiff float64
}
