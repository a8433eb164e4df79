package collector

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"MomentumTrader/internal/model"
)

// Fetcher defines the interface for fetching exchange market data.
type Fetcher interface {
	ListTradableSymbols(ctx context.Context, quote string) ([]string, error)
	SymbolMeta(ctx context.Context, symbol string) (model.Asset, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]model.OHLCV, error)
	RecentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// PriceSource serves the recent trade prices persisted by the stream ingester.
type PriceSource interface {
	RecentPrices(ctx context.Context, symbol string, since time.Time) ([]model.PricePoint, error)
}

var leveragedMarkers = []string{"UP", "DOWN", "BULL", "BEAR"}

// Leveraged reports whether symbol looks like a leveraged token.
func Leveraged(symbol string) bool {
	for _, m := range leveragedMarkers {
		if strings.Contains(symbol, m) {
			return true
		}
	}
	return false
}

// Tradable keeps the symbols quoted in quote that are not leveraged tokens,
// preserving order. The base part alone is checked for leveraged markers so a
// quote such as "BUSD" never disqualifies a pair.
func Tradable(symbols []string, quote string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		base, ok := strings.CutSuffix(s, quote)
		if !ok || base == "" || Leveraged(base) {
			continue
		}
		out = append(out, s)
	}
	return out
}
