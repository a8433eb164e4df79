package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"MomentumTrader/internal/calculator"
	"MomentumTrader/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Symbols []string
	Assets  map[string]model.Asset
	Bars    map[string][]model.OHLCV
	Price   decimal.Decimal
	Err     error
}

func (m *MockFetcher) ListTradableSymbols(_ context.Context, _ string) ([]string, error) {
	return m.Symbols, m.Err
}

func (m *MockFetcher) SymbolMeta(_ context.Context, symbol string) (model.Asset, error) {
	if m.Err != nil {
		return model.Asset{}, m.Err
	}
	a, ok := m.Assets[symbol]
	if !ok {
		return model.Asset{}, fmt.Errorf("symbol %s not listed", symbol)
	}
	return a, nil
}

func (m *MockFetcher) Klines(_ context.Context, symbol, _ string, limit int) ([]model.OHLCV, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if bars, ok := m.Bars[symbol]; ok {
		return bars, nil
	}
	p, _ := m.Price.Float64()
	return generateMockBars(p, limit), nil
}

func (m *MockFetcher) RecentPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	return m.Price, m.Err
}

func generateMockBars(basePrice float64, count int) []model.OHLCV {
	bars := make([]model.OHLCV, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.OHLCV{
			Time:   time.Now().Add(-time.Duration(count-i) * time.Minute),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}

// Collector assembles selector inputs from exchange metadata, persisted prices and
// indicator computation.
type Collector struct {
	Fetcher  Fetcher
	Prices   PriceSource
	Quote    string
	Window   time.Duration
	Lookback time.Duration
	Interval string

	now func() time.Time
	log zerolog.Logger
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, prices PriceSource, quote string, window, lookback time.Duration, interval string, log zerolog.Logger) *Collector {
	return &Collector{
		Fetcher:  fetcher,
		Prices:   prices,
		Quote:    quote,
		Window:   window,
		Lookback: lookback,
		Interval: interval,
		now:      time.Now,
		log:      log.With().Str("component", "collector").Logger(),
	}
}

// Candidates returns every tradable symbol with its price window, in exchange
// order. Symbols without persisted prices in the window are skipped.
func (c *Collector) Candidates(ctx context.Context) ([]model.SymbolCandidate, error) {
	all, err := c.Fetcher.ListTradableSymbols(ctx, c.Quote)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	symbols := Tradable(all, c.Quote)
	since := c.now().Add(-c.Window)

	out := make([]model.SymbolCandidate, 0, len(symbols))
	for _, s := range symbols {
		points, err := c.Prices.RecentPrices(ctx, s, since)
		if err != nil {
			return nil, fmt.Errorf("recent prices %s: %w", s, err)
		}
		if len(points) == 0 {
			continue
		}
		prices := make([]decimal.Decimal, len(points))
		for i, p := range points {
			prices[i] = p.Price
		}
		out = append(out, model.SymbolCandidate{Symbol: s, Prices: prices})
	}
	c.log.Debug().Int("listed", len(all)).Int("tradable", len(symbols)).Int("with_prices", len(out)).Msg("candidates collected")
	return out, nil
}

// Inspect fetches the asset metadata and the indicator snapshot for symbol.
func (c *Collector) Inspect(ctx context.Context, symbol string) (model.Inspection, error) {
	asset, err := c.Fetcher.SymbolMeta(ctx, symbol)
	if err != nil {
		return model.Inspection{}, fmt.Errorf("fetch meta: %w", err)
	}
	bars, err := c.Fetcher.Klines(ctx, symbol, c.Interval, klineLimit(c.Lookback, c.Interval))
	if err != nil {
		return model.Inspection{}, fmt.Errorf("fetch klines: %w", err)
	}
	ind := calculator.Snapshot(bars)
	if len(bars) <= calculator.ROCPeriod {
		c.log.Warn().Str("symbol", symbol).Int("bars", len(bars)).Msg("short kline history, indicators incomplete")
	}
	return model.Inspection{Asset: asset, Indicators: ind}, nil
}

// klineLimit converts a lookback duration into a bar count for interval.
// Intervals that do not parse as a duration (such as "1d") fall back to 60 bars.
func klineLimit(lookback time.Duration, interval string) int {
	step, err := time.ParseDuration(interval)
	if err != nil || step <= 0 {
		return 60
	}
	n := int(lookback / step)
	switch {
	case n < calculator.ROCPeriod+1:
		return calculator.ROCPeriod + 1
	case n > 1000:
		return 1000
	}
	return n
}
