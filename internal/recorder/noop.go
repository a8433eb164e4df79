package recorder

import (
	"context"
	"time"

	"MomentumTrader/internal/model"
)

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordTrade(_ context.Context, _ *model.TradeSettlement) error { return nil }
func (n *NoopRecorder) RecentTrades(_ context.Context, _ int) ([]model.TradeSettlement, error) {
	return nil, nil
}
func (n *NoopRecorder) AppendPrices(_ context.Context, _ []model.Tick) error { return nil }
func (n *NoopRecorder) RecentPrices(_ context.Context, _ string, _ time.Time) ([]model.PricePoint, error) {
	return nil, nil
}
func (n *NoopRecorder) PrunePrices(_ context.Context, _ time.Time) (int64, error) { return 0, nil }
func (n *NoopRecorder) Close() error                                               { return nil }
