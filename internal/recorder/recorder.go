package recorder

import (
	"context"
	"time"

	"MomentumTrader/internal/model"
)

// Recorder persists settlements and the per-symbol price frames.
type Recorder interface {
	RecordTrade(ctx context.Context, trade *model.TradeSettlement) error
	RecentTrades(ctx context.Context, limit int) ([]model.TradeSettlement, error)
	AppendPrices(ctx context.Context, ticks []model.Tick) error
	RecentPrices(ctx context.Context, symbol string, since time.Time) ([]model.PricePoint, error)
	PrunePrices(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
