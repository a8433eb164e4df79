package exchange

import (
	"context"

	"MomentumTrader/internal/model"
	"MomentumTrader/internal/order"
)

// Executor places market orders and returns their fills.
type Executor interface {
	Submit(ctx context.Context, req order.Request) ([]model.Fill, error)
}
