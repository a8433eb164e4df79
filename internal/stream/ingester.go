package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"MomentumTrader/internal/metrics"
	"MomentumTrader/internal/model"
)

// Sink stores price rows.
type Sink interface {
	AppendPrices(ctx context.Context, ticks []model.Tick) error
	PrunePrices(ctx context.Context, before time.Time) (int64, error)
}

// Ingester batches ticks into a Sink.
type Ingester struct {
	Sink          Sink
	FlushInterval time.Duration
	BatchSize     int
	Retention     time.Duration

	now func() time.Time
	log zerolog.Logger
}

// NewIngester creates an Ingester flushing every flushInterval or batchSize rows.
func NewIngester(sink Sink, flushInterval time.Duration, batchSize int, retention time.Duration, log zerolog.Logger) *Ingester {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Ingester{
		Sink:          sink,
		FlushInterval: flushInterval,
		BatchSize:     batchSize,
		Retention:     retention,
		now:           time.Now,
		log:           log.With().Str("component", "ingester").Logger(),
	}
}

// Run consumes ticks until the channel closes or ctx is done. Buffered rows
// are flushed before returning.
func (in *Ingester) Run(ctx context.Context, ticks <-chan model.Tick) error {
	ticker := time.NewTicker(in.FlushInterval)
	defer ticker.Stop()

	batch := make([]model.Tick, 0, in.BatchSize)
	flush := func(ctx context.Context) error {
		if len(batch) == 0 {
			return nil
		}
		if err := in.Sink.AppendPrices(ctx, batch); err != nil {
			return fmt.Errorf("append %d prices: %w", len(batch), err)
		}
		metrics.IngestedRowsTotal.Add(float64(len(batch)))
		batch = batch[:0]
		return nil
	}
	final := func() error {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return flush(fctx)
	}

	for {
		select {
		case <-ctx.Done():
			if err := final(); err != nil {
				in.log.Error().Err(err).Msg("final flush failed")
			}
			return ctx.Err()
		case t, ok := <-ticks:
			if !ok {
				return final()
			}
			batch = append(batch, t)
			if len(batch) >= in.BatchSize {
				if err := flush(ctx); err != nil {
					in.log.Error().Err(err).Msg("flush failed, dropping batch")
					batch = batch[:0]
				}
			}
		case <-ticker.C:
			if err := flush(ctx); err != nil {
				in.log.Error().Err(err).Msg("flush failed, dropping batch")
				batch = batch[:0]
			}
		}
	}
}

// Prune drops rows older than the retention window.
func (in *Ingester) Prune(ctx context.Context) error {
	n, err := in.Sink.PrunePrices(ctx, in.now().Add(-in.Retention))
	if err != nil {
		return fmt.Errorf("prune prices: %w", err)
	}
	in.log.Info().Int64("rows", n).Dur("retention", in.Retention).Msg("pruned price history")
	return nil
}
