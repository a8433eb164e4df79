// Package engine runs one trading cycle: select, commit, buy, monitor, settle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"MomentumTrader/internal/exchange"
	"MomentumTrader/internal/ipc"
	"MomentumTrader/internal/metrics"
	"MomentumTrader/internal/model"
	"MomentumTrader/internal/monitor"
	"MomentumTrader/internal/notifier"
	"MomentumTrader/internal/order"
	"MomentumTrader/internal/strategy"
)

// Outcome classifies how a cycle ended.
type Outcome string

const (
	OutcomeClosed         Outcome = "closed"
	OutcomeNoOpportunity  Outcome = "no_opportunity"
	OutcomeAlreadyRunning Outcome = "already_running"
	OutcomePaused         Outcome = "paused"
	OutcomeSizingFailed   Outcome = "sizing_failed"
	OutcomeFailed         Outcome = "failed"
)

// Result describes a finished cycle.
type Result struct {
	Outcome    Outcome
	Selection  *strategy.Selection
	Buy        *model.Order
	Settlement *model.TradeSettlement
}

// Signals is the signal store as seen by a cycle.
type Signals interface {
	TrySet(name string) (bool, error)
	Clear(name string) error
	IsSet(name string) bool
}

// CandidateSource lists symbols with their recent price windows.
type CandidateSource interface {
	Candidates(ctx context.Context) ([]model.SymbolCandidate, error)
}

// Selector picks at most one candidate.
type Selector interface {
	Select(ctx context.Context, candidates []model.SymbolCandidate) (*strategy.Selection, error)
}

// PriceSource returns the last traded price of a symbol.
type PriceSource interface {
	RecentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// TradeSink stores closed trades.
type TradeSink interface {
	RecordTrade(ctx context.Context, trade *model.TradeSettlement) error
}

// TickSource opens the live tick feed of one symbol. The feed ends when ctx does.
type TickSource func(ctx context.Context, symbol string) <-chan model.Tick

// Cycle wires the collaborators of one trading cycle.
type Cycle struct {
	Signals    Signals
	Candidates CandidateSource
	Selector   Selector
	Prices     PriceSource
	Executor   exchange.Executor
	Ticks      TickSource
	Trades     TradeSink
	Notifier   notifier.Notifier
	Journal    *monitor.Journal

	Investment decimal.Decimal
	Monitor    monitor.Config
	Report     notifier.ReportContext

	Now func() time.Time
	Log zerolog.Logger
}

// Run executes the cycle. A nil error with a non-closed outcome is a normal end
// without a trade. Errors wrapping monitor.ErrUnsoldPosition are fatal.
func (c *Cycle) Run(ctx context.Context) (res Result, err error) {
	defer func() {
		out := res.Outcome
		if err != nil {
			out = OutcomeFailed
		}
		metrics.CyclesTotal.WithLabelValues(string(out)).Inc()
	}()

	if c.Signals.IsSet(ipc.IsPaused) {
		c.Log.Info().Msg("paused, skipping cycle")
		return Result{Outcome: OutcomePaused}, nil
	}
	if c.Signals.IsSet(ipc.IsRunning) {
		c.Log.Info().Msg("position already running, skipping cycle")
		return Result{Outcome: OutcomeAlreadyRunning}, nil
	}

	candidates, err := c.Candidates.Candidates(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("collect candidates: %w", err)
	}
	sel, err := c.Selector.Select(ctx, candidates)
	if err != nil {
		return Result{}, fmt.Errorf("select: %w", err)
	}
	if sel == nil {
		c.Log.Info().Int("candidates", len(candidates)).Msg("no opportunity")
		return Result{Outcome: OutcomeNoOpportunity}, nil
	}

	won, err := c.Signals.TrySet(ipc.IsRunning)
	if err != nil {
		if won {
			if cerr := c.Signals.Clear(ipc.IsRunning); cerr != nil {
				c.Log.Error().Err(cerr).Msg("failed to release running signal after commit error")
			}
		}
		return Result{Selection: sel}, fmt.Errorf("commit running signal: %w", err)
	}
	if !won {
		c.Log.Info().Str("symbol", sel.Symbol).Msg("another cycle committed first, discarding selection")
		return Result{Outcome: OutcomeAlreadyRunning, Selection: sel}, nil
	}

	res, err = c.trade(ctx, sel)
	return res, err
}

// trade runs with the running signal held. Every path that ends before the
// monitor takes over releases it.
func (c *Cycle) trade(ctx context.Context, sel *strategy.Selection) (Result, error) {
	res := Result{Selection: sel}
	release := func() {
		if err := c.Signals.Clear(ipc.IsRunning); err != nil {
			c.Log.Error().Err(err).Msg("failed to clear running signal")
		}
	}

	price, err := c.Prices.RecentPrice(ctx, sel.Symbol)
	if err != nil {
		release()
		return res, fmt.Errorf("recent price: %w", err)
	}
	qty, err := order.SizeForAsset(&sel.Asset, c.Investment, price)
	if err != nil {
		release()
		if errors.Is(err, order.ErrBelowMinQty) || errors.Is(err, order.ErrInvalidSizing) {
			c.Log.Warn().Err(err).Str("symbol", sel.Symbol).Str("price", price.String()).Msg("sizing failed, no trade")
			res.Outcome = OutcomeSizingFailed
			return res, nil
		}
		return res, err
	}

	req := order.Request{
		ID:            uuid.NewString(),
		Symbol:        sel.Symbol,
		Side:          model.Buy,
		Qty:           qty,
		RefPrice:      price,
		BaseAsset:     sel.Asset.Base,
		BasePrecision: sel.Asset.BasePrecision,
	}
	fills, err := c.Executor.Submit(ctx, req)
	if err != nil {
		release()
		return res, fmt.Errorf("buy: %w", err)
	}
	buy, err := order.Aggregate(req, fills, c.Monitor.FillPolicy)
	if err != nil {
		release()
		return res, fmt.Errorf("buy fills: %w", err)
	}
	res.Buy = buy
	openedAt := c.now()
	c.Log.Info().Str("symbol", buy.Symbol).Str("price", buy.Price.String()).Str("qty", buy.Qty.String()).
		Str("commission", buy.Commission.String()).Str("slippage", buy.Slippage.String()).Msg("position opened")
	for asset, fee := range buy.OtherFees {
		c.Log.Warn().Str("symbol", buy.Symbol).Str("asset", asset).Str("fee", fee.String()).
			Msg("commission paid outside the base asset, not deducted from the sell quantity")
	}

	var opts []monitor.Option
	if c.Journal != nil {
		opts = append(opts, monitor.WithJournal(c.Journal))
	}
	pos := monitor.Position{Buy: buy, Asset: sel.Asset, Indicators: sel.Indicators, OpenedAt: openedAt}
	mon := monitor.New(c.Monitor, pos, c.Signals, c.Executor, c.Log, opts...)

	c.notify(ctx, notifier.FormatOpened(buy, mon.Bounds().TargetProfit, mon.Bounds().StopLoss, c.Report))

	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	settlement, err := mon.Run(ctx, c.Ticks(feedCtx, buy.Symbol))
	if err != nil {
		return res, err
	}
	stopFeed()
	res.Settlement = settlement
	res.Outcome = OutcomeClosed

	pctx := context.WithoutCancel(ctx)
	if c.Trades != nil {
		if err := c.Trades.RecordTrade(pctx, settlement); err != nil {
			c.Log.Error().Err(err).Msg("failed to record trade")
		}
	}
	c.notify(pctx, notifier.FormatSettlement(settlement, c.Report))
	return res, nil
}

func (c *Cycle) notify(ctx context.Context, text string) {
	if c.Notifier == nil {
		return
	}
	if err := c.Notifier.Notify(ctx, text); err != nil {
		c.Log.Warn().Err(err).Msg("notification failed")
	}
}

func (c *Cycle) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
