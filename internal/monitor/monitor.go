// Package monitor runs the trailing take-profit / stop-loss state machine of
// one open position.
package monitor

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
	"MomentumTrader/internal/model"
	"MomentumTrader/internal/order"
)

var (
	// ErrUnsoldPosition means the exchange still holds the bought quantity: the
	// closing SELL failed or monitoring stopped before a close. It is not retried.
	ErrUnsoldPosition = errors.New("position left open on the exchange")
	// ErrFeedClosed means the tick source ended while the position was open.
	ErrFeedClosed = errors.New("tick feed closed with position open")
)

// State is the monitor lifecycle.
type State int

const (
	AwaitingTick State = iota
	Evaluating
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingTick:
		return "AWAITING_TICK"
	case Evaluating:
		return "EVALUATING"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config holds the exit percentages.
type Config struct {
	TargetProfitPct decimal.Decimal
	StopLossPct     decimal.Decimal
	BreakEvenPct    decimal.Decimal
	TrailingPct     decimal.Decimal
	FillPolicy      order.FillPolicy
}

// NewConfig converts percentages from configuration.
func NewConfig(targetProfitPct, stopLossPct, breakEvenPct, trailingPct float64, policy order.FillPolicy) Config {
	return Config{
		TargetProfitPct: decimal.NewFromFloat(targetProfitPct),
		StopLossPct:     decimal.NewFromFloat(stopLossPct),
		BreakEvenPct:    decimal.NewFromFloat(breakEvenPct),
		TrailingPct:     decimal.NewFromFloat(trailingPct),
		FillPolicy:      policy,
	}
}

// Position is the open trade handed over by the buy step.
type Position struct {
	Buy        *model.Order
	Asset      model.Asset
	Indicators model.Indicators
	OpenedAt   time.Time
}

// Levels are the current exit bounds.
type Levels struct {
	TargetProfit decimal.Decimal
	StopLoss     decimal.Decimal
	BreakEven    decimal.Decimal
	Trailing     bool
}

// Decision is the outcome of one tick.
type Decision struct {
	Close   bool
	Trailed bool
	Price   decimal.Decimal
	Levels  Levels
}

// Signals is the part of the signal store the monitor writes.
type Signals interface {
	Clear(name string) error
}

// Monitor watches one position.
type Monitor struct {
	cfg     Config
	pos     Position
	levels  Levels
	state   State
	signals Signals
	exec    exchange.Executor
	journal *Journal

	now func() time.Time
	log zerolog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithJournal records the position and every trailing update in j.
func WithJournal(j *Journal) Option {
	return func(m *Monitor) { m.journal = j }
}

var hundred = decimal.NewFromInt(100)

func pct(p, percent decimal.Decimal) decimal.Decimal {
	return p.Mul(percent).Div(hundred)
}

// New creates a monitor with static levels derived from the buy price.
func New(cfg Config, pos Position, signals Signals, exec exchange.Executor, log zerolog.Logger, opts ...Option) *Monitor {
	p := pos.Buy.Price
	m := &Monitor{
		cfg: cfg,
		pos: pos,
		levels: Levels{
			TargetProfit: p.Add(pct(p, cfg.TargetProfitPct)),
			StopLoss:     p.Sub(pct(p, cfg.StopLossPct)),
			BreakEven:    p.Add(pct(p, cfg.BreakEvenPct)),
		},
		state:   AwaitingTick,
		signals: signals,
		exec:    exec,
		now:     time.Now,
		log:     log.With().Str("component", "monitor").Str("symbol", pos.Buy.Symbol).Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bounds returns the current exit levels.
func (m *Monitor) Bounds() Levels { return m.levels }

// State returns the lifecycle state.
func (m *Monitor) State() State { return m.state }

// Step evaluates one tick against the exit levels. It never places orders.
// Ticks for other symbols leave the state unchanged.
func (m *Monitor) Step(tick model.Tick) Decision {
	if m.state == Closing || m.state == Closed {
		return Decision{Price: tick.Price, Levels: m.levels}
	}
	if tick.Symbol != "" && tick.Symbol != m.pos.Buy.Symbol {
		return Decision{Price: tick.Price, Levels: m.levels}
	}
	m.state = Evaluating
	c := tick.Price
	d := Decision{Price: c}

	if c.GreaterThan(m.levels.TargetProfit) {
		tp := c.Add(pct(c, m.cfg.TrailingPct))
		sl := tp.Sub(pct(tp, m.cfg.TrailingPct))
		m.levels.TargetProfit = tp
		if sl.GreaterThan(m.levels.StopLoss) {
			m.levels.StopLoss = sl
		}
		m.levels.Trailing = true
		d.Trailed = true
	}

	d.Close = c.LessThan(m.levels.StopLoss) || c.GreaterThan(m.levels.TargetProfit)
	d.Levels = m.levels
	if !d.Close {
		m.state = AwaitingTick
	}
	return d
}

// Run consumes ticks until the position closes and returns its settlement.
// Once a close is decided the SELL runs to completion regardless of ctx.
func (m *Monitor) Run(ctx context.Context, ticks <-chan model.Tick) (*model.TradeSettlement, error) {
	m.saveJournal()
	m.log.Info().
		Str("buy_price", m.pos.Buy.Price.String()).
		Str("target_profit", m.levels.TargetProfit.String()).
		Str("stop_loss", m.levels.StopLoss.String()).
		Str("break_even", m.levels.BreakEven.String()).
		Msg("monitoring position")

	for {
		select {
		case <-ctx.Done():
			m.log.Error().Err(ctx.Err()).Msg("monitor interrupted, position is still open on the exchange")
			return nil, fmt.Errorf("%w: monitor interrupted: %v", ErrUnsoldPosition, ctx.Err())
		case tick, ok := <-ticks:
			if !ok {
				return nil, ErrFeedClosed
			}
			d := m.Step(tick)
			if d.Trailed {
				m.log.Info().Str("price", d.Price.String()).
					Str("target_profit", d.Levels.TargetProfit.String()).
					Str("stop_loss", d.Levels.StopLoss.String()).Msg("trailing levels raised")
				m.saveJournal()
			}
			if d.Close {
				return m.close(ctx, d)
			}
		}
	}
}

func (m *Monitor) close(ctx context.Context, d Decision) (*model.TradeSettlement, error) {
	m.state = Closing
	if err := m.signals.Clear(ipc.IsRunning); err != nil {
		m.log.Error().Err(err).Msg("failed to clear running signal")
	}

	sctx := context.WithoutCancel(ctx)
	req := order.Request{
		ID:            uuid.NewString(),
		Symbol:        m.pos.Buy.Symbol,
		Side:          model.Sell,
		Qty:           order.SellQuantity(m.pos.Buy),
		RefPrice:      d.Price,
		BaseAsset:     m.pos.Asset.Base,
		BasePrecision: m.pos.Asset.BasePrecision,
	}
	m.log.Info().Str("price", d.Price.String()).Str("qty", req.Qty.String()).Msg("closing position")

	fills, err := m.exec.Submit(sctx, req)
	if err != nil {
		m.log.Error().Err(err).Str("qty", req.Qty.String()).Msg("SELL FAILED, position is still open on the exchange")
		return nil, fmt.Errorf("%w: %v", ErrUnsoldPosition, err)
	}
	sell, err := order.Aggregate(req, fills, m.cfg.FillPolicy)
	if err != nil {
		m.log.Error().Err(err).Int("fills", len(fills)).Msg("SELL returned unusable fills, reconcile manually")
		return nil, fmt.Errorf("%w: %v", ErrUnsoldPosition, err)
	}

	settlement := Settle(m.pos, sell, m.now())
	if m.journal != nil {
		if err := m.journal.Remove(); err != nil {
			m.log.Warn().Err(err).Msg("failed to remove position journal")
		}
	}
	m.state = Closed
	m.log.Info().Str("state", string(settlement.State())).
		Str("sell_price", settlement.SellPrice.String()).
		Str("profit", settlement.ProfitTotal.String()).Msg("position closed")
	return settlement, nil
}

func (m *Monitor) saveJournal() {
	if m.journal == nil {
		return
	}
	if err := m.journal.Save(EntryFor(m.pos, m.levels)); err != nil {
		m.log.Warn().Err(err).Msg("failed to write position journal")
	}
}
