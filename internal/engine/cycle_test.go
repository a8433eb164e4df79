package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"MomentumTrader/internal/exchange"
	"MomentumTrader/internal/ipc"
	"MomentumTrader/internal/model"
	"MomentumTrader/internal/monitor"
	"MomentumTrader/internal/order"
	"MomentumTrader/internal/strategy"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type staticCandidates []model.SymbolCandidate

func (s staticCandidates) Candidates(context.Context) ([]model.SymbolCandidate, error) { return s, nil }

type rocInspector map[string]float64

func (r rocInspector) Inspect(_ context.Context, symbol string) (model.Inspection, error) {
	return model.Inspection{
		Asset: model.Asset{
			Symbol:        symbol,
			Base:          symbol[:3],
			Quote:         "USDT",
			BasePrecision: 8,
			MinQty:        d("0.01"),
			MaxQty:        d("100000"),
			StepSize:      d("0.01"),
		},
		Indicators: model.Indicators{ROC: r[symbol]},
	}, nil
}

type fixedPrice decimal.Decimal

func (p fixedPrice) RecentPrice(context.Context, string) (decimal.Decimal, error) {
	return decimal.Decimal(p), nil
}

type countingExec struct {
	inner    exchange.Executor
	failSell bool
	sides    []model.Side
}

func (c *countingExec) Submit(ctx context.Context, req order.Request) ([]model.Fill, error) {
	c.sides = append(c.sides, req.Side)
	if c.failSell && req.Side == model.Sell {
		return nil, errors.New("exchange unavailable")
	}
	return c.inner.Submit(ctx, req)
}

type memTrades struct{ trades []*model.TradeSettlement }

func (m *memTrades) RecordTrade(_ context.Context, t *model.TradeSettlement) error {
	m.trades = append(m.trades, t)
	return nil
}

type memNotifier struct{ msgs []string }

func (m *memNotifier) Notify(_ context.Context, text string) error {
	m.msgs = append(m.msgs, text)
	return nil
}

func tickSource(prices ...string) TickSource {
	return func(ctx context.Context, symbol string) <-chan model.Tick {
		ch := make(chan model.Tick, len(prices))
		for _, p := range prices {
			ch <- model.Tick{Time: time.Now(), Symbol: symbol, Price: d(p)}
		}
		return ch
	}
}

type fixture struct {
	cycle  *Cycle
	store  *ipc.Store
	exec   *countingExec
	trades *memTrades
	notes  *memNotifier
}

func newFixture(t *testing.T, roc rocInspector, ticks TickSource) *fixture {
	t.Helper()
	store, err := ipc.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		store:  store,
		exec:   &countingExec{inner: exchange.NewPaperExecutor("USDT", 0.1, 8, zerolog.Nop())},
		trades: &memTrades{},
		notes:  &memNotifier{},
	}
	f.cycle = &Cycle{
		Signals: store,
		Candidates: staticCandidates{
			{Symbol: "AAAUSDT", Prices: []decimal.Decimal{d("1"), d("1.3")}},
			{Symbol: "BBBUSDT", Prices: []decimal.Decimal{d("1"), d("1.2")}},
			{Symbol: "CCCUSDT", Prices: []decimal.Decimal{d("1"), d("1.1")}},
			{Symbol: "DDDUSDT", Prices: []decimal.Decimal{d("1"), d("1.05")}},
		},
		Selector:   strategy.NewSelector(roc, 1, 3, zerolog.Nop()),
		Prices:     fixedPrice(d("100")),
		Executor:   f.exec,
		Ticks:      ticks,
		Trades:     f.trades,
		Notifier:   f.notes,
		Investment: d("100"),
		Monitor:    monitor.NewConfig(0.8, 1.0, 0.2, 0.1, order.PolicyMax),
		Log:        zerolog.Nop(),
	}
	return f
}

func TestCycle_CascadeExhausted(t *testing.T) {
	f := newFixture(t, rocInspector{"AAAUSDT": 0.1, "BBBUSDT": 0.2, "CCCUSDT": 0.9, "DDDUSDT": 5}, tickSource())
	res, err := f.cycle.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeNoOpportunity {
		t.Errorf("expected no opportunity, got %s", res.Outcome)
	}
	if len(f.exec.sides) != 0 {
		t.Errorf("expected no orders, got %v", f.exec.sides)
	}
	if f.store.IsSet(ipc.IsRunning) {
		t.Error("running signal must stay unset")
	}
}

func TestCycle_ClosesTrailingWin(t *testing.T) {
	f := newFixture(t, rocInspector{"AAAUSDT": 0.5, "BBBUSDT": 1.5}, tickSource("100.90", "100.85"))
	res, err := f.cycle.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeClosed || res.Selection.Symbol != "BBBUSDT" {
		t.Fatalf("unexpected result %+v", res)
	}
	s := res.Settlement
	if !s.Win || !s.SellPrice.Equal(d("100.85")) {
		t.Errorf("expected WON at 100.85, got %+v", s)
	}
	// 100 USDT at 100 buys 1.00; 0.1% commission in base leaves 0.999 to sell
	if !res.Buy.Qty.Equal(d("1")) || !s.SellQty.Equal(d("0.999")) || !s.Dust.Equal(d("0.001")) {
		t.Errorf("unexpected quantities buy=%s sell=%s dust=%s", res.Buy.Qty, s.SellQty, s.Dust)
	}
	if s.Indicators.ROC != 1.5 {
		t.Errorf("expected selection-time indicators, got %+v", s.Indicators)
	}
	if len(f.exec.sides) != 2 || f.exec.sides[0] != model.Buy || f.exec.sides[1] != model.Sell {
		t.Errorf("expected BUY then SELL, got %v", f.exec.sides)
	}
	if len(f.trades.trades) != 1 || len(f.notes.msgs) != 2 {
		t.Errorf("expected 1 recorded trade and 2 messages, got %d and %d", len(f.trades.trades), len(f.notes.msgs))
	}
	if f.store.IsSet(ipc.IsRunning) {
		t.Error("running signal must be cleared after close")
	}
}

func TestCycle_SizingFailureReleasesSignal(t *testing.T) {
	f := newFixture(t, rocInspector{"AAAUSDT": 2}, tickSource())
	f.cycle.Investment = d("0.5")
	res, err := f.cycle.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeSizingFailed {
		t.Errorf("expected sizing failure, got %s", res.Outcome)
	}
	if len(f.exec.sides) != 0 {
		t.Errorf("expected no orders, got %v", f.exec.sides)
	}
	if f.store.IsSet(ipc.IsRunning) {
		t.Error("running signal must be cleared after sizing failure")
	}
}

func TestCycle_SkipsWhenRunningOrPaused(t *testing.T) {
	for _, sig := range []string{ipc.IsRunning, ipc.IsPaused} {
		f := newFixture(t, rocInspector{"AAAUSDT": 2}, tickSource())
		if err := f.store.Set(sig); err != nil {
			t.Fatal(err)
		}
		res, err := f.cycle.Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		want := OutcomeAlreadyRunning
		if sig == ipc.IsPaused {
			want = OutcomePaused
		}
		if res.Outcome != want || len(f.exec.sides) != 0 {
			t.Errorf("%s: expected %s without orders, got %s %v", sig, want, res.Outcome, f.exec.sides)
		}
	}
}

type racingSelector struct {
	inner Selector
	store *ipc.Store
}

func (r racingSelector) Select(ctx context.Context, c []model.SymbolCandidate) (*strategy.Selection, error) {
	sel, err := r.inner.Select(ctx, c)
	// another cycle commits while this one is still selecting
	r.store.Set(ipc.IsRunning)
	return sel, err
}

func TestCycle_DiscardsSelectionWhenCommitLost(t *testing.T) {
	f := newFixture(t, rocInspector{"AAAUSDT": 2}, tickSource())
	f.cycle.Selector = racingSelector{inner: f.cycle.Selector, store: f.store}
	res, err := f.cycle.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeAlreadyRunning || len(f.exec.sides) != 0 {
		t.Errorf("expected discarded selection, got %s %v", res.Outcome, f.exec.sides)
	}
	if !f.store.IsSet(ipc.IsRunning) {
		t.Error("the winning cycle's signal must be left in place")
	}
}

func TestCycle_SellFailureIsFatal(t *testing.T) {
	f := newFixture(t, rocInspector{"AAAUSDT": 2}, tickSource("98"))
	f.exec.failSell = true
	_, err := f.cycle.Run(context.Background())
	if !errors.Is(err, monitor.ErrUnsoldPosition) {
		t.Fatalf("expected ErrUnsoldPosition, got %v", err)
	}
	if f.store.IsSet(ipc.IsRunning) {
		t.Error("running signal is cleared before the SELL even when it fails")
	}
	if len(f.trades.trades) != 0 {
		t.Error("no trade may be recorded for a failed SELL")
	}
}

// brokenCommit creates the signal but reports that it could not be made durable.
type brokenCommit struct{ *ipc.Store }

func (b brokenCommit) TrySet(name string) (bool, error) {
	if _, err := b.Store.TrySet(name); err != nil {
		return false, err
	}
	return true, errors.New("sync: input/output error")
}

func TestCycle_CommitErrorReleasesSignal(t *testing.T) {
	f := newFixture(t, rocInspector{"AAAUSDT": 2}, tickSource())
	f.cycle.Signals = brokenCommit{f.store}
	_, err := f.cycle.Run(context.Background())
	if err == nil {
		t.Fatal("expected commit error")
	}
	if len(f.exec.sides) != 0 {
		t.Errorf("expected no orders, got %v", f.exec.sides)
	}
	if f.store.IsSet(ipc.IsRunning) {
		t.Error("running signal must not outlive a failed commit")
	}
}
