package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"MomentumTrader/internal/ipc"
	"MomentumTrader/internal/model"
	"MomentumTrader/internal/order"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recorder struct {
	events []string
}

type fakeSignals struct{ rec *recorder }

func (f fakeSignals) Clear(name string) error {
	f.rec.events = append(f.rec.events, "clear:"+name)
	return nil
}

type fakeExec struct {
	rec  *recorder
	err  error
	reqs []order.Request
	ctx  context.Context
}

func (f *fakeExec) Submit(ctx context.Context, req order.Request) ([]model.Fill, error) {
	f.rec.events = append(f.rec.events, "submit:"+string(req.Side))
	f.reqs = append(f.reqs, req)
	f.ctx = ctx
	if f.err != nil {
		return nil, f.err
	}
	return []model.Fill{{Price: req.RefPrice, Qty: req.Qty, Commission: d("0"), CommissionAsset: "USDT"}}, nil
}

func buyAt(price, qty, commission string) *model.Order {
	return &model.Order{
		ID:         "buy-1",
		Symbol:     "LRCUSDT",
		Side:       model.Buy,
		Price:      d(price),
		Qty:        d(qty),
		Commission: d(commission),
	}
}

func newMonitor(t *testing.T, buy *model.Order) (*Monitor, *fakeExec, *recorder) {
	t.Helper()
	rec := &recorder{}
	exec := &fakeExec{rec: rec}
	cfg := NewConfig(0.8, 1.0, 0.2, 0.1, order.PolicyMax)
	pos := Position{Buy: buy, OpenedAt: time.Now().Add(-time.Minute), Indicators: model.Indicators{ROC: 1.5}}
	return New(cfg, pos, fakeSignals{rec}, exec, zerolog.Nop()), exec, rec
}

func feed(prices ...string) <-chan model.Tick {
	ch := make(chan model.Tick, len(prices))
	for _, p := range prices {
		ch <- model.Tick{Time: time.Now(), Symbol: "LRCUSDT", Price: d(p)}
	}
	close(ch)
	return ch
}

func TestStaticLevels(t *testing.T) {
	m, _, _ := newMonitor(t, buyAt("100", "1", "0"))
	l := m.Bounds()
	if !l.TargetProfit.Equal(d("100.8")) || !l.StopLoss.Equal(d("99")) || !l.BreakEven.Equal(d("100.2")) {
		t.Errorf("unexpected levels %+v", l)
	}
	if l.Trailing {
		t.Error("trailing must start inactive")
	}
}

func TestScenarioStopLoss(t *testing.T) {
	m, exec, _ := newMonitor(t, buyAt("100.00000000", "10", "0.01"))

	dec := m.Step(model.Tick{Symbol: "LRCUSDT", Price: d("99.00")})
	if dec.Close {
		t.Fatal("99.00 equals the stop loss and must not close")
	}
	if !m.Bounds().StopLoss.Equal(d("99")) {
		t.Fatalf("stop loss moved: %s", m.Bounds().StopLoss)
	}

	m2, exec, _ := newMonitor(t, buyAt("100.00000000", "10", "0.01"))
	s, err := m2.Run(context.Background(), feed("99.00", "98.90"))
	if err != nil {
		t.Fatal(err)
	}
	if s.State() != model.TradeLost || !s.SellPrice.Equal(d("98.9")) {
		t.Errorf("expected LOST at 98.90, got %s at %s", s.State(), s.SellPrice)
	}
	if !m2.Bounds().StopLoss.Equal(d("99")) {
		t.Errorf("stop loss must stay 99, got %s", m2.Bounds().StopLoss)
	}
	if len(exec.reqs) != 1 || m2.State() != Closed {
		t.Errorf("expected one SELL and CLOSED, got %d and %s", len(exec.reqs), m2.State())
	}
}

func TestScenarioTrailingWin(t *testing.T) {
	m, _, _ := newMonitor(t, buyAt("100.00000000", "10", "0"))

	dec := m.Step(model.Tick{Symbol: "LRCUSDT", Price: d("100.90")})
	if dec.Close || !dec.Trailed {
		t.Fatalf("expected trailing without close, got %+v", dec)
	}
	l := m.Bounds()
	if !l.TargetProfit.Equal(d("101.0009")) {
		t.Errorf("expected target 101.0009, got %s", l.TargetProfit)
	}
	if !l.StopLoss.Equal(d("100.8998991")) {
		t.Errorf("expected stop 100.8998991, got %s", l.StopLoss)
	}

	m2, _, _ := newMonitor(t, buyAt("100.00000000", "10", "0"))
	s, err := m2.Run(context.Background(), feed("100.90", "100.85"))
	if err != nil {
		t.Fatal(err)
	}
	if s.State() != model.TradeWon || !s.SellPrice.Equal(d("100.85")) {
		t.Errorf("expected WON at 100.85, got %s at %s", s.State(), s.SellPrice)
	}
}

func TestTrailingStopNeverDecreases(t *testing.T) {
	tests := [][]string{
		{"100", "102", "101"},
		{"100.81", "100.9", "101.5", "101.2", "103", "102.99"},
		{"99.5", "100.5", "100.9", "100.95", "100.92"},
	}
	for _, seq := range tests {
		m, _, _ := newMonitor(t, buyAt("100", "1", "0"))
		prev := m.Bounds().StopLoss
		for _, p := range seq {
			dec := m.Step(model.Tick{Symbol: "LRCUSDT", Price: d(p)})
			if dec.Levels.StopLoss.LessThan(prev) {
				t.Fatalf("%v: stop loss fell from %s to %s at %s", seq, prev, dec.Levels.StopLoss, p)
			}
			prev = dec.Levels.StopLoss
			if dec.Close {
				break
			}
		}
	}
}

func TestIgnoresOtherSymbols(t *testing.T) {
	m, _, _ := newMonitor(t, buyAt("100", "1", "0"))
	if dec := m.Step(model.Tick{Symbol: "BTCUSDT", Price: d("1")}); dec.Close {
		t.Error("tick for another symbol must not close")
	}
}

func TestCloseClearsRunningBeforeSell(t *testing.T) {
	m, exec, rec := newMonitor(t, buyAt("100", "61", "0.061"))
	if _, err := m.Run(context.Background(), feed("98")); err != nil {
		t.Fatal(err)
	}
	want := []string{"clear:" + ipc.IsRunning, "submit:SELL"}
	if len(rec.events) != 2 || rec.events[0] != want[0] || rec.events[1] != want[1] {
		t.Errorf("expected %v, got %v", want, rec.events)
	}
	if !exec.reqs[0].Qty.Equal(d("60.939")) {
		t.Errorf("expected sell qty 60.939, got %s", exec.reqs[0].Qty)
	}
}

func TestSellRunsOnUncancellableContext(t *testing.T) {
	m, exec, _ := newMonitor(t, buyAt("100", "1", "0"))
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan model.Tick, 1)
	ticks <- model.Tick{Symbol: "LRCUSDT", Price: d("90")}
	cancel()

	// ctx is already cancelled; the buffered tick may still be taken first
	s, err := m.Run(ctx, ticks)
	if err != nil {
		if len(exec.reqs) != 0 {
			t.Fatalf("interrupted after submit: %v", err)
		}
		return
	}
	if s == nil || exec.ctx.Err() != nil {
		t.Error("SELL must not observe the caller's cancellation")
	}
}

func TestSellFailureIsFatal(t *testing.T) {
	m, exec, rec := newMonitor(t, buyAt("100", "1", "0"))
	exec.err = errors.New("insufficient balance")
	_, err := m.Run(context.Background(), feed("98"))
	if !errors.Is(err, ErrUnsoldPosition) {
		t.Fatalf("expected ErrUnsoldPosition, got %v", err)
	}
	if rec.events[0] != "clear:"+ipc.IsRunning {
		t.Errorf("running signal must be cleared before the failed SELL, got %v", rec.events)
	}
	if len(exec.reqs) != 1 {
		t.Errorf("SELL must not be retried, got %d attempts", len(exec.reqs))
	}
}

func TestFeedClosed(t *testing.T) {
	m, _, _ := newMonitor(t, buyAt("100", "1", "0"))
	if _, err := m.Run(context.Background(), feed("100.1")); !errors.Is(err, ErrFeedClosed) {
		t.Errorf("expected ErrFeedClosed, got %v", err)
	}
}

func TestJournalLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pos", "position.json")
	j := NewJournal(path)
	rec := &recorder{}
	exec := &fakeExec{rec: rec}
	pos := Position{Buy: buyAt("100", "1", "0"), OpenedAt: time.Now()}
	m := New(NewConfig(0.8, 1.0, 0.2, 0.1, order.PolicyMax), pos, fakeSignals{rec}, exec, zerolog.Nop(), WithJournal(j))

	ticks := make(chan model.Tick)
	done := make(chan error)
	go func() {
		_, err := m.Run(context.Background(), ticks)
		done <- err
	}()

	ticks <- model.Tick{Symbol: "LRCUSDT", Price: d("101")}
	ticks <- model.Tick{Symbol: "LRCUSDT", Price: d("101.05")}
	// the second tick is only read once the first step, including its journal
	// write, has completed
	e, err := j.Load()
	if err != nil || e == nil {
		t.Fatalf("expected journal entry, got %v, %v", e, err)
	}
	if !e.Trailing || !e.TargetProfit.Equal(d("101.101")) {
		t.Errorf("expected trailing entry at 101.101, got %+v", e)
	}

	ticks <- model.Tick{Symbol: "LRCUSDT", Price: d("100")}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if e, _ := j.Load(); e != nil {
		t.Errorf("journal should be removed after close, got %+v", e)
	}
}

func TestJournalArchive(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(filepath.Join(dir, "position.json"))
	if p, err := j.Archive(time.Now()); err != nil || p != "" {
		t.Fatalf("expected nothing to archive, got %q, %v", p, err)
	}
	if err := j.Save(&Entry{Symbol: "LRCUSDT"}); err != nil {
		t.Fatal(err)
	}
	p, err := j.Archive(time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(p) != "position.json.20240501T083000.stale" {
		t.Errorf("unexpected archive path %s", p)
	}
	if e, _ := j.Load(); e != nil {
		t.Error("journal should be gone after archive")
	}
}

func TestInterruptedMonitorReportsUnsoldPosition(t *testing.T) {
	m, exec, _ := newMonitor(t, buyAt("100", "1", "0"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Run(ctx, make(chan model.Tick))
	if !errors.Is(err, ErrUnsoldPosition) {
		t.Fatalf("expected ErrUnsoldPosition, got %v", err)
	}
	if len(exec.reqs) != 0 {
		t.Errorf("no SELL may be sent without a close decision, got %d", len(exec.reqs))
	}
}
