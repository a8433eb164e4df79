package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"MomentumTrader/internal/collector"
	"MomentumTrader/internal/config"
	"MomentumTrader/internal/engine"
	"MomentumTrader/internal/exchange"
	"MomentumTrader/internal/ipc"
	"MomentumTrader/internal/metrics"
	"MomentumTrader/internal/model"
	"MomentumTrader/internal/monitor"
	"MomentumTrader/internal/notifier"
	"MomentumTrader/internal/order"
	"MomentumTrader/internal/recorder"
	"MomentumTrader/internal/strategy"
	"MomentumTrader/internal/stream"
	"MomentumTrader/internal/util"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(config.Path())
	log := util.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Error().Err(err).Msg("load config")
		return 1
	}
	log = util.NewLogger(cfg.App.LogLevel).With().Str("process", "trader").Logger()
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := ipc.NewStore(cfg.IPC.Dir, ipc.WithLogger(log))
	if err != nil {
		log.Error().Err(err).Msg("open signal store")
		return 1
	}
	rec, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
	if err != nil {
		log.Error().Err(err).Msg("open database")
		return 1
	}
	defer rec.Close()

	if srv := metrics.Serve(cfg.Trader.MetricsAddr); srv != nil {
		defer srv.Close()
	}

	var notify notifier.Notifier = notifier.Nop{}
	if cfg.Telegram.BotToken != "" {
		notify = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
	}

	journal := monitor.NewJournal(cfg.Trader.JournalPath)
	if !store.IsSet(ipc.IsRunning) {
		if stale, err := journal.Archive(time.Now()); err != nil {
			log.Error().Err(err).Msg("archive stale position journal")
		} else if stale != "" {
			log.Error().Str("journal", stale).Msg("found journal of an unfinished position, reconcile it manually")
			_ = notify.Notify(ctx, "⚠️ Unfinished position found after restart, see "+stale)
		}
	}

	client := exchange.NewClient(cfg.Exchange.RestURL, cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Proxy, log,
		exchange.WithTimestampOffset(time.Duration(cfg.Exchange.TimestampOffsetMs)*time.Millisecond),
		exchange.WithRecvWindow(cfg.Exchange.RecvWindowMs),
		exchange.WithRetryBackoff(cfg.Exchange.RetryBackoff),
	)
	var exec exchange.Executor = client
	if cfg.Exchange.Paper {
		exec = exchange.NewPaperExecutor(cfg.Exchange.QuoteAsset, cfg.Exchange.PaperFeePct, 8, log)
	}

	policy, err := order.ParseFillPolicy(cfg.Trading.FillPricePolicy)
	if err != nil {
		log.Error().Err(err).Msg("fill price policy")
		return 1
	}
	t := cfg.Trading
	col := collector.NewCollector(client, rec, cfg.Exchange.QuoteAsset, t.MomentumWindow, t.OHLCVLookback, t.KlineInterval, log)
	investment := decimal.NewFromFloat(t.Investment)

	cycle := &engine.Cycle{
		Signals:    store,
		Candidates: col,
		Selector:   strategy.NewSelector(col, t.MinROC, t.CascadeDepth, log),
		Prices:     client,
		Executor:   exec,
		Ticks:      feedFor(cfg.Exchange.StreamURL, log),
		Trades:     rec,
		Notifier:   notify,
		Journal:    journal,
		Investment: investment,
		Monitor:    monitor.NewConfig(t.TargetProfitPct, t.StopLossPct, t.BreakEvenPct, t.TrailingPct, policy),
		Report: notifier.ReportContext{
			Investment:      investment,
			Quote:           cfg.Exchange.QuoteAsset,
			TargetProfitPct: t.TargetProfitPct,
			StopLossPct:     t.StopLossPct,
			Paper:           cfg.Exchange.Paper,
		},
		Log: log,
	}

	res, err := cycle.Run(ctx)
	switch {
	case errors.Is(err, monitor.ErrUnsoldPosition):
		log.Error().Err(err).Msg("FATAL: position could not be sold, manual action required")
		_ = notify.Notify(context.WithoutCancel(ctx), "🚨 Position is still open on the exchange: "+err.Error())
		return 1
	case err != nil:
		log.Error().Err(err).Str("outcome", string(res.Outcome)).Msg("cycle failed")
		return 1
	}
	ev := log.Info().Str("outcome", string(res.Outcome))
	if s := res.Settlement; s != nil {
		ev = ev.Str("symbol", s.Symbol).Str("state", string(s.State())).Str("profit", s.ProfitTotal.String())
	}
	ev.Msg("cycle finished")
	return 0
}

func feedFor(url string, log zerolog.Logger) engine.TickSource {
	return func(ctx context.Context, symbol string) <-chan model.Tick {
		return stream.NewFeed(url, []string{symbol}, log).Ticks(ctx)
	}
}
