package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"MomentumTrader/internal/collector"
	"MomentumTrader/internal/config"
	"MomentumTrader/internal/exchange"
	"MomentumTrader/internal/metrics"
	"MomentumTrader/internal/model"
	"MomentumTrader/internal/recorder"
	"MomentumTrader/internal/stream"
	"MomentumTrader/internal/util"
)

func main() {
	cfg, err := config.Load(config.Path())
	log := util.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewLogger(cfg.App.LogLevel).With().Str("process", "stream").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open price store")
	}
	defer rec.Close()

	if srv := metrics.Serve(cfg.Stream.MetricsAddr); srv != nil {
		defer srv.Close()
	}

	client := exchange.NewClient(cfg.Exchange.RestURL, cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Proxy, log,
		exchange.WithRetryBackoff(cfg.Exchange.RetryBackoff))
	all, err := client.ListTradableSymbols(ctx, cfg.Exchange.QuoteAsset)
	if err != nil {
		log.Fatal().Err(err).Msg("list symbols")
	}
	symbols := collector.Tradable(all, cfg.Exchange.QuoteAsset)
	if len(symbols) == 0 {
		log.Fatal().Str("quote", cfg.Exchange.QuoteAsset).Msg("no tradable symbols")
	}

	ing := stream.NewIngester(rec, cfg.Stream.FlushInterval, cfg.Stream.BatchSize, cfg.Stream.Retention, log)
	if err := ing.Prune(ctx); err != nil {
		log.Warn().Err(err).Msg("initial prune")
	}

	cl := cron.PrintfLogger(&log)
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(cfg.Stream.PruneCron, func() {
		if err := ing.Prune(ctx); err != nil {
			log.Error().Err(err).Msg("prune")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("register prune task")
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	feed := stream.NewFeed(cfg.Exchange.StreamURL, symbols, log)
	ticks := make(chan model.Tick, 4096)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(ticks)
		return feed.Run(gctx, ticks)
	})
	g.Go(func() error {
		return ing.Run(gctx, ticks)
	})

	log.Info().Int("symbols", len(symbols)).Msg("stream ingester started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("stream ingester stopped with error")
		return
	}
	log.Info().Msg("stream ingester stopped")
}
