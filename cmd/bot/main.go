package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"MomentumTrader/internal/config"
	"MomentumTrader/internal/ipc"
	"MomentumTrader/internal/metrics"
	"MomentumTrader/internal/notifier"
	"MomentumTrader/internal/recorder"
	"MomentumTrader/internal/supervisor"
	"MomentumTrader/internal/util"
)

func main() {
	cfg, err := config.Load(config.Path())
	log := util.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewLogger(cfg.App.LogLevel).With().Str("process", "bot").Logger()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}
	log.Info().Bool("paper", cfg.Exchange.Paper).Msg("MomentumTrader supervisor starting")

	store, err := ipc.NewStore(cfg.IPC.Dir, ipc.WithLogger(log))
	if err != nil {
		log.Fatal().Err(err).Msg("open signal store")
	}

	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}
	defer rec.Close()

	if srv := metrics.Serve(cfg.Supervisor.MetricsAddr); srv != nil {
		defer srv.Close()
		log.Info().Str("addr", cfg.Supervisor.MetricsAddr).Msg("metrics listening")
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := supervisor.New(supervisor.Config{
		PollInterval: cfg.Supervisor.PollInterval,
		StreamWarmup: cfg.Supervisor.StreamWarmup,
		GracePeriod:  cfg.Supervisor.GracePeriod,
		StreamCmd:    cfg.Supervisor.StreamCmd,
		StreamLog:    cfg.Supervisor.StreamLog,
		TraderCmd:    cfg.Supervisor.TraderCmd,
		TraderLog:    cfg.Supervisor.TraderLog,
	}, store, supervisor.ExecLauncher{}, log)

	if cfg.Telegram.BotToken != "" {
		tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		cmds := &notifier.Commands{Signals: store, History: rec}
		go tn.StartPolling(ctx, cmds.Handle)
		log.Info().Msg("telegram polling started")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received, stopping...")
		cancel()
	}()

	if err := sup.Start(ctx); err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("supervisor start")
		}
		sup.Stop()
		return
	}
	log.Info().Msg("MomentumTrader is running. Press Ctrl+C to stop.")

	<-ctx.Done()
	sup.Stop()
	log.Info().Msg("MomentumTrader stopped")
}
