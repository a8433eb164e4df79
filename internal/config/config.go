package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"MomentumTrader/internal/order"
)

// Config holds all application configuration.
type Config struct {
	App struct {
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`
	Exchange struct {
		RestURL           string        `yaml:"rest_url"`
		StreamURL         string        `yaml:"stream_url"`
		APIKey            string        `yaml:"api_key"`
		APISecret         string        `yaml:"api_secret"`
		QuoteAsset        string        `yaml:"quote_asset"`
		TimestampOffsetMs int64         `yaml:"timestamp_offset_ms"`
		RecvWindowMs      int64         `yaml:"recv_window_ms"`
		Paper             bool          `yaml:"paper"`
		PaperFeePct       float64       `yaml:"paper_fee_pct"`
		RetryBackoff      time.Duration `yaml:"retry_backoff"`
	} `yaml:"exchange"`
	Trading Trading `yaml:"trading"`
	Supervisor struct {
		PollInterval time.Duration `yaml:"poll_interval"`
		StreamWarmup time.Duration `yaml:"stream_warmup"`
		GracePeriod  time.Duration `yaml:"grace_period"`
		StreamCmd    []string      `yaml:"stream_cmd"`
		TraderCmd    []string      `yaml:"trader_cmd"`
		StreamLog    string        `yaml:"stream_log"`
		TraderLog    string        `yaml:"trader_log"`
		MetricsAddr  string        `yaml:"metrics_addr"`
	} `yaml:"supervisor"`
	Stream struct {
		Retention     time.Duration `yaml:"retention"`
		FlushInterval time.Duration `yaml:"flush_interval"`
		BatchSize     int           `yaml:"batch_size"`
		PruneCron     string        `yaml:"prune_cron"`
		MetricsAddr   string        `yaml:"metrics_addr"`
	} `yaml:"stream"`
	Trader struct {
		MetricsAddr string `yaml:"metrics_addr"`
		JournalPath string `yaml:"journal_path"`
	} `yaml:"trader"`
	IPC struct {
		Dir string `yaml:"dir"`
	} `yaml:"ipc"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Proxy string `yaml:"proxy"`
}

// Trading holds the strategy knobs handed to the selector, sizing and monitor.
type Trading struct {
	Investment      float64       `yaml:"investment"`
	TargetProfitPct float64       `yaml:"target_profit_pct"`
	StopLossPct     float64       `yaml:"stop_loss_pct"`
	BreakEvenPct    float64       `yaml:"break_even_pct"`
	TrailingPct     float64       `yaml:"trailing_pct"`
	MinROC          float64       `yaml:"min_roc"`
	CascadeDepth    int           `yaml:"cascade_depth"`
	MomentumWindow  time.Duration `yaml:"momentum_window"`
	OHLCVLookback   time.Duration `yaml:"ohlcv_lookback"`
	KlineInterval   string        `yaml:"kline_interval"`
	FillPricePolicy string        `yaml:"fill_price_policy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("IPC_DIR"); v != "" {
		cfg.IPC.Dir = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("PAPER_TRADING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Exchange.Paper = b
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Exchange.RestURL == "" {
		c.Exchange.RestURL = "https://api.binance.com"
	}
	if c.Exchange.StreamURL == "" {
		c.Exchange.StreamURL = "wss://stream.binance.com:9443/stream"
	}
	if c.Exchange.QuoteAsset == "" {
		c.Exchange.QuoteAsset = "USDT"
	}
	if c.Exchange.TimestampOffsetMs == 0 {
		c.Exchange.TimestampOffsetMs = -2000
	}
	if c.Exchange.RecvWindowMs == 0 {
		c.Exchange.RecvWindowMs = 5000
	}
	if c.Exchange.PaperFeePct == 0 {
		c.Exchange.PaperFeePct = 0.1
	}
	if c.Exchange.RetryBackoff == 0 {
		c.Exchange.RetryBackoff = 60 * time.Second
	}

	t := &c.Trading
	if t.Investment == 0 {
		t.Investment = 100
	}
	if t.TargetProfitPct == 0 {
		t.TargetProfitPct = 0.8
	}
	if t.StopLossPct == 0 {
		t.StopLossPct = 1.0
	}
	if t.BreakEvenPct == 0 {
		t.BreakEvenPct = 0.2
	}
	if t.TrailingPct == 0 {
		t.TrailingPct = 0.1
	}
	if t.MinROC == 0 {
		t.MinROC = 1
	}
	if t.CascadeDepth == 0 {
		t.CascadeDepth = 3
	}
	if t.MomentumWindow == 0 {
		t.MomentumWindow = 2 * time.Minute
	}
	if t.OHLCVLookback == 0 {
		t.OHLCVLookback = 60 * time.Minute
	}
	if t.KlineInterval == "" {
		t.KlineInterval = "1m"
	}
	if t.FillPricePolicy == "" {
		t.FillPricePolicy = string(order.PolicyMax)
	}

	s := &c.Supervisor
	if s.PollInterval == 0 {
		s.PollInterval = 5 * time.Second
	}
	if s.StreamWarmup == 0 {
		s.StreamWarmup = 15 * time.Second
	}
	if s.GracePeriod == 0 {
		s.GracePeriod = 5 * time.Second
	}
	if len(s.StreamCmd) == 0 {
		s.StreamCmd = []string{"./stream"}
	}
	if len(s.TraderCmd) == 0 {
		s.TraderCmd = []string{"./trader"}
	}
	if s.StreamLog == "" {
		s.StreamLog = "data/stream.log"
	}
	if s.TraderLog == "" {
		s.TraderLog = "data/trader.log"
	}

	st := &c.Stream
	if st.Retention == 0 {
		st.Retention = time.Hour
	}
	if st.FlushInterval == 0 {
		st.FlushInterval = time.Second
	}
	if st.BatchSize == 0 {
		st.BatchSize = 500
	}
	if st.PruneCron == "" {
		st.PruneCron = "@every 10m"
	}

	if c.Trader.JournalPath == "" {
		c.Trader.JournalPath = "data/position.json"
	}
	if c.IPC.Dir == "" {
		c.IPC.Dir = "data/ipc"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/momentum.db"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if !c.Exchange.Paper && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return fmt.Errorf("exchange.api_key and exchange.api_secret are required unless exchange.paper is set")
	}
	t := c.Trading
	if t.Investment <= 0 {
		return fmt.Errorf("trading.investment must be positive")
	}
	if t.TargetProfitPct <= 0 || t.StopLossPct <= 0 || t.TrailingPct <= 0 {
		return fmt.Errorf("trading percentages must be positive")
	}
	if t.CascadeDepth < 1 {
		return fmt.Errorf("trading.cascade_depth must be at least 1")
	}
	if t.MomentumWindow <= 0 {
		return fmt.Errorf("trading.momentum_window must be positive")
	}
	if _, err := order.ParseFillPolicy(t.FillPricePolicy); err != nil {
		return fmt.Errorf("trading.fill_price_policy: %w", err)
	}
	if c.Supervisor.PollInterval < time.Second {
		return fmt.Errorf("supervisor.poll_interval must be at least 1s")
	}
	if c.Stream.BatchSize < 1 {
		return fmt.Errorf("stream.batch_size must be positive")
	}
	return nil
}

// Path returns the config path from CONFIG_PATH or the default location.
func Path() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "configs/config.yaml"
}
