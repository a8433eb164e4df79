package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Trading.Investment != 100 || cfg.Trading.TargetProfitPct != 0.8 || cfg.Trading.StopLossPct != 1.0 {
		t.Fatalf("unexpected trading defaults: %+v", cfg.Trading)
	}
	if cfg.Trading.CascadeDepth != 3 || cfg.Trading.MomentumWindow != 2*time.Minute {
		t.Fatalf("unexpected selector defaults: %+v", cfg.Trading)
	}
	if cfg.Supervisor.PollInterval != 5*time.Second || cfg.Supervisor.GracePeriod != 5*time.Second {
		t.Fatalf("unexpected supervisor defaults: %+v", cfg.Supervisor)
	}
	if cfg.Exchange.QuoteAsset != "USDT" || cfg.Exchange.TimestampOffsetMs != -2000 {
		t.Fatalf("unexpected exchange defaults: %+v", cfg.Exchange)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := writeConfig(t, `
exchange:
  paper: true
  quote_asset: BUSD
trading:
  investment: 250
  momentum_window: 90s
  fill_price_policy: vwap
supervisor:
  poll_interval: 10s
  trader_cmd: ["/usr/local/bin/trader", "-v"]
`)
	t.Setenv("SQLITE_PATH", "/tmp/override.db")
	t.Setenv("BINANCE_API_KEY", "k")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Exchange.Paper || cfg.Exchange.QuoteAsset != "BUSD" {
		t.Fatalf("exchange section not applied: %+v", cfg.Exchange)
	}
	if cfg.Trading.Investment != 250 || cfg.Trading.MomentumWindow != 90*time.Second {
		t.Fatalf("trading section not applied: %+v", cfg.Trading)
	}
	if cfg.Supervisor.PollInterval != 10*time.Second || len(cfg.Supervisor.TraderCmd) != 2 {
		t.Fatalf("supervisor section not applied: %+v", cfg.Supervisor)
	}
	if cfg.Database.SQLitePath != "/tmp/override.db" || cfg.Exchange.APIKey != "k" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg, _ := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	cfg.Exchange.Paper = false
	cfg.Exchange.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing credentials error")
	}

	cfg.Exchange.Paper = true
	cfg.Trading.FillPricePolicy = "median"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected fill policy error")
	}

	cfg.Trading.FillPricePolicy = "max"
	cfg.Trading.CascadeDepth = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected cascade depth error")
	}
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	if Path() != "configs/config.yaml" {
		t.Fatalf("unexpected default path %s", Path())
	}
	t.Setenv("CONFIG_PATH", "/etc/bot.yaml")
	if Path() != "/etc/bot.yaml" {
		t.Fatalf("unexpected override path %s", Path())
	}
}
