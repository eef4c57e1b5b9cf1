package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"gc_bot/internal/models"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "values.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv(configFilePathENV, "")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != models.ModePaper || cfg.Timeframe != "1h" {
		t.Fatalf("mode/timeframe = %s/%s", cfg.Mode, cfg.Timeframe)
	}
	if cfg.Signal.ShortWindow != 30 || cfg.Signal.LongWindow != 60 {
		t.Fatalf("signal = %+v", cfg.Signal)
	}
	if cfg.Sizing.NotionalQuote != 5000 || cfg.Sizing.NotionalFraction != nil {
		t.Fatalf("sizing = %+v", cfg.Sizing)
	}
	if !cfg.Exits.PreferTakeProfit || cfg.Fees.TakerFeeBps != 15 {
		t.Fatalf("exits/fees = %+v %+v", cfg.Exits, cfg.Fees)
	}
	if cfg.Exchange.Timeout != 10*time.Second || cfg.Notify.Slack.MaxRetries != 3 {
		t.Fatalf("exchange/slack = %+v %+v", cfg.Exchange, cfg.Notify.Slack)
	}
	if cfg.Scheduler.Minute != 5 || cfg.Ledger.Driver != "csv" || !cfg.Backtest.ForceCloseLast {
		t.Fatalf("scheduler/ledger/backtest = %+v %+v %+v", cfg.Scheduler, cfg.Ledger, cfg.Backtest)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := writeYAML(t, `
symbol: ETH-USDT
timeframe: 1h
signal:
  short_window: 5
  long_window: 20
  rsi:
    enabled: true
    period: 14
    min: 40
sizing:
  notional: 1000
  notional_fraction: 0.1
exchange:
  timeout: 3s
`)
	t.Setenv("GCBOT_TIMEFRAME", "4h")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Flags(fs)
	if err := fs.Parse([]string{"--config", path, "--symbol", "XRP-USDT"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Symbol != "XRP-USDT" {
		t.Fatalf("flag should win, symbol = %s", cfg.Symbol)
	}
	if cfg.Timeframe != "4h" {
		t.Fatalf("env should win over file, timeframe = %s", cfg.Timeframe)
	}
	if cfg.Signal.ShortWindow != 5 || cfg.Signal.LongWindow != 20 {
		t.Fatalf("signal = %+v", cfg.Signal)
	}
	if !cfg.Signal.RSI.Enabled || cfg.Signal.RSI.Min == nil || *cfg.Signal.RSI.Min != 40 || cfg.Signal.RSI.Max != nil {
		t.Fatalf("rsi = %+v", cfg.Signal.RSI)
	}
	if cfg.Sizing.NotionalFraction == nil || *cfg.Sizing.NotionalFraction != 0.1 {
		t.Fatalf("fraction = %v", cfg.Sizing.NotionalFraction)
	}
	if cfg.Exchange.Timeout != 3*time.Second {
		t.Fatalf("timeout = %s", cfg.Exchange.Timeout)
	}

	rc, err := cfg.RunnerConfig()
	if err != nil {
		t.Fatalf("RunnerConfig: %v", err)
	}
	if rc.Symbol != "XRP-USDT" || rc.Location != time.UTC || rc.Costs != cfg.Fees {
		t.Fatalf("runner config = %+v", rc)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"short >= long", "signal:\n  short_window: 60\n  long_window: 30\n"},
		{"unknown mode", "mode: live\n"},
		{"real without keys", "mode: real\n"},
		{"zero notional", "sizing:\n  notional: 0\n"},
		{"bad ledger driver", "ledger:\n  driver: mongo\n"},
		{"postgres without dsn", "ledger:\n  driver: postgres\n"},
		{"bad timezone", "timezone: Mars/Olympus\n"},
		{"limit equals long window", "limit: 60\nsignal:\n  long_window: 60\n"},
		{"lookback equals long window", "backtest:\n  lookback: 60\n"},
		{"negative lookback", "backtest:\n  lookback: -1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, k := range []string{"OKX_API_KEY", "OKX_API_SECRET", "OKX_PASSPHRASE", "DATABASE_DSN"} {
				t.Setenv(k, "")
			}
			if _, err := Load(writeYAML(t, tc.yaml), nil); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadRealModeWithKeys(t *testing.T) {
	t.Setenv("OKX_API_KEY", "k")
	t.Setenv("OKX_API_SECRET", "s")
	t.Setenv("OKX_PASSPHRASE", "p")

	cfg, err := Load(writeYAML(t, "mode: real\n"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != models.ModeReal || cfg.Exchange.APIKey != "k" {
		t.Fatalf("cfg = %+v", cfg.Exchange)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}
