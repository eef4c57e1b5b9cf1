package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"gc_bot/internal/backtest"
	"gc_bot/internal/candles"
	"gc_bot/internal/config"
	"gc_bot/internal/ledger"
	"gc_bot/internal/models"
	"gc_bot/pkg/logger"
)

func main() {
	fs := pflag.NewFlagSet("backtest", pflag.ExitOnError)
	config.Flags(fs)
	data := fs.String("data", "data/candles.csv", "candles CSV (see cmd/backfill)")
	format := fs.String("format", "json", "summary format: json | yaml")
	tradesOut := fs.String("trades", "", "write trades CSV to this path")
	noForceClose := fs.Bool("no-force-close", false, "leave the last position open instead of closing at the final close")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load("", fs)
	if err != nil {
		logger.Fatal("config: %+v", err)
	}
	l, err := logger.New(cfg.Log)
	if err != nil {
		logger.Fatal("logger: %v", err)
	}
	logger.SetGlobal(l)
	defer func() { _ = l.Sync() }()

	bars, err := candles.ReadCSV(*data)
	if err != nil {
		l.Fatal("read candles", zap.Error(err))
	}

	btCfg := cfg.BacktestConfig()
	if *noForceClose {
		btCfg.ForceCloseLast = false
	}
	res, err := backtest.Run(bars, btCfg)
	if err != nil {
		l.Fatal("backtest", zap.Error(err))
	}
	l.Info("backtest done",
		zap.String("symbol", cfg.Symbol),
		zap.Int("bars", len(bars)),
		zap.Int("trades", res.Summary.Trades),
		zap.Bool("end_open", res.EndOpen))

	if *tradesOut != "" {
		if err := writeTrades(*tradesOut, res.Trades); err != nil {
			l.Fatal("write trades", zap.Error(err))
		}
	}

	out, err := render(res.Summary, *format)
	if err != nil {
		l.Fatal("render summary", zap.Error(err))
	}
	fmt.Println(string(out))
}

func render(s backtest.Summary, format string) ([]byte, error) {
	switch format {
	case "yaml":
		return yaml.Marshal(s)
	case "json", "":
		return sonic.ConfigStd.MarshalIndent(s, "", "  ")
	}
	return nil, errors.Errorf("unknown format %q", format)
}

// writeTrades пишет сделки в формате trades.csv журнала, чтобы бэктест
// и живой режим читались одними инструментами.
func writeTrades(path string, trades []models.TradeRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create trades dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create trades file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write(ledger.TradeHeader())
	for _, t := range trades {
		_ = w.Write(ledger.TradeRow(t))
	}
	w.Flush()
	return errors.Wrap(w.Error(), "write trades")
}
