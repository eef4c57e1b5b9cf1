package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"gc_bot/internal/candles"
	"gc_bot/internal/config"
	"gc_bot/internal/exchange"
	"gc_bot/pkg/logger"
)

func main() {
	fs := pflag.NewFlagSet("backfill", pflag.ExitOnError)
	config.Flags(fs)
	from := fs.String("from", "", "start, RFC3339 or YYYY-MM-DD (UTC)")
	to := fs.String("to", "", "end, RFC3339 or YYYY-MM-DD (UTC); default now")
	out := fs.String("out", "data/candles.csv", "output CSV")
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

	start, err := parseDate(*from)
	if err != nil {
		l.Fatal("bad --from", zap.Error(err))
	}
	end := time.Now().UTC()
	if *to != "" {
		if end, err = parseDate(*to); err != nil {
			l.Fatal("bad --to", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := exchange.NewClient(cfg.Exchange, l)
	bars, err := client.FetchRange(ctx, cfg.Symbol, cfg.Timeframe, start, end)
	if err != nil {
		l.Fatal("fetch range", zap.Error(err))
	}
	if err := candles.WriteCSV(*out, bars); err != nil {
		l.Fatal("write csv", zap.Error(err))
	}
	l.Info("backfill done",
		zap.String("symbol", cfg.Symbol),
		zap.String("timeframe", cfg.Timeframe),
		zap.Int("bars", len(bars)),
		zap.String("out", *out))
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("date is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse %q", s)
	}
	return t, nil
}
