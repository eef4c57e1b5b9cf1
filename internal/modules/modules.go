package modules

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"gc_bot/internal/config"
	"gc_bot/internal/ledger"
	configmod "gc_bot/internal/modules/config"
	exchangemod "gc_bot/internal/modules/exchange"
	ledgermod "gc_bot/internal/modules/ledger"
	loggermod "gc_bot/internal/modules/logger"
	notifymod "gc_bot/internal/modules/notify"
	"gc_bot/internal/modules/postgres"
	runnermod "gc_bot/internal/modules/runner"
	tracingmod "gc_bot/internal/modules/tracing"
)

// Core — модули, нужные любому процессу, который гоняет циклы.
// Postgres подключается только под соответствующий драйвер журнала.
func Core(cfg *config.Config) []fx.Option {
	opts := []fx.Option{
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		configmod.Module(cfg),
		loggermod.Module(),
		tracingmod.Module(),
		ledgermod.Module(),
		exchangemod.Module(),
		notifymod.Module(),
		runnermod.Module(),
	}
	if cfg.Ledger.Driver == ledger.DriverPostgres {
		opts = append(opts, postgres.Module())
	}
	return opts
}
