package exchange

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"gc_bot/internal/config"
	"gc_bot/internal/exchange"
	"gc_bot/internal/runner"
)

func Module() fx.Option {
	return fx.Module("exchange",
		fx.Provide(
			func(cfg *config.Config, log *zap.Logger) *exchange.Client {
				return exchange.NewClient(cfg.Exchange, log)
			},
			func(c *exchange.Client) runner.DataSource { return c },
		),
	)
}
