package tracing

import (
	"github.com/pkg/errors"
	"go.uber.org/fx"

	"gc_bot/internal/config"
	"gc_bot/pkg/tracing"
)

func Module() fx.Option {
	return fx.Module("tracing",
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			_, closer, err := tracing.InitTracer(cfg.Tracing)
			if err != nil {
				return errors.Wrap(err, "init tracer")
			}
			lc.Append(fx.StopHook(closer))
			return nil
		}),
	)
}
