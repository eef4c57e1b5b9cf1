package logger

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"gc_bot/internal/config"
	"gc_bot/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("logger",
		fx.Provide(New),
	)
}

// New строит zap-логгер и ставит его глобальным для printf-хелперов pkg/logger.
func New(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	logger.SetServiceName(cfg.Tracing.Service)
	l, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger.SetGlobal(l)
	lc.Append(fx.StopHook(func() { _ = l.Sync() }))
	return l, nil
}
