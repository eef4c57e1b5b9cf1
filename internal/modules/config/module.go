package config

import (
	"go.uber.org/fx"

	"gc_bot/internal/config"
)

// Module отдаёт уже загруженную конфигурацию: cmd читает её до старта fx,
// чтобы по ней выбрать набор модулей.
func Module(cfg *config.Config) fx.Option {
	return fx.Module("config",
		fx.Supply(cfg),
	)
}
