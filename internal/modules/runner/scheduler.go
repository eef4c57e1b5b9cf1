package runner

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"gc_bot/internal/config"
	"gc_bot/internal/notify"
	"gc_bot/internal/runner"
)

// SchedulerModule крутит циклы в фоне. Фатальная ошибка цикла
// останавливает всё приложение с ненулевым кодом.
func SchedulerModule() fx.Option {
	return fx.Module("scheduler",
		fx.Provide(func(cfg *config.Config, r *runner.Runner, n notify.Notifier, log *zap.Logger) *runner.Scheduler {
			return runner.NewScheduler(r, n, cfg.Scheduler.Minute, log)
		}),
		fx.Invoke(RunScheduler),
	)
}

func RunScheduler(lc fx.Lifecycle, s *runner.Scheduler, sd fx.Shutdowner, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(done)
				if err := s.Run(ctx); err != nil {
					log.Error("[SCHEDULER] stopped on fatal error", zap.Error(err))
					_ = sd.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
			return nil
		},
	})
}
