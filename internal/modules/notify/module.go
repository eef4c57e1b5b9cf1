package notify

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"gc_bot/internal/config"
	"gc_bot/internal/notify"
)

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			NewTelegram,
			New,
		),
	)
}

// NewTelegram: без токена бот не нужен (nil). Ошибка подключения не валит
// процесс, уведомления пойдут остальными каналами.
func NewTelegram(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *notify.Telegram {
	tc := cfg.Notify.Telegram
	if tc.Token == "" {
		return nil
	}
	tg, err := notify.NewTelegram(tc, log)
	if err != nil {
		log.Warn("[NOTIFY] telegram disabled", zap.Error(err))
		return nil
	}
	lc.Append(fx.StopHook(tg.Stop))
	return tg
}

// New собирает каналы: лог всегда, Slack при наличии webhook, Telegram при наличии бота.
func New(cfg *config.Config, tg *notify.Telegram, log *zap.Logger) notify.Notifier {
	out := notify.Multi{notify.NewLog(log)}
	if cfg.Notify.Slack.WebhookURL != "" {
		out = append(out, notify.NewSlack(cfg.Notify.Slack, log))
	}
	if tg != nil {
		out = append(out, tg)
	}
	return out
}
