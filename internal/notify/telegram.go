package notify

import (
	"context"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type TelegramConfig struct {
	Token  string `mapstructure:"token" json:"-" yaml:"-"`
	ChatID int64  `mapstructure:"chat_id" json:"chat_id" yaml:"chat_id"`
}

// StatusFunc отдаёт текст для команды /status (последний цикл, позиция).
type StatusFunc func() string

// Telegram — пассивный нотифайер + обработка одной команды /status.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	log    *zap.Logger
}

func NewTelegram(cfg TelegramConfig, log *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Telegram{bot: b, chatID: cfg.ChatID, log: log.Named("telegram")}, nil
}

func (t *Telegram) Notify(ctx context.Context, ev Event) bool {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return false
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, ev.Text)); err != nil {
		t.log.Warn("[TELEGRAM] send failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
		return false
	}
	return true
}

// Start: long-polling для команд из нашего чата.
func (t *Telegram) Start(ctx context.Context, status StatusFunc) error {
	if t == nil || t.bot == nil || status == nil {
		return nil
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd := <-updates:
				if upd.Message == nil || upd.Message.Chat == nil ||
					upd.Message.Chat.ID != t.chatID || !upd.Message.IsCommand() {
					continue
				}
				switch upd.Message.Command() {
				case "status":
					t.Notify(ctx, Event{Kind: KindRunnerStatus, Text: status()})
				}
			}
		}
	}()
	return nil
}

func (t *Telegram) Stop() {
	if t != nil && t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
}
