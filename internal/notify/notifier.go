package notify

import (
	"context"

	"go.uber.org/zap"
)

type Kind string

const (
	KindGC           Kind = "gc"
	KindEntry        Kind = "entry"
	KindClose        Kind = "close"
	KindError        Kind = "error"
	KindDailySummary Kind = "daily_summary"
	KindRunnerStatus Kind = "runner_status"
)

// Block — блок Slack Block Kit как есть.
type Block map[string]any

// Event — одно уведомление: короткий текст и необязательные блоки для Slack.
type Event struct {
	Kind   Kind
	Text   string
	Blocks []Block
}

// Notifier доставляет уведомления по принципу best effort:
// false означает, что доставить не удалось, но цикл от этого не падает.
type Notifier interface {
	Notify(ctx context.Context, ev Event) bool
}

// Log — уведомления только в лог (когда внешние каналы не настроены).
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log.Named("notify")}
}

func (l *Log) Notify(ctx context.Context, ev Event) bool {
	l.log.Info(ev.Text, zap.String("kind", string(ev.Kind)))
	return true
}

// Multi рассылает событие во все каналы; true, только если доставили все.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) bool {
	ok := true
	for _, n := range m {
		if n == nil {
			continue
		}
		if !n.Notify(ctx, ev) {
			ok = false
		}
	}
	return ok
}
