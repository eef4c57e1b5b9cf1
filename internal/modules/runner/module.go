package runner

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"gc_bot/internal/config"
	"gc_bot/internal/exchange"
	"gc_bot/internal/execution"
	"gc_bot/internal/journal"
	"gc_bot/internal/ledger"
	"gc_bot/internal/models"
	"gc_bot/internal/notify"
	"gc_bot/internal/runner"
	"gc_bot/internal/state"
)

// Module собирает Runner и всё, что ему нужно локально: хранилище состояния,
// файловую блокировку, исполнитель и журнал событий.
func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			NewStore,
			NewLock,
			NewExecutor,
			NewJournal,
			New,
		),
		fx.Invoke(StartTelegram),
	)
}

func NewStore(cfg *config.Config, log *zap.Logger) *state.Store {
	return state.NewStore(cfg.Paths.State, log)
}

func NewLock(cfg *config.Config, s *state.Store, log *zap.Logger) state.Locker {
	return state.NewFileLock(s.LockPath(), cfg.Lock.Poll, log)
}

func NewExecutor(cfg *config.Config, c *exchange.Client, log *zap.Logger) execution.Executor {
	if cfg.Mode == models.ModeReal {
		return execution.NewLive(c, cfg.Fees, log)
	}
	return execution.NewPaper(cfg.Fees)
}

func NewJournal(lc fx.Lifecycle, cfg *config.Config) (*journal.Journal, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	j, err := journal.New(filepath.Clean(cfg.Paths.Journal), loc)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(j.Close))
	return j, nil
}

type Params struct {
	fx.In

	Cfg      *config.Config
	Data     runner.DataSource
	Lock     state.Locker
	Store    *state.Store
	Exec     execution.Executor
	Ledger   ledger.Ledger
	Notifier notify.Notifier
	Journal  *journal.Journal
	Observer runner.Observer `optional:"true"`
	Log      *zap.Logger
}

func New(p Params) (*runner.Runner, error) {
	rc, err := p.Cfg.RunnerConfig()
	if err != nil {
		return nil, err
	}
	return runner.New(rc, runner.Deps{
		Data:     p.Data,
		Lock:     p.Lock,
		Store:    p.Store,
		Exec:     p.Exec,
		Ledger:   p.Ledger,
		Notifier: p.Notifier,
		Journal:  p.Journal,
		Observer: p.Observer,
		Log:      p.Log,
	})
}

type telegramParams struct {
	fx.In

	LC       fx.Lifecycle
	Ctx      context.Context
	Telegram *notify.Telegram `optional:"true"`
	Store    *state.Store
	Cfg      *config.Config
}

// StartTelegram включает команду /status, если Telegram настроен.
func StartTelegram(p telegramParams) {
	if p.Telegram == nil {
		return
	}
	p.LC.Append(fx.StartHook(func() error {
		return p.Telegram.Start(p.Ctx, func() string { return StatusText(p.Cfg, p.Store) })
	}))
}

// StatusText — короткая сводка позиции для /status. Чтение без блокировки:
// файл меняется атомарной заменой.
func StatusText(cfg *config.Config, s *state.Store) string {
	st, err := s.Load()
	if err != nil {
		return fmt.Sprintf("%s [%s]: state unreadable: %v", cfg.Symbol, cfg.Mode, err)
	}
	msg := fmt.Sprintf("%s [%s]: %s, cum pnl %.2f", cfg.Symbol, cfg.Mode, st.Position, st.CumulativePnL)
	if st.IsLong() {
		msg += fmt.Sprintf("\nentry %.6f size %.6f tp %.6f sl %.6f", st.EntryPrice, st.Size, st.TakeProfit, st.StopLoss)
	}
	if st.LastSignaledBarTs != nil {
		msg += "\nlast signal " + st.LastSignaledBarTs.UTC().Format("2006-01-02 15:04")
	}
	return msg
}
