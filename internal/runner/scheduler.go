package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gc_bot/internal/fault"
	"gc_bot/internal/notify"
)

type Cycler interface {
	RunCycle(ctx context.Context) (CycleSummary, error)
}

// Scheduler запускает цикл сразу при старте, затем каждый час в HH:minute.
// Циклы идут строго последовательно в одной горутине.
type Scheduler struct {
	cycler   Cycler
	notifier notify.Notifier
	minute   int
	log      *zap.Logger

	now   func() time.Time
	after func(d time.Duration) <-chan time.Time
}

func NewScheduler(c Cycler, n notify.Notifier, minute int, log *zap.Logger) *Scheduler {
	if minute < 0 || minute > 59 {
		minute = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	if n == nil {
		n = notify.NewLog(log)
	}
	return &Scheduler{cycler: c, notifier: n, minute: minute, log: log.Named("scheduler"), now: time.Now, after: time.After}
}

// NextRun — ближайший момент HH:minute:00 строго после now.
func NextRun(now time.Time, minute int) time.Time {
	next := now.Truncate(time.Hour).Add(time.Duration(minute) * time.Minute)
	if !next.After(now) {
		next = next.Add(time.Hour)
	}
	return next
}

// Run блокируется до отмены ctx (nil) или фатальной ошибки цикла (она и возвращается).
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("[SCHEDULER] started", zap.Int("minute", s.minute))
	for {
		if err := s.runJob(ctx); err != nil {
			if ctx.Err() != nil {
				return nil // остановка процесса, а не сбой
			}
			return err
		}
		if ctx.Err() != nil {
			s.log.Info("[SCHEDULER] stopped")
			return nil
		}

		next := NextRun(s.now(), s.minute)
		s.log.Info("[SCHEDULER] next run", zap.Time("at", next))
		select {
		case <-ctx.Done():
			s.log.Info("[SCHEDULER] stopped")
			return nil
		case <-s.after(next.Sub(s.now())):
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context) error {
	s.notifier.Notify(ctx, notify.RunnerStatus("GC Bot run started", "scheduled cycle", ""))

	sum, err := s.cycler.RunCycle(ctx)
	if err != nil {
		kind := fault.KindOf(err)
		s.notifier.Notify(ctx, notify.RunnerStatus("GC Bot run failed",
			fmt.Sprintf("stage=%s kind=%s: %v", sum.Stage, kind, err), ":x:"))
		if fault.IsFatal(err) {
			s.log.Error("[SCHEDULER] fatal cycle error, stopping", zap.String("kind", kind.String()), zap.Error(err))
			return err
		}
		s.log.Warn("[SCHEDULER] cycle failed", zap.String("kind", kind.String()), zap.Error(err))
		return nil
	}

	msg := fmt.Sprintf("stage=%s", sum.Stage)
	if sum.Signal != nil && sum.Signal.RSI != nil {
		msg += fmt.Sprintf(", passes_rsi=%t", sum.Signal.PassesFilter)
	}
	s.notifier.Notify(ctx, notify.RunnerStatus("GC Bot run completed", msg, ":white_check_mark:"))
	return nil
}
