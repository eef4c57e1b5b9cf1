package runner

import (
	"context"
	"testing"
	"time"

	"gc_bot/internal/fault"
	"gc_bot/internal/notify"
)

func TestNextRun(t *testing.T) {
	cases := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC), time.Date(2024, 7, 1, 10, 5, 0, 0, time.UTC)},
		{time.Date(2024, 7, 1, 10, 5, 0, 0, time.UTC), time.Date(2024, 7, 1, 11, 5, 0, 0, time.UTC)},
		{time.Date(2024, 7, 1, 10, 7, 30, 0, time.UTC), time.Date(2024, 7, 1, 11, 5, 0, 0, time.UTC)},
		{time.Date(2024, 7, 1, 23, 59, 0, 0, time.UTC), time.Date(2024, 7, 2, 0, 5, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := NextRun(tc.now, 5); !got.Equal(tc.want) {
			t.Fatalf("NextRun(%s) = %s, want %s", tc.now, got, tc.want)
		}
	}
}

type scriptedCycler struct {
	errs   []error
	calls  int
	cancel context.CancelFunc
	stopAt int
}

func (s *scriptedCycler) RunCycle(ctx context.Context) (CycleSummary, error) {
	s.calls++
	if s.calls == s.stopAt && s.cancel != nil {
		s.cancel()
	}
	var err error
	if s.calls <= len(s.errs) {
		err = s.errs[s.calls-1]
	}
	return CycleSummary{Stage: StageFlat}, err
}

func instantAfter(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func TestSchedulerKeepsGoingOnRecoverableErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &scriptedCycler{
		errs:   []error{fault.New(fault.DataUnavailable, "t", "down"), nil},
		cancel: cancel,
		stopAt: 3,
	}
	rec := &recorder{}
	s := NewScheduler(c, rec, 5, nil)
	s.after = instantAfter

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.calls != 3 {
		t.Fatalf("calls = %d", c.calls)
	}
	// started на каждый цикл, failed один раз, completed за остальные
	if rec.count(notify.KindRunnerStatus) != 6 {
		t.Fatalf("status notifications = %v", rec.kinds)
	}
}

func TestSchedulerStopsOnFatal(t *testing.T) {
	c := &scriptedCycler{errs: []error{nil, fault.New(fault.LockTimeout, "t", "held")}}
	s := NewScheduler(c, &recorder{}, 5, nil)
	s.after = instantAfter

	err := s.Run(context.Background())
	if !fault.Is(err, fault.LockTimeout) {
		t.Fatalf("want LockTimeout, got %v", err)
	}
	if c.calls != 2 {
		t.Fatalf("calls = %d", c.calls)
	}
}
