package service

import (
	"sync"
	"sync/atomic"
	"time"

	"gc_bot/internal/runner"
	"gc_bot/internal/state"
)

// LastCycle — то, что отдаём в /healthz про последний цикл.
type LastCycle struct {
	Stage      runner.Stage   `json:"stage"`
	FinishedAt time.Time      `json:"finished_at"`
	Error      string         `json:"error,omitempty"`
	Position   state.Position `json:"position,omitempty"`
}

// State — состояние процесса для health-эндпоинтов. Реализует runner.Observer.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	mu     sync.RWMutex
	last   LastCycle
	cycles int64
	failed int64

	now func() time.Time
}

var _ runner.Observer = (*State)(nil)

func NewState() *State {
	s := &State{startedAt: time.Now(), now: time.Now}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

// ObserveCycle: после первого завершённого цикла сервис считается готовым,
// даже если цикл закончился ошибкой (бот жив и продолжит по расписанию).
func (s *State) ObserveCycle(sum runner.CycleSummary, err error) {
	lc := LastCycle{Stage: sum.Stage, FinishedAt: sum.FinishedAt}
	if lc.FinishedAt.IsZero() {
		lc.FinishedAt = s.now()
	}
	if err != nil {
		lc.Error = err.Error()
	}
	if sum.State != nil {
		lc.Position = sum.State.Position
	}

	s.mu.Lock()
	s.last = lc
	s.cycles++
	if err != nil {
		s.failed++
	}
	s.mu.Unlock()

	s.SetReady(true)
}

func (s *State) Last() (LastCycle, int64, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.cycles, s.failed
}

func (s *State) Uptime() time.Duration { return s.now().Sub(s.startedAt) }
