package state

import (
	"time"

	"gc_bot/internal/fault"
)

type Position string

const (
	Flat Position = "FLAT"
	Long Position = "LONG"
)

// PositionState — единственная позиция по символу, хранится в state.json.
// Поля entry_price/size/take_profit/stop_loss меняются только вместе.
type PositionState struct {
	Position             Position   `json:"position"`
	EntryPrice           float64    `json:"entry_price"`
	Size                 float64    `json:"size"`
	TakeProfit           float64    `json:"take_profit"`
	StopLoss             float64    `json:"stop_loss"`
	CumulativePnL        float64    `json:"cumulative_pnl"`
	LossStreak           int        `json:"loss_streak"`
	LastSignaledBarTs    *time.Time `json:"last_signaled_bar_ts"`
	EntryAt              *time.Time `json:"entry_at"`
	LastUpdatedAt        *time.Time `json:"last_updated_at"`
	LastDailySummaryDate string     `json:"last_daily_summary_date,omitempty"`
	// EntryFeeRemaining — нераспределённая комиссия входа после частичной продажи.
	EntryFeeRemaining    float64    `json:"entry_fee_remaining,omitempty"`
}

func Default() PositionState {
	return PositionState{Position: Flat}
}

// Entry — параметры открытия позиции по факту исполнения.
type Entry struct {
	Price      float64
	Size       float64
	TakeProfit float64
	StopLoss   float64
	At         time.Time
}

func (s PositionState) IsFlat() bool { return s.Position == Flat }
func (s PositionState) IsLong() bool { return s.Position == Long }

// Validate проверяет инварианты групп полей FLAT/LONG.
func (s PositionState) Validate() error {
	const op = "state.Validate"
	switch s.Position {
	case Flat:
		if s.EntryPrice != 0 || s.Size != 0 || s.TakeProfit != 0 || s.StopLoss != 0 || s.EntryFeeRemaining != 0 {
			return fault.Newf(fault.InvalidPositionInvariant, op,
				"FLAT with populated entry fields: entry=%g size=%g tp=%g sl=%g",
				s.EntryPrice, s.Size, s.TakeProfit, s.StopLoss)
		}
		if s.EntryAt != nil {
			return fault.New(fault.InvalidPositionInvariant, op, "FLAT with entry_at set")
		}
	case Long:
		if s.EntryPrice <= 0 || s.Size <= 0 || s.TakeProfit <= 0 || s.StopLoss <= 0 {
			return fault.Newf(fault.InvalidPositionInvariant, op,
				"LONG with missing entry fields: entry=%g size=%g tp=%g sl=%g",
				s.EntryPrice, s.Size, s.TakeProfit, s.StopLoss)
		}
	default:
		return fault.Newf(fault.InvalidPositionInvariant, op, "unexpected position %q", s.Position)
	}
	if s.LossStreak < 0 {
		return fault.Newf(fault.InvalidPositionInvariant, op, "negative loss streak %d", s.LossStreak)
	}
	return nil
}

// OpenLong переводит FLAT -> LONG. Из LONG открыть вторую позицию нельзя.
func (s *PositionState) OpenLong(e Entry) error {
	if s.Position != Flat {
		return fault.Newf(fault.InvalidPositionInvariant, "state.OpenLong",
			"cannot open while %s", s.Position)
	}
	next := *s
	at := e.At.UTC()
	next.Position = Long
	next.EntryPrice = e.Price
	next.Size = e.Size
	next.TakeProfit = e.TakeProfit
	next.StopLoss = e.StopLoss
	next.EntryAt = &at
	if err := next.Validate(); err != nil {
		return err
	}
	*s = next
	return nil
}

// CloseToFlat фиксирует pnl, обновляет серию убытков и сбрасывает поля LONG.
func (s *PositionState) CloseToFlat(pnl float64) error {
	if s.Position != Long {
		return fault.Newf(fault.InvalidPositionInvariant, "state.CloseToFlat",
			"cannot close while %s", s.Position)
	}
	s.CumulativePnL += pnl
	if pnl >= 0 {
		s.LossStreak = 0
	} else {
		s.LossStreak++
	}
	s.Position = Flat
	s.EntryPrice = 0
	s.Size = 0
	s.TakeProfit = 0
	s.StopLoss = 0
	s.EntryAt = nil
	s.EntryFeeRemaining = 0
	return nil
}

// ReduceLong фиксирует pnl проданной части и оставляет LONG с остатком.
// feeLeft — комиссия входа, приходящаяся на остаток. Серия убытков меняется
// только при полном закрытии.
func (s *PositionState) ReduceLong(sold, pnl, feeLeft float64) error {
	const op = "state.ReduceLong"
	if s.Position != Long {
		return fault.Newf(fault.InvalidPositionInvariant, op, "cannot reduce while %s", s.Position)
	}
	if sold <= 0 || sold >= s.Size {
		return fault.Newf(fault.InvalidPositionInvariant, op, "sold %g outside (0, %g)", sold, s.Size)
	}
	s.Size -= sold
	s.CumulativePnL += pnl
	s.EntryFeeRemaining = feeLeft
	return nil
}

// MarkSignaled запоминает свечу, по которой крест уже обработан.
func (s *PositionState) MarkSignaled(barTs time.Time) {
	ts := barTs.UTC()
	s.LastSignaledBarTs = &ts
}

func (s *PositionState) MarkDailySummary(date string) {
	s.LastDailySummaryDate = date
}
