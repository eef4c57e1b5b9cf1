package strategy

import (
	"time"

	"gc_bot/internal/fault"
	"gc_bot/internal/models"
)

// Evaluate считает сигнал золотого креста по последним двум свечам ряда.
// lastSignaled — время свечи, по которой крест уже отработан (nil, если не было).
func Evaluate(bars []models.Bar, p Params, lastSignaled *time.Time) (Snapshot, error) {
	const op = "strategy.Evaluate"

	if err := p.Validate(); err != nil {
		return Snapshot{}, err
	}
	if len(bars) < p.LongWindow {
		return Snapshot{}, fault.Newf(fault.InsufficientHistory, op,
			"need %d bars, have %d", p.LongWindow, len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Ts.After(bars[i-1].Ts) {
			return Snapshot{}, fault.Newf(fault.DataUnavailable, op,
				"bars not ascending at %d: %s <= %s", i, bars[i].Ts, bars[i-1].Ts)
		}
	}

	closes := models.Closes(bars)
	prev := closes[:len(closes)-1]

	shortAvg, _ := SMA(closes, p.ShortWindow)
	longAvg, _ := SMA(closes, p.LongWindow)

	snap := Snapshot{
		BarTs:    bars[len(bars)-1].Ts,
		Price:    closes[len(closes)-1],
		ShortAvg: shortAvg,
		LongAvg:  longAvg,
	}

	// На первой свече, где длинная средняя определена, предыдущей ещё нет:
	// считаем, что короткая была не выше длинной.
	prevBelow := true
	if ps, ok := SMA(prev, p.ShortWindow); ok {
		snap.PrevShortAvg = &ps
	}
	if pl, ok := SMA(prev, p.LongWindow); ok {
		snap.PrevLongAvg = &pl
	}
	if snap.PrevShortAvg != nil && snap.PrevLongAvg != nil {
		prevBelow = *snap.PrevShortAvg <= *snap.PrevLongAvg+p.Epsilon
	}

	snap.IsCrossover = prevBelow && shortAvg > longAvg+p.Epsilon
	snap.AlreadySignaled = lastSignaled != nil && lastSignaled.Equal(snap.BarTs)

	snap.PassesFilter = true
	if p.RSI.Enabled {
		v := RSI(closes, p.RSI.Period)
		snap.RSI = &v
		snap.PassesFilter = p.RSI.Passes(v)
	}
	return snap, nil
}
