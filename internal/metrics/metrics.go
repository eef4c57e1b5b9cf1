package metrics

import (
	"math"
	"time"

	"gc_bot/internal/models"
)

// MaxDrawdown — наибольшая просадка кривой от предыдущего максимума, всегда >= 0.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	worst := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if dd := v - peak; dd < worst {
			worst = dd
		}
	}
	return math.Abs(worst)
}

// MaxDrawdownPct — просадка в процентах от начального капитала.
func MaxDrawdownPct(equity []float64, initialCapital float64) float64 {
	if initialCapital <= 0 {
		return 0
	}
	return MaxDrawdown(equity) / initialCapital * 100
}

// MeanStd — среднее и выборочное стандартное отклонение (n-1).
func MeanStd(xs []float64) (mean, std float64) {
	n := len(xs)
	if n == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(n)
	if n < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(n-1))
}

// Sharpe по доходностям сделок: mean/std*sqrt(n). 0 при n < 2 или std == 0.
func Sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := MeanStd(returns)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(float64(len(returns)))
}

// WinRate в процентах. Сделка с pnl >= 0 считается выигрышной.
func WinRate(trades []models.TradeRecord) (wins, losses int, rate float64) {
	for _, t := range trades {
		if t.PnL >= 0 {
			wins++
		} else {
			losses++
		}
	}
	if n := wins + losses; n > 0 {
		rate = float64(wins) / float64(n) * 100
	}
	return wins, losses, rate
}

// Equity — накопленный pnl после каждой сделки.
func Equity(trades []models.TradeRecord) []float64 {
	out := make([]float64, len(trades))
	var cum float64
	for i, t := range trades {
		cum += t.PnL
		out[i] = cum
	}
	return out
}

// Daily — итоги дня.
type Daily struct {
	Date    string  `json:"date"`
	Trades  int     `json:"trades"`
	Win     int     `json:"win"`
	Loss    int     `json:"loss"`
	WinRate float64 `json:"win_rate"`
	PnLDay  float64 `json:"pnl_day"`
	PnLCum  float64 `json:"pnl_cum"`
	MaxDD   float64 `json:"max_dd"`
}

// DailySummary считает итоги по сделкам, закрытым в день day (в зоне loc).
// PnLCum и MaxDD заполняет вызывающий: они зависят от всей истории.
func DailySummary(trades []models.TradeRecord, day time.Time, loc *time.Location) Daily {
	if loc == nil {
		loc = time.UTC
	}
	date := day.In(loc).Format(time.DateOnly)

	var todays []models.TradeRecord
	for _, t := range trades {
		if t.ExitTs.In(loc).Format(time.DateOnly) == date {
			todays = append(todays, t)
		}
	}

	d := Daily{Date: date, Trades: len(todays)}
	d.Win, d.Loss, d.WinRate = WinRate(todays)
	for _, t := range todays {
		d.PnLDay += t.PnL
	}
	return d
}
