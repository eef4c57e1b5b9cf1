package strategy

import (
	"time"

	"github.com/pkg/errors"
)

// RSIFilter — дополнительный фильтр входа по RSI. Границы включительные,
// nil означает отсутствие границы.
type RSIFilter struct {
	Enabled bool     `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Period  int      `mapstructure:"period" json:"period" yaml:"period"`
	Min     *float64 `mapstructure:"min" json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64 `mapstructure:"max" json:"max,omitempty" yaml:"max,omitempty"`
}

func (f RSIFilter) Passes(v float64) bool {
	if !f.Enabled {
		return true
	}
	if f.Min != nil && v < *f.Min {
		return false
	}
	if f.Max != nil && v > *f.Max {
		return false
	}
	return true
}

// Params — окна скользящих средних и фильтр.
type Params struct {
	ShortWindow int       `mapstructure:"short_window" json:"short_window" yaml:"short_window"`
	LongWindow  int       `mapstructure:"long_window" json:"long_window" yaml:"long_window"`
	Epsilon     float64   `mapstructure:"epsilon" json:"epsilon" yaml:"epsilon"`
	RSI         RSIFilter `mapstructure:"rsi" json:"rsi" yaml:"rsi"`
}

func DefaultParams() Params {
	return Params{
		ShortWindow: 30,
		LongWindow:  60,
		Epsilon:     1e-12,
		RSI:         RSIFilter{Period: 14},
	}
}

func (p Params) Validate() error {
	if p.ShortWindow < 1 {
		return errors.Errorf("short window must be >= 1, got %d", p.ShortWindow)
	}
	if p.ShortWindow >= p.LongWindow {
		return errors.Errorf("short window %d must be < long window %d", p.ShortWindow, p.LongWindow)
	}
	if p.Epsilon < 0 {
		return errors.Errorf("epsilon must be >= 0, got %g", p.Epsilon)
	}
	if p.RSI.Enabled {
		if p.RSI.Period < 1 {
			return errors.Errorf("rsi period must be >= 1, got %d", p.RSI.Period)
		}
		if p.RSI.Min != nil && p.RSI.Max != nil && *p.RSI.Min > *p.RSI.Max {
			return errors.Errorf("rsi min %g > rsi max %g", *p.RSI.Min, *p.RSI.Max)
		}
	}
	return nil
}

// Snapshot — состояние сигнала на последней свече. Не сохраняется,
// пересчитывается каждый цикл.
type Snapshot struct {
	IsCrossover     bool      `json:"is_crossover"`
	AlreadySignaled bool      `json:"already_signaled"`
	BarTs           time.Time `json:"bar_ts"`
	Price           float64   `json:"price"`
	ShortAvg        float64   `json:"short_avg"`
	LongAvg         float64   `json:"long_avg"`
	PrevShortAvg    *float64  `json:"prev_short_avg"`
	PrevLongAvg     *float64  `json:"prev_long_avg"`
	RSI             *float64  `json:"rsi,omitempty"`
	PassesFilter    bool      `json:"passes_filter"`
}

// Actionable — свежий золотой крест, который ещё не отрабатывали и который прошёл фильтр.
func (s Snapshot) Actionable() bool {
	return s.IsCrossover && !s.AlreadySignaled && s.PassesFilter
}
