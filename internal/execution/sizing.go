package execution

import (
	"math"

	"github.com/pkg/errors"
)

// Sizing — сколько валюты котировки ставим на вход.
// Если NotionalFraction задан, номинал считается от текущего капитала.
type Sizing struct {
	NotionalQuote    float64  `mapstructure:"notional" json:"notional" yaml:"notional"`
	InitialCapital   float64  `mapstructure:"initial_capital" json:"initial_capital" yaml:"initial_capital"`
	NotionalFraction *float64 `mapstructure:"notional_fraction" json:"notional_fraction,omitempty" yaml:"notional_fraction,omitempty"`
}

func DefaultSizing() Sizing {
	return Sizing{NotionalQuote: 5000, InitialCapital: 100000}
}

// EffectiveNotional: доля от (initial_capital + cumulative_pnl), но не меньше нуля;
// если доля дала <= 0, берём статический номинал.
func (s Sizing) EffectiveNotional(cumulativePnL float64) float64 {
	if s.NotionalFraction == nil {
		return s.NotionalQuote
	}
	frac := *s.NotionalFraction
	n := math.Max((s.InitialCapital+cumulativePnL)*frac, 0)
	if n <= 0 {
		return s.NotionalQuote
	}
	return n
}

// DecideSize переводит номинал в количество инструмента.
func DecideSize(price, notional float64) (float64, error) {
	if price <= 0 || math.IsNaN(price) {
		return 0, errors.Errorf("price must be > 0, got %v", price)
	}
	if notional <= 0 || math.IsNaN(notional) {
		return 0, errors.Errorf("notional must be > 0, got %v", notional)
	}
	return notional / price, nil
}
