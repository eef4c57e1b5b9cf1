package execution

import "gc_bot/internal/models"

// Exits — фиксированные отступы TP/SL от цены входа (только long)
// и правило для свечи, задевшей оба уровня.
type Exits struct {
	TakeProfitPct    float64 `mapstructure:"take_profit_pct" json:"take_profit_pct" yaml:"take_profit_pct"`
	StopLossPct      float64 `mapstructure:"stop_loss_pct" json:"stop_loss_pct" yaml:"stop_loss_pct"`
	PreferTakeProfit bool    `mapstructure:"prefer_take_profit" json:"prefer_take_profit" yaml:"prefer_take_profit"`
}

func DefaultExits() Exits {
	return Exits{TakeProfitPct: 0.02, StopLossPct: 0.03, PreferTakeProfit: true}
}

// Levels: tp выше входа, sl ниже.
func (e Exits) Levels(fillPrice float64) (tp, sl float64) {
	return fillPrice * (1 + e.TakeProfitPct), fillPrice * (1 - e.StopLossPct)
}

// CheckExit — проверка по одной цене (живой режим видит только последнюю цену).
func CheckExit(price, tp, sl float64) (models.CloseReason, bool) {
	if price >= tp {
		return models.ReasonTakeProfit, true
	}
	if price <= sl {
		return models.ReasonStopLoss, true
	}
	return "", false
}

// CheckExitIntrabar — проверка по high/low свечи. Возвращает причину и уровень,
// по которому считается выход. Если задеты оба уровня, решает preferTP.
func CheckExitIntrabar(high, low, tp, sl float64, preferTP bool) (models.CloseReason, float64, bool) {
	hitTP := high >= tp
	hitSL := low <= sl
	switch {
	case hitTP && hitSL:
		if preferTP {
			return models.ReasonTakeProfit, tp, true
		}
		return models.ReasonStopLoss, sl, true
	case hitTP:
		return models.ReasonTakeProfit, tp, true
	case hitSL:
		return models.ReasonStopLoss, sl, true
	}
	return "", 0, false
}
