package models

import "time"

type CloseReason string

const (
	ReasonTakeProfit CloseReason = "TAKE_PROFIT"
	ReasonStopLoss   CloseReason = "STOP_LOSS"
	ReasonEndOfData  CloseReason = "END_OF_DATA"
)

// TradeRecord — закрытая сделка. После записи в журнал не меняется.
type TradeRecord struct {
	Symbol       string      `json:"symbol" yaml:"symbol"`
	EntryTs      time.Time   `json:"entry_ts" yaml:"entry_ts"`
	ExitTs       time.Time   `json:"exit_ts" yaml:"exit_ts"`
	EntryPrice   float64     `json:"entry_price" yaml:"entry_price"`
	ExitPrice    float64     `json:"exit_price" yaml:"exit_price"`
	Size         float64     `json:"size" yaml:"size"`
	PnL          float64     `json:"pnl" yaml:"pnl"`
	Reason       CloseReason `json:"reason" yaml:"reason"`
	DurationBars int         `json:"duration_bars" yaml:"duration_bars"`
	EntryFee     float64     `json:"entry_fee" yaml:"entry_fee"`
	ExitFee      float64     `json:"exit_fee" yaml:"exit_fee"`
	Notional     float64     `json:"notional" yaml:"notional"`
}

// Return — доходность сделки относительно её номинала.
func (t TradeRecord) Return() float64 {
	if t.Notional == 0 {
		return 0
	}
	return t.PnL / t.Notional
}
