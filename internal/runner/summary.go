package runner

import (
	"time"

	"gc_bot/internal/models"
	"gc_bot/internal/state"
	"gc_bot/internal/strategy"
)

// Stage — где закончился цикл.
type Stage string

const (
	StageLock                Stage = "lock"
	StageLoad                Stage = "load"
	StageFetch               Stage = "fetch"
	StageInsufficientHistory Stage = "insufficient_history"
	StageSignal              Stage = "signal"
	StageOrderRejected       Stage = "order_rejected"
	StageOpened              Stage = "opened"
	StageClosed              Stage = "closed"
	StagePartialClose        Stage = "partial_close"
	StageHold                Stage = "hold"
	StageFlat                Stage = "flat"
)

type OrderSummary struct {
	models.Fill
	TakeProfit     float64 `json:"take_profit,omitempty"`
	StopLoss       float64 `json:"stop_loss,omitempty"`
	TargetNotional float64 `json:"target_notional,omitempty"`
}

// CycleSummary — итог одного цикла; cmd/once печатает его как JSON.
type CycleSummary struct {
	Stage      Stage                `json:"stage"`
	Symbol     string               `json:"symbol"`
	Mode       models.Mode          `json:"mode"`
	Signal     *strategy.Snapshot   `json:"signal,omitempty"`
	Order      *OrderSummary        `json:"order,omitempty"`
	Close      *models.TradeRecord  `json:"close,omitempty"`
	State      *state.PositionState `json:"state,omitempty"`
	Error      string               `json:"error,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}
