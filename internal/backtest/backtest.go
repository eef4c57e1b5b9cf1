package backtest

import (
	"time"

	"github.com/pkg/errors"

	"gc_bot/internal/execution"
	"gc_bot/internal/fault"
	"gc_bot/internal/metrics"
	"gc_bot/internal/models"
	"gc_bot/internal/strategy"
)

// Config — параметры прогона. Логика входа и выхода та же, что у runner.
type Config struct {
	Symbol         string
	Signal         strategy.Params
	Sizing         execution.Sizing
	Exits          execution.Exits
	Costs          execution.Costs
	ForceCloseLast bool
	// Lookback > 0 ограничивает окно сигнала последними N свечами префикса,
	// как в живом режиме с limit. 0 — весь префикс.
	Lookback int
}

func DefaultConfig() Config {
	return Config{
		Symbol:         "BTC-USDT",
		Signal:         strategy.DefaultParams(),
		Sizing:         execution.DefaultSizing(),
		Exits:          execution.DefaultExits(),
		Costs:          execution.DefaultCosts(),
		ForceCloseLast: true,
	}
}

type EquityPoint struct {
	Ts     time.Time `json:"ts" yaml:"ts"`
	PnLCum float64   `json:"pnl_cum" yaml:"pnl_cum"`
}

type Summary struct {
	Trades           int                `json:"trades" yaml:"trades"`
	Win              int                `json:"win" yaml:"win"`
	Loss             int                `json:"loss" yaml:"loss"`
	WinRate          float64            `json:"win_rate" yaml:"win_rate"`
	PnLTotal         float64            `json:"pnl_total" yaml:"pnl_total"`
	PnLPerTrade      float64            `json:"pnl_per_trade" yaml:"pnl_per_trade"`
	MaxDrawdown      float64            `json:"max_drawdown" yaml:"max_drawdown"`
	MaxDrawdownPct   float64            `json:"max_drawdown_pct" yaml:"max_drawdown_pct"`
	CapitalInitial   float64            `json:"capital_initial" yaml:"capital_initial"`
	CapitalFinal     float64            `json:"capital_final" yaml:"capital_final"`
	TotalReturnPct   float64            `json:"total_return_pct" yaml:"total_return_pct"`
	Sharpe           float64            `json:"sharpe" yaml:"sharpe"`
	MeanTradeReturn  float64            `json:"mean_trade_return" yaml:"mean_trade_return"`
	TradeReturnStd   float64            `json:"trade_return_std" yaml:"trade_return_std"`
	NotionalFraction *float64           `json:"notional_fraction" yaml:"notional_fraction"`
	NotionalStatic   float64            `json:"notional_static" yaml:"notional_static"`
	RSIFilter        strategy.RSIFilter `json:"rsi_filter" yaml:"rsi_filter"`
}

type Result struct {
	Trades []models.TradeRecord `json:"trades" yaml:"trades"`
	Equity []EquityPoint        `json:"equity" yaml:"equity"`
	// EndOpen — позиция осталась открытой (вход на последней свече или ForceCloseLast=false).
	EndOpen bool    `json:"end_open" yaml:"end_open"`
	Summary Summary `json:"summary" yaml:"summary"`
}

type openTrade struct {
	idx      int
	ts       time.Time
	price    float64
	size     float64
	notional float64
	fee      float64
	tp, sl   float64
}

// Run проходит свечи по одной. На каждой свече сигнал считается только по
// префиксу bars[:idx+1], так что будущие данные в решение не попадают.
func Run(bars []models.Bar, cfg Config) (Result, error) {
	const op = "backtest.Run"

	if err := cfg.Signal.Validate(); err != nil {
		return Result{}, err
	}
	if len(bars) < cfg.Signal.LongWindow {
		return Result{}, fault.Newf(fault.InsufficientHistory, op,
			"need %d bars, have %d", cfg.Signal.LongWindow, len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Ts.After(bars[i-1].Ts) {
			return Result{}, fault.Newf(fault.DataUnavailable, op,
				"bars not ascending at %d: %s <= %s", i, bars[i].Ts, bars[i-1].Ts)
		}
	}

	// как и в runner: окно должно содержать предыдущую длинную среднюю
	if cfg.Lookback > 0 && cfg.Lookback <= cfg.Signal.LongWindow {
		cfg.Lookback = cfg.Signal.LongWindow + 1
	}

	var (
		res          Result
		cum          float64
		lastSignaled *time.Time
		pos          *openTrade
	)
	last := len(bars) - 1

	for idx := 1; idx <= last; idx++ {
		bar := bars[idx]

		from := 0
		if cfg.Lookback > 0 && idx+1 > cfg.Lookback {
			from = idx + 1 - cfg.Lookback
		}
		snap, err := strategy.Evaluate(bars[from:idx+1], cfg.Signal, lastSignaled)
		if err != nil {
			if fault.Is(err, fault.InsufficientHistory) {
				continue
			}
			return Result{}, errors.Wrapf(err, "evaluate at %s", bar.Ts)
		}
		actionable := snap.Actionable()
		if snap.IsCrossover {
			ts := snap.BarTs
			lastSignaled = &ts
		}

		if pos == nil {
			if !actionable {
				continue
			}
			notional := cfg.Sizing.EffectiveNotional(cum)
			size, err := execution.DecideSize(bar.Close, notional)
			if err != nil {
				continue
			}
			price := execution.FillPrice(models.SideBuy, bar.Close, cfg.Costs.SlippageBps)
			tp, sl := cfg.Exits.Levels(price)
			pos = &openTrade{
				idx:      idx,
				ts:       bar.Ts,
				price:    price,
				size:     size,
				notional: notional,
				fee:      execution.FeeFor(price, size, cfg.Costs.TakerFeeBps),
				tp:       tp,
				sl:       sl,
			}
			continue
		}

		// на свече входа выхода нет
		if idx <= pos.idx {
			continue
		}

		reason, ref, hit := execution.CheckExitIntrabar(bar.High, bar.Low, pos.tp, pos.sl, cfg.Exits.PreferTakeProfit)
		if !hit && cfg.ForceCloseLast && idx == last {
			reason, ref, hit = models.ReasonEndOfData, bar.Close, true
		}
		if !hit {
			continue
		}

		exit := execution.FillPrice(models.SideSell, ref, cfg.Costs.SlippageBps)
		exitFee := execution.FeeFor(exit, pos.size, cfg.Costs.TakerFeeBps)
		pnl := (exit-pos.price)*pos.size - pos.fee - exitFee
		cum += pnl

		res.Trades = append(res.Trades, models.TradeRecord{
			Symbol:       cfg.Symbol,
			EntryTs:      pos.ts,
			ExitTs:       bar.Ts,
			EntryPrice:   pos.price,
			ExitPrice:    exit,
			Size:         pos.size,
			PnL:          pnl,
			Reason:       reason,
			DurationBars: idx - pos.idx,
			EntryFee:     pos.fee,
			ExitFee:      exitFee,
			Notional:     pos.notional,
		})
		res.Equity = append(res.Equity, EquityPoint{Ts: bar.Ts, PnLCum: cum})
		pos = nil
	}

	res.EndOpen = pos != nil
	res.Summary = Summarize(res.Trades, cfg)
	return res, nil
}

// Summarize — сводка по закрытым сделкам.
func Summarize(trades []models.TradeRecord, cfg Config) Summary {
	s := Summary{
		Trades:           len(trades),
		CapitalInitial:   cfg.Sizing.InitialCapital,
		NotionalFraction: cfg.Sizing.NotionalFraction,
		NotionalStatic:   cfg.Sizing.NotionalQuote,
		RSIFilter:        cfg.Signal.RSI,
	}
	s.Win, s.Loss, s.WinRate = metrics.WinRate(trades)

	returns := make([]float64, 0, len(trades))
	for _, t := range trades {
		s.PnLTotal += t.PnL
		if t.Notional > 0 {
			returns = append(returns, t.Return())
		}
	}
	if s.Trades > 0 {
		s.PnLPerTrade = s.PnLTotal / float64(s.Trades)
	}

	equity := metrics.Equity(trades)
	s.MaxDrawdown = metrics.MaxDrawdown(equity)
	s.MaxDrawdownPct = metrics.MaxDrawdownPct(equity, s.CapitalInitial)
	s.CapitalFinal = s.CapitalInitial + s.PnLTotal
	if s.CapitalInitial > 0 {
		s.TotalReturnPct = s.PnLTotal / s.CapitalInitial * 100
	}
	s.MeanTradeReturn, s.TradeReturnStd = metrics.MeanStd(returns)
	s.Sharpe = metrics.Sharpe(returns)
	return s
}
