package runner

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gc_bot/internal/execution"
	"gc_bot/internal/fault"
	"gc_bot/internal/helper"
	"gc_bot/internal/ledger"
	"gc_bot/internal/metrics"
	"gc_bot/internal/models"
	"gc_bot/internal/notify"
	"gc_bot/internal/state"
	"gc_bot/internal/strategy"
)

// DataSource — откуда берём закрытые свечи (биржа или файл).
type DataSource interface {
	FetchLatest(ctx context.Context, symbol, timeframe string, limit int) ([]models.Bar, error)
}

type StateStore interface {
	Load() (state.PositionState, error)
	Save(st *state.PositionState) error
}

type Journal interface {
	Write(event string, fields ...zap.Field) error
}

// Observer получает итог каждого цикла (health-эндпоинт).
type Observer interface {
	ObserveCycle(sum CycleSummary, err error)
}

type DailySummaryConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Hour    int  `mapstructure:"hour" json:"hour" yaml:"hour"` // локальный час, начиная с которого шлём итоги
}

type Config struct {
	Symbol       string
	Timeframe    string
	Limit        int
	Mode         models.Mode
	Signal       strategy.Params
	Sizing       execution.Sizing
	Exits        execution.Exits
	Costs        execution.Costs
	LockTimeout  time.Duration
	Location     *time.Location
	DailySummary DailySummaryConfig
	MetricsPath  string
}

type Deps struct {
	Data     DataSource
	Lock     state.Locker
	Store    StateStore
	Exec     execution.Executor
	Ledger   ledger.Ledger
	Notifier notify.Notifier
	Journal  Journal
	Observer Observer
	Log      *zap.Logger
}

// Runner — один цикл сверки: сигнал -> сделка -> состояние.
type Runner struct {
	cfg    Config
	period time.Duration

	data     DataSource
	lock     state.Locker
	store    StateStore
	exec     execution.Executor
	ledger   ledger.Ledger
	notifier notify.Notifier
	journal  Journal
	observer Observer
	log      *zap.Logger

	now func() time.Time
}

func New(cfg Config, d Deps) (*Runner, error) {
	if d.Data == nil || d.Lock == nil || d.Store == nil || d.Exec == nil || d.Ledger == nil {
		return nil, errors.New("runner: data, lock, store, executor and ledger are required")
	}
	if err := cfg.Signal.Validate(); err != nil {
		return nil, errors.Wrap(err, "runner signal params")
	}
	period, err := helper.TimeframeDuration(cfg.Timeframe)
	if err != nil {
		return nil, errors.Wrap(err, "runner timeframe")
	}
	// окно ровно в long свечей не даёт предыдущей длинной средней,
	// и каждый цикл выглядел бы как первый крест
	if cfg.Limit <= cfg.Signal.LongWindow {
		cfg.Limit = cfg.Signal.LongWindow + 1
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = state.DefaultLockTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if d.Notifier == nil {
		d.Notifier = notify.NewLog(d.Log)
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		period:   period,
		data:     d.Data,
		lock:     d.Lock,
		store:    d.Store,
		exec:     d.Exec,
		ledger:   d.Ledger,
		notifier: d.Notifier,
		journal:  d.Journal,
		observer: d.Observer,
		log:      d.Log.Named("runner"),
		now:      time.Now,
	}, nil
}

func (r *Runner) Config() Config { return r.cfg }

// RunCycle выполняет ровно один цикл. За цикл возможно не больше одного
// действия с позицией: открытие или закрытие. Ошибки классифицируются через fault;
// при InsufficientHistory/DataUnavailable/OrderRejected состояние не меняется.
func (r *Runner) RunCycle(ctx context.Context) (sum CycleSummary, err error) {
	const op = "runner.RunCycle"

	span, ctx := opentracing.StartSpanFromContext(ctx, "runner.cycle")
	defer span.Finish()
	span.SetTag("symbol", r.cfg.Symbol)
	span.SetTag("mode", string(r.cfg.Mode))

	sum = CycleSummary{Symbol: r.cfg.Symbol, Mode: r.cfg.Mode, StartedAt: r.now().UTC()}
	r.record("cycle_start", zap.String("symbol", r.cfg.Symbol), zap.String("mode", string(r.cfg.Mode)))

	defer func() {
		sum.FinishedAt = r.now().UTC()
		span.SetTag("stage", string(sum.Stage))
		fields := []zap.Field{zap.String("stage", string(sum.Stage)), zap.Duration("took", sum.FinishedAt.Sub(sum.StartedAt))}
		if err != nil {
			sum.Error = err.Error()
			ext.Error.Set(span, true)
			span.LogKV("event", "error", "kind", fault.KindOf(err).String(), "message", err.Error())
			fields = append(fields, zap.String("kind", fault.KindOf(err).String()), zap.Error(err))
			r.log.Warn("[RUNNER] cycle aborted", fields...)
			r.notifier.Notify(ctx, notify.Error(string(sum.Stage), err.Error()))
		} else {
			r.log.Info("[RUNNER] cycle done", fields...)
		}
		r.record("cycle_end", fields...)
		if r.observer != nil {
			r.observer.ObserveCycle(sum, err)
		}
	}()

	// 1) лок на файл состояния
	sctx, stageSpan := r.stage(ctx, &sum, StageLock)
	token, err := r.lock.TryAcquire(sctx, r.cfg.LockTimeout)
	stageSpan.Finish()
	if err != nil {
		return sum, err
	}
	defer func() {
		if rerr := r.lock.Release(token); rerr != nil {
			r.log.Error("[RUNNER] lock release failed", zap.Error(rerr))
		}
	}()

	// 2) состояние
	_, stageSpan = r.stage(ctx, &sum, StageLoad)
	st, err := r.store.Load()
	stageSpan.Finish()
	if err != nil {
		return sum, err
	}

	// 3) свечи
	sctx, stageSpan = r.stage(ctx, &sum, StageFetch)
	bars, err := r.data.FetchLatest(sctx, r.cfg.Symbol, r.cfg.Timeframe, r.cfg.Limit)
	stageSpan.Finish()
	if err != nil {
		if fault.KindOf(err) == fault.Unknown {
			err = fault.Wrap(fault.DataUnavailable, op, err)
		}
		return sum, err
	}

	// 4) истории должно хватать на длинное окно
	if len(bars) < r.cfg.Signal.LongWindow {
		sum.Stage = StageInsufficientHistory
		return sum, fault.Newf(fault.InsufficientHistory, op,
			"have %d bars, need %d", len(bars), r.cfg.Signal.LongWindow)
	}

	// 5) сигнал
	_, stageSpan = r.stage(ctx, &sum, StageSignal)
	snap, err := strategy.Evaluate(bars, r.cfg.Signal, st.LastSignaledBarTs)
	stageSpan.Finish()
	if err != nil {
		if fault.Is(err, fault.InsufficientHistory) {
			sum.Stage = StageInsufficientHistory
		}
		return sum, err
	}
	sum.Signal = &snap
	r.record("signal", signalFields(snap)...)
	if snap.Actionable() {
		r.notifier.Notify(ctx, notify.GC(snap.BarTs, r.cfg.Location, snap.Price, snap.ShortAvg, snap.LongAvg,
			r.cfg.Signal.ShortWindow, r.cfg.Signal.LongWindow))
	}

	// 6-7) одно действие с позицией
	switch {
	case st.IsFlat() && snap.Actionable():
		if err := r.open(ctx, &st, snap, &sum); err != nil {
			if fault.Is(err, fault.OrderRejected) {
				sum.Stage = StageOrderRejected
				r.record("order_rejected", zap.String("side", string(models.SideBuy)), zap.Error(err))
			}
			return sum, err
		}
		sum.Stage = StageOpened
	case st.IsLong():
		stage, err := r.maybeClose(ctx, &st, snap, &sum)
		if err != nil {
			if fault.Is(err, fault.OrderRejected) {
				sum.Stage = StageOrderRejected
				r.record("order_rejected", zap.String("side", string(models.SideSell)), zap.Error(err))
			}
			return sum, err
		}
		sum.Stage = stage
	default:
		sum.Stage = StageFlat
	}

	// 8) крест запоминаем, даже если он не прошёл фильтр или позиция уже была
	if snap.IsCrossover {
		st.MarkSignaled(snap.BarTs)
	}

	// 9) дневные итоги
	r.dailySummary(ctx, &st)

	// 10) сохранение в той же критической секции
	if err := r.store.Save(&st); err != nil {
		return sum, err
	}
	sum.State = &st
	return sum, nil
}

func (r *Runner) stage(ctx context.Context, sum *CycleSummary, s Stage) (context.Context, opentracing.Span) {
	sum.Stage = s
	span, sctx := opentracing.StartSpanFromContext(ctx, "runner."+string(s))
	return sctx, span
}

func (r *Runner) open(ctx context.Context, st *state.PositionState, snap strategy.Snapshot, sum *CycleSummary) error {
	const op = "runner.open"

	notional := r.cfg.Sizing.EffectiveNotional(st.CumulativePnL)
	size, err := execution.DecideSize(snap.Price, notional)
	if err != nil {
		return fault.Wrap(fault.OrderRejected, op, err)
	}

	fill, err := r.exec.Buy(ctx, r.cfg.Symbol, size, snap.Price)
	if err != nil {
		return err
	}
	tp, sl := r.cfg.Exits.Levels(fill.Price)
	if err := st.OpenLong(state.Entry{Price: fill.Price, Size: fill.Quantity, TakeProfit: tp, StopLoss: sl, At: fill.Ts}); err != nil {
		return err
	}
	sum.Order = &OrderSummary{Fill: fill, TakeProfit: tp, StopLoss: sl, TargetNotional: notional}

	// ордер уже исполнен: сбой журнала сделок не должен откатывать позицию
	if err := r.ledger.AppendFill(ctx, fill); err != nil {
		r.log.Error("[RUNNER] ledger append fill failed", zap.String("order_id", fill.OrderID), zap.Error(err))
	}
	r.record("entry",
		zap.String("order_id", fill.OrderID), zap.Float64("price", fill.Price), zap.Float64("size", fill.Quantity),
		zap.Float64("tp", tp), zap.Float64("sl", sl), zap.Float64("notional", notional), zap.Float64("fee", fill.Fee))
	r.log.Info("[RUNNER] opened LONG",
		zap.Float64("price", fill.Price), zap.Float64("size", fill.Quantity), zap.Float64("tp", tp), zap.Float64("sl", sl))
	r.notifier.Notify(ctx, notify.Entry(r.cfg.Symbol, fill.Price, fill.Quantity, tp, sl))
	return nil
}

// sizeTolerance — относительная погрешность, в пределах которой продажа
// считается продажей всего объёма.
const sizeTolerance = 1e-9

// maybeClose проверяет TP/SL по последнему закрытию и продаёт весь объём.
// Если биржа исполнила меньше, позиция остаётся LONG с остатком, а комиссия
// входа делится пропорционально проданному.
func (r *Runner) maybeClose(ctx context.Context, st *state.PositionState, snap strategy.Snapshot, sum *CycleSummary) (Stage, error) {
	reason, hit := execution.CheckExit(snap.Price, st.TakeProfit, st.StopLoss)
	if !hit {
		return StageHold, nil
	}

	fill, err := r.exec.Sell(ctx, r.cfg.Symbol, st.Size, snap.Price)
	if err != nil {
		return StageHold, err
	}
	sold := fill.Quantity
	if sold <= 0 || sold > st.Size {
		sold = st.Size
	}
	partial := st.Size-sold > st.Size*sizeTolerance
	if !partial {
		sold = st.Size
	}

	entryFee := r.entryFee(ctx, st)
	feeLeft := entryFee * (st.Size - sold) / st.Size
	entryFee -= feeLeft
	pnl := (fill.Price-st.EntryPrice)*sold - entryFee - fill.Fee

	rec := models.TradeRecord{
		Symbol:     r.cfg.Symbol,
		ExitTs:     fill.Ts,
		EntryPrice: st.EntryPrice,
		ExitPrice:  fill.Price,
		Size:       sold,
		PnL:        pnl,
		Reason:     reason,
		EntryFee:   entryFee,
		ExitFee:    fill.Fee,
		Notional:   st.EntryPrice * sold,
	}
	if st.EntryAt != nil {
		rec.EntryTs = *st.EntryAt
		rec.DurationBars = int(fill.Ts.Sub(*st.EntryAt) / r.period)
	}

	stage := StageClosed
	if partial {
		r.log.Warn("[RUNNER] sell filled partially, keeping remainder LONG",
			zap.String("order_id", fill.OrderID), zap.Float64("requested", st.Size), zap.Float64("filled", sold))
		if err := st.ReduceLong(sold, pnl, feeLeft); err != nil {
			return StageHold, err
		}
		stage = StagePartialClose
	} else if err := st.CloseToFlat(pnl); err != nil {
		return StageHold, err
	}
	sum.Order = &OrderSummary{Fill: fill}
	sum.Close = &rec

	if err := r.ledger.AppendFill(ctx, fill); err != nil {
		r.log.Error("[RUNNER] ledger append fill failed", zap.String("order_id", fill.OrderID), zap.Error(err))
	}
	if err := r.ledger.AppendTrade(ctx, rec); err != nil {
		r.log.Error("[RUNNER] ledger append trade failed", zap.Error(err))
	}
	r.record("close",
		zap.String("reason", string(reason)), zap.Float64("price", fill.Price), zap.Float64("size", sold),
		zap.Bool("partial", partial), zap.Float64("remaining", st.Size),
		zap.Float64("pnl", pnl), zap.Float64("pnl_cum", st.CumulativePnL), zap.Int("duration_bars", rec.DurationBars))
	r.log.Info("[RUNNER] closed LONG",
		zap.String("reason", string(reason)), zap.Bool("partial", partial),
		zap.Float64("pnl", pnl), zap.Float64("pnl_cum", st.CumulativePnL))
	r.notifier.Notify(ctx, notify.Close(reason, fill.Price, sold, pnl, st.CumulativePnL))
	return stage, nil
}

// entryFee — комиссия входа на текущий объём: остаток после частичной продажи
// или последняя покупка из журнала сделок.
func (r *Runner) entryFee(ctx context.Context, st *state.PositionState) float64 {
	if st.EntryFeeRemaining > 0 {
		return st.EntryFeeRemaining
	}
	fee, err := r.ledger.LastBuyFee(ctx, r.cfg.Symbol)
	if err != nil {
		fee = execution.FeeFor(st.EntryPrice, st.Size, r.cfg.Costs.TakerFeeBps)
		r.log.Warn("[RUNNER] last buy fee unavailable, using fee model", zap.Float64("fee", fee), zap.Error(err))
	}
	return fee
}

// dailySummary раз в день (после daily_summary.hour по локальному времени)
// пишет строку metrics.csv и шлёт итоги. Неудача не ломает цикл: попробуем в следующий.
func (r *Runner) dailySummary(ctx context.Context, st *state.PositionState) {
	if !r.cfg.DailySummary.Enabled {
		return
	}
	now := r.now().In(r.cfg.Location)
	if now.Hour() < r.cfg.DailySummary.Hour {
		return
	}
	today := now.Format(time.DateOnly)
	if st.LastDailySummaryDate == today {
		return
	}

	trades, err := r.ledger.Trades(ctx, r.cfg.Symbol, time.Time{})
	if err != nil {
		r.log.Error("[RUNNER] daily summary: read trades", zap.Error(err))
		return
	}
	d := metrics.DailySummary(trades, now, r.cfg.Location)
	d.PnLCum = st.CumulativePnL
	d.MaxDD = metrics.MaxDrawdown(metrics.Equity(trades))

	if r.cfg.MetricsPath != "" {
		if err := metrics.WriteDaily(r.cfg.MetricsPath, d); err != nil {
			r.log.Error("[RUNNER] daily summary: write metrics", zap.Error(err))
			return
		}
	}
	r.record("daily_metrics",
		zap.String("date", d.Date), zap.Int("trades", d.Trades), zap.Int("win", d.Win), zap.Int("loss", d.Loss),
		zap.Float64("win_rate", d.WinRate), zap.Float64("pnl_day", d.PnLDay), zap.Float64("pnl_cum", d.PnLCum),
		zap.Float64("max_dd", d.MaxDD))
	r.notifier.Notify(ctx, notify.DailySummary(d, st.CumulativePnL))
	st.MarkDailySummary(today)
}

func (r *Runner) record(event string, fields ...zap.Field) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Write(event, fields...); err != nil {
		r.log.Warn("[RUNNER] journal write failed", zap.String("event", event), zap.Error(err))
	}
}

func signalFields(s strategy.Snapshot) []zap.Field {
	fields := []zap.Field{
		zap.Bool("is_crossover", s.IsCrossover),
		zap.Bool("already_signaled", s.AlreadySignaled),
		zap.Time("bar_ts", s.BarTs),
		zap.Float64("price", s.Price),
		zap.Float64("short_avg", s.ShortAvg),
		zap.Float64("long_avg", s.LongAvg),
		zap.Bool("passes_filter", s.PassesFilter),
	}
	if s.RSI != nil {
		fields = append(fields, zap.Float64("rsi", *s.RSI))
	}
	return fields
}
