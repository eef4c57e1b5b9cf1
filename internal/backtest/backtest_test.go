package backtest

import (
	"math"
	"testing"
	"time"

	"gc_bot/internal/execution"
	"gc_bot/internal/fault"
	"gc_bot/internal/models"
	"gc_bot/internal/strategy"
)

var t0 = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

type ohlc struct{ high, low, close float64 }

func series(rows ...ohlc) []models.Bar {
	out := make([]models.Bar, len(rows))
	for i, r := range rows {
		out[i] = models.Bar{
			Ts:    t0.Add(time.Duration(i+1) * time.Hour),
			Open:  r.close,
			High:  r.high,
			Low:   r.low,
			Close: r.close,
		}
	}
	return out
}

func flat(c float64) ohlc { return ohlc{c, c, c} }

func testConfig() Config {
	return Config{
		Symbol: "BTC-USDT",
		Signal: strategy.Params{ShortWindow: 2, LongWindow: 3},
		Sizing: execution.Sizing{NotionalQuote: 1200, InitialCapital: 10000},
		Exits:  execution.Exits{TakeProfitPct: 0.02, StopLossPct: 0.03, PreferTakeProfit: true},
		Costs:  execution.Costs{SlippageBps: 10, TakerFeeBps: 10},

		ForceCloseLast: true,
	}
}

// крест на 4-й свече (close 12), вход по 12 со сдвигом.
func entrySeries(next ohlc) []models.Bar {
	return series(flat(10), flat(10), flat(10), ohlc{20, 1, 12}, next)
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRunTakeProfitRoundTrip(t *testing.T) {
	cfg := testConfig()
	res, err := Run(entrySeries(ohlc{12.5, 12.1, 12.3}), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d", len(res.Trades))
	}
	tr := res.Trades[0]

	slip := 0.001
	entry := 12 * (1 + slip)
	tp := entry * 1.02
	size := 100.0
	fees := entry*size*0.001 + tp*(1-slip)*size*0.001
	want := (tp*(1-slip)-entry)*size - fees

	if tr.Reason != models.ReasonTakeProfit {
		t.Fatalf("reason = %s", tr.Reason)
	}
	if !near(tr.PnL, want) {
		t.Fatalf("pnl = %v, want %v", tr.PnL, want)
	}
	if !near(tr.Size, size) || !near(tr.EntryPrice, entry) {
		t.Fatalf("size/entry = %v/%v", tr.Size, tr.EntryPrice)
	}
	// свеча входа задела оба уровня, но выход только на следующей
	if tr.DurationBars != 1 {
		t.Fatalf("duration = %d", tr.DurationBars)
	}
	if len(res.Equity) != 1 || !near(res.Equity[0].PnLCum, want) {
		t.Fatalf("equity = %+v", res.Equity)
	}
	if res.EndOpen {
		t.Fatal("position should be closed")
	}
}

func TestRunEndOfData(t *testing.T) {
	bars := entrySeries(ohlc{12.1, 12.0, 12.05})

	cfg := testConfig()
	res, err := Run(bars, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 || res.Trades[0].Reason != models.ReasonEndOfData {
		t.Fatalf("trades = %+v", res.Trades)
	}
	if !near(res.Trades[0].ExitPrice, 12.05*(1-0.001)) {
		t.Fatalf("exit = %v", res.Trades[0].ExitPrice)
	}

	cfg.ForceCloseLast = false
	res, err = Run(bars, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 || !res.EndOpen {
		t.Fatalf("want open position, got %+v", res)
	}
}

func TestRunOverlapPolicy(t *testing.T) {
	bars := entrySeries(ohlc{13, 11, 12})
	entry := 12 * 1.001

	cases := []struct {
		preferTP bool
		reason   models.CloseReason
		level    float64
	}{
		{true, models.ReasonTakeProfit, entry * 1.02},
		{false, models.ReasonStopLoss, entry * 0.97},
	}
	for _, tc := range cases {
		cfg := testConfig()
		cfg.Exits.PreferTakeProfit = tc.preferTP
		res, err := Run(bars, cfg)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(res.Trades) != 1 {
			t.Fatalf("preferTP=%t: trades = %d", tc.preferTP, len(res.Trades))
		}
		tr := res.Trades[0]
		if tr.Reason != tc.reason || !near(tr.ExitPrice, tc.level*(1-0.001)) {
			t.Fatalf("preferTP=%t: got %s at %v", tc.preferTP, tr.Reason, tr.ExitPrice)
		}
	}
}

func TestRunFractionSizing(t *testing.T) {
	cfg := testConfig()
	frac := 0.1
	cfg.Sizing.NotionalFraction = &frac

	res, err := Run(entrySeries(ohlc{12.5, 12.1, 12.3}), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 || !near(res.Trades[0].Notional, 1000) {
		t.Fatalf("trades = %+v", res.Trades)
	}
	if !near(res.Trades[0].Size, 1000.0/12) {
		t.Fatalf("size = %v", res.Trades[0].Size)
	}
}

func TestRunNoLookAhead(t *testing.T) {
	rows := make([]ohlc, 200)
	for i := range rows {
		c := 100 + 10*math.Sin(float64(i)/5)
		rows[i] = ohlc{c * 1.01, c * 0.99, c}
	}
	bars := series(rows...)

	cfg := testConfig()
	cfg.ForceCloseLast = false

	full, err := Run(bars, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(full.Trades) < 2 {
		t.Fatalf("expected several trades, got %d", len(full.Trades))
	}

	for _, k := range []int{40, 100, 150} {
		prefix, err := Run(bars[:k], cfg)
		if err != nil {
			t.Fatalf("Run prefix %d: %v", k, err)
		}
		cutoff := bars[k-1].Ts
		var want []models.TradeRecord
		for _, tr := range full.Trades {
			if !tr.ExitTs.After(cutoff) {
				want = append(want, tr)
			}
		}
		if len(prefix.Trades) != len(want) {
			t.Fatalf("prefix %d: %d trades, want %d", k, len(prefix.Trades), len(want))
		}
		for i := range want {
			if prefix.Trades[i] != want[i] {
				t.Fatalf("prefix %d trade %d differs:\n%+v\n%+v", k, i, prefix.Trades[i], want[i])
			}
		}
	}
}

func TestRunLookbackKeepsPriorLongMean(t *testing.T) {
	// растущий ряд: единственный крест на первом полном окне
	rows := make([]ohlc, 40)
	for i := range rows {
		rows[i] = flat(100 + float64(i))
	}
	bars := series(rows...)

	for _, lookback := range []int{0, 3, 4, 10} {
		cfg := testConfig()
		cfg.Lookback = lookback
		res, err := Run(bars, cfg)
		if err != nil {
			t.Fatalf("lookback %d: %v", lookback, err)
		}
		if len(res.Trades) != 1 || !res.Trades[0].EntryTs.Equal(bars[2].Ts) {
			t.Fatalf("lookback %d: trades = %+v", lookback, res.Trades)
		}
	}
}

func TestRunInsufficientHistory(t *testing.T) {
	_, err := Run(series(flat(1), flat(2)), testConfig())
	if !fault.Is(err, fault.InsufficientHistory) {
		t.Fatalf("want InsufficientHistory, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	trades := []models.TradeRecord{
		{PnL: 10, Notional: 100},
		{PnL: -30, Notional: 100},
		{PnL: 5, Notional: 100},
	}
	s := Summarize(trades, testConfig())

	if s.Trades != 3 || s.Win != 2 || s.Loss != 1 {
		t.Fatalf("counts = %+v", s)
	}
	if !near(s.PnLTotal, -15) || !near(s.PnLPerTrade, -5) {
		t.Fatalf("pnl = %v / %v", s.PnLTotal, s.PnLPerTrade)
	}
	// кривая 10, -20, -15: просадка 30 от пика 10
	if !near(s.MaxDrawdown, 30) || !near(s.MaxDrawdownPct, 0.3) {
		t.Fatalf("drawdown = %v / %v", s.MaxDrawdown, s.MaxDrawdownPct)
	}
	if !near(s.CapitalFinal, 9985) || !near(s.TotalReturnPct, -0.15) {
		t.Fatalf("capital = %v / %v", s.CapitalFinal, s.TotalReturnPct)
	}
	if !near(s.MeanTradeReturn, -0.05) {
		t.Fatalf("mean return = %v", s.MeanTradeReturn)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, testConfig())
	if s.Trades != 0 || s.MaxDrawdown != 0 || s.Sharpe != 0 || s.CapitalFinal != 10000 {
		t.Fatalf("summary = %+v", s)
	}
}
