package execution

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"gc_bot/internal/fault"
	"gc_bot/internal/models"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestDecideSize(t *testing.T) {
	got, err := DecideSize(1000, 5000)
	if err != nil || got != 5.0 {
		t.Fatalf("DecideSize(1000, 5000) = %v, %v", got, err)
	}
	for _, price := range []float64{0, -1, math.NaN()} {
		if _, err := DecideSize(price, 5000); err == nil {
			t.Fatalf("price %v: expected error", price)
		}
	}
	if _, err := DecideSize(1000, 0); err == nil {
		t.Fatalf("zero notional: expected error")
	}
}

func TestEffectiveNotional(t *testing.T) {
	frac := 0.05
	cases := []struct {
		name   string
		sizing Sizing
		cum    float64
		want   float64
	}{
		{"static", Sizing{NotionalQuote: 5000, InitialCapital: 100000}, 1234, 5000},
		{"fraction", Sizing{NotionalQuote: 5000, InitialCapital: 100000, NotionalFraction: &frac}, 20000, 6000},
		{"fraction after losses", Sizing{NotionalQuote: 5000, InitialCapital: 100000, NotionalFraction: &frac}, -40000, 3000},
		{"wiped out capital", Sizing{NotionalQuote: 5000, InitialCapital: 100000, NotionalFraction: &frac}, -150000, 5000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.sizing.EffectiveNotional(tc.cum); !almostEqual(got, tc.want) {
				t.Fatalf("EffectiveNotional = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLevels(t *testing.T) {
	tp, sl := DefaultExits().Levels(100)
	if !almostEqual(tp, 102) || !almostEqual(sl, 97) {
		t.Fatalf("tp/sl = %v/%v", tp, sl)
	}
}

func TestCheckExit(t *testing.T) {
	cases := []struct {
		price  float64
		reason models.CloseReason
		ok     bool
	}{
		{102, models.ReasonTakeProfit, true},
		{105, models.ReasonTakeProfit, true},
		{97, models.ReasonStopLoss, true},
		{90, models.ReasonStopLoss, true},
		{100, "", false},
	}
	for _, tc := range cases {
		reason, ok := CheckExit(tc.price, 102, 97)
		if reason != tc.reason || ok != tc.ok {
			t.Fatalf("price %v: got %q/%v", tc.price, reason, ok)
		}
	}
}

func TestCheckExitIntrabar(t *testing.T) {
	cases := []struct {
		name      string
		high, low float64
		preferTP  bool
		reason    models.CloseReason
		ref       float64
		ok        bool
	}{
		{"take profit", 103, 99, true, models.ReasonTakeProfit, 102, true},
		{"stop loss", 101, 96, true, models.ReasonStopLoss, 97, true},
		{"inside", 101, 98, true, "", 0, false},
		{"overlap prefers tp", 103, 96, true, models.ReasonTakeProfit, 102, true},
		{"overlap prefers sl", 103, 96, false, models.ReasonStopLoss, 97, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, ref, ok := CheckExitIntrabar(tc.high, tc.low, 102, 97, tc.preferTP)
			if reason != tc.reason || ref != tc.ref || ok != tc.ok {
				t.Fatalf("got %q/%v/%v", reason, ref, ok)
			}
		})
	}
}

func TestPaperFills(t *testing.T) {
	p := NewPaper(Costs{SlippageBps: 5, TakerFeeBps: 15})
	ctx := context.Background()

	buy, err := p.Buy(ctx, "XRP-JPY", 10, 100)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if !almostEqual(buy.Price, 100.05) {
		t.Fatalf("buy price = %v", buy.Price)
	}
	if !almostEqual(buy.Fee, 100.05*10*0.0015) {
		t.Fatalf("buy fee = %v", buy.Fee)
	}
	if !strings.HasPrefix(buy.OrderID, "paper-") || buy.Mode != models.ModePaper || buy.Side != models.SideBuy {
		t.Fatalf("unexpected fill: %+v", buy)
	}

	sell, err := p.Sell(ctx, "XRP-JPY", 10, 100)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if !almostEqual(sell.Price, 99.95) || !almostEqual(sell.Notional, 999.5) {
		t.Fatalf("sell = %+v", sell)
	}
	if sell.OrderID == buy.OrderID {
		t.Fatalf("order ids must differ")
	}

	if _, err := p.Buy(ctx, "XRP-JPY", 10, 0); err == nil {
		t.Fatalf("zero reference price must fail")
	}
}

func TestSnapQuantity(t *testing.T) {
	cases := []struct {
		qty, lot, min float64
		want          string
	}{
		{12.3456, 0.01, 0.1, "12.34"},
		{12.3456, 1, 1, "12"},
		{0.05, 0.01, 0.1, "0"},
		{0.999, 1, 0, "0"},
		{5, 0, 0, "5"},
	}
	for _, tc := range cases {
		got := SnapQuantity(tc.qty, tc.lot, tc.min)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("SnapQuantity(%v, %v, %v) = %s, want %s", tc.qty, tc.lot, tc.min, got, tc.want)
		}
	}
}

type fakeVenue struct {
	inst    models.Instrument
	instErr error
	ack     models.OrderAck
	calls   []decimal.Decimal
}

func (f *fakeVenue) Instrument(ctx context.Context, symbol string) (models.Instrument, error) {
	return f.inst, f.instErr
}

func (f *fakeVenue) PlaceMarketOrder(ctx context.Context, symbol string, side models.Side, qty decimal.Decimal) (models.OrderAck, error) {
	f.calls = append(f.calls, qty)
	return f.ack, nil
}

func TestLiveSnapsAndUsesVenueFill(t *testing.T) {
	v := &fakeVenue{
		inst: models.Instrument{LotSz: 0.01, MinSz: 0.1},
		ack:  models.OrderAck{OrderID: "okx-1", AvgPrice: 100.2, FilledQty: 12.34, Fee: -0.5},
	}
	l := NewLive(v, Costs{TakerFeeBps: 15}, nil)

	fill, err := l.Buy(context.Background(), "XRP-USDT", 12.3456, 100)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if len(v.calls) != 1 || v.calls[0].String() != "12.34" {
		t.Fatalf("submitted qty = %v", v.calls)
	}
	if fill.Price != 100.2 || fill.Quantity != 12.34 || fill.Fee != 0.5 || fill.Mode != models.ModeReal {
		t.Fatalf("fill = %+v", fill)
	}
}

func TestLiveFeeFallback(t *testing.T) {
	v := &fakeVenue{
		inst: models.Instrument{LotSz: 1, MinSz: 1},
		ack:  models.OrderAck{OrderID: "okx-2"},
	}
	l := NewLive(v, Costs{TakerFeeBps: 10}, nil)

	fill, err := l.Sell(context.Background(), "XRP-USDT", 3.7, 50)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if fill.Quantity != 3 || fill.Price != 50 || !almostEqual(fill.Fee, 0.15) {
		t.Fatalf("fill = %+v", fill)
	}
}

func TestLiveRejectsBelowMinimum(t *testing.T) {
	v := &fakeVenue{inst: models.Instrument{LotSz: 1, MinSz: 10}}
	l := NewLive(v, Costs{}, nil)

	_, err := l.Buy(context.Background(), "XRP-USDT", 9.99, 100)
	if !fault.Is(err, fault.OrderRejected) {
		t.Fatalf("want OrderRejected, got %v", err)
	}
	if len(v.calls) != 0 {
		t.Fatalf("order must not be submitted")
	}
}

func TestLiveInstrumentFailure(t *testing.T) {
	v := &fakeVenue{instErr: errors.New("timeout")}
	l := NewLive(v, Costs{}, nil)

	_, err := l.Buy(context.Background(), "XRP-USDT", 1, 100)
	if !fault.Is(err, fault.DataUnavailable) {
		t.Fatalf("want DataUnavailable, got %v", err)
	}
}
