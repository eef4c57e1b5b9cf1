package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gc_bot/internal/fault"
	"gc_bot/internal/models"
)

var testNow = time.Date(2024, 7, 1, 10, 5, 0, 0, time.UTC)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		BaseURL:    srv.URL,
		APIKey:     "key",
		APISecret:  "secret",
		Passphrase: "pass",
		Backoff:    time.Millisecond,
		RatePerSec: 1000,
		PageLimit:  3,
	}, zap.NewNop())
	c.now = func() time.Time { return testNow }
	return c
}

// candleRowJSON: время открытия openAt, confirm задаётся явно.
func candleRowJSON(openAt time.Time, close float64, confirm string) string {
	return fmt.Sprintf(`["%d","%g","%g","%g","%g","10","800","800","%s"]`,
		openAt.UnixMilli(), close, close+1, close-1, close, confirm)
}

func TestFetchLatestDropsOpenCandleAndPages(t *testing.T) {
	var calls atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		if q.Get("bar") != "1H" || q.Get("instId") != "XRP-JPY" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		var rows []string
		switch {
		case r.URL.Path == pathCandles && q.Get("after") == "":
			// 10:00 ещё идёт (confirm=0), 09:00 и 08:00 закрыты
			rows = []string{
				candleRowJSON(testNow.Truncate(time.Hour), 110, "0"),
				candleRowJSON(testNow.Truncate(time.Hour).Add(-time.Hour), 109, "1"),
				candleRowJSON(testNow.Truncate(time.Hour).Add(-2*time.Hour), 108, "1"),
			}
		case r.URL.Path == pathHistoryCandles:
			after, _ := strconv.ParseInt(q.Get("after"), 10, 64)
			for i := 1; i <= 3; i++ {
				open := time.UnixMilli(after).Add(-time.Duration(i) * time.Hour)
				rows = append(rows, candleRowJSON(open, 108-float64(i), "1"))
			}
		default:
			t.Errorf("unexpected request %s", r.URL)
		}
		fmt.Fprintf(w, `{"code":"0","msg":"","data":[%s]}`, strings.Join(rows, ","))
	})
	c := newTestClient(t, h)

	bars, err := c.FetchLatest(context.Background(), "XRP-JPY", "1h", 4)
	if err != nil {
		t.Fatalf("FetchLatest: %v", err)
	}
	if len(bars) != 4 {
		t.Fatalf("want 4 bars, got %d", len(bars))
	}
	last := bars[len(bars)-1]
	if !last.Ts.Equal(testNow.Truncate(time.Hour)) || last.Close != 109 {
		t.Fatalf("last bar = %+v", last)
	}
	for i := 1; i < len(bars); i++ {
		if bars[i].Ts.Sub(bars[i-1].Ts) != time.Hour {
			t.Fatalf("bars not contiguous: %v -> %v", bars[i-1].Ts, bars[i].Ts)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("want 2 requests, got %d", calls.Load())
	}
}

func TestFetchLatestRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))

	_, err := c.FetchLatest(context.Background(), "XRP-JPY", "1h", 10)
	if !fault.Is(err, fault.DataUnavailable) {
		t.Fatalf("want DataUnavailable, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("want 3 attempts, got %d", calls.Load())
	}
}

func TestFetchRangeWindow(t *testing.T) {
	start := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		var rows []string
		for i := 1; i <= 3; i++ {
			open := time.UnixMilli(after).Truncate(time.Hour).Add(-time.Duration(i-1) * time.Hour)
			if open.UnixMilli() >= after {
				open = open.Add(-time.Hour)
			}
			rows = append(rows, candleRowJSON(open, 100, "1"))
		}
		fmt.Fprintf(w, `{"code":"0","msg":"","data":[%s]}`, strings.Join(rows, ","))
	}))

	end := start.Add(10 * time.Hour)
	bars, err := c.FetchRange(context.Background(), "XRP-JPY", "1h", start, end)
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if len(bars) != 11 {
		t.Fatalf("want 11 bars in [start, end], got %d", len(bars))
	}
	if !bars[0].Ts.Equal(start) || !bars[len(bars)-1].Ts.Equal(end) {
		t.Fatalf("range = %v..%v", bars[0].Ts, bars[len(bars)-1].Ts)
	}
}

func TestInstrument(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("instType") != "SPOT" {
			t.Errorf("instType = %q", r.URL.Query().Get("instType"))
		}
		io.WriteString(w, `{"code":"0","data":[{"instId":"XRP-JPY","lotSz":"0.0001","minSz":"1","tickSz":"0.001","state":"live"}]}`)
	}))
	inst, err := c.Instrument(context.Background(), "XRP-JPY")
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	if inst.LotSz != 0.0001 || inst.MinSz != 1 || inst.TickSz != 0.001 {
		t.Fatalf("inst = %+v", inst)
	}
}

func TestPlaceMarketOrderSignsAndConvertsFee(t *testing.T) {
	var signed atomic.Bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ts := r.Header.Get("OK-ACCESS-TIMESTAMP")
		mac := hmac.New(sha256.New, []byte("secret"))
		mac.Write([]byte(ts + r.Method + r.URL.RequestURI() + string(body)))
		if r.Header.Get("OK-ACCESS-SIGN") == base64.StdEncoding.EncodeToString(mac.Sum(nil)) {
			signed.Store(true)
		} else {
			t.Errorf("bad signature for %s %s", r.Method, r.URL)
		}

		switch r.Method {
		case http.MethodPost:
			if !strings.Contains(string(body), `"tgtCcy":"base_ccy"`) || !strings.Contains(string(body), `"sz":"62.5"`) {
				t.Errorf("body = %s", body)
			}
			io.WriteString(w, `{"code":"0","data":[{"ordId":"123","sCode":"0"}]}`)
		case http.MethodGet:
			// комиссия покупки списана в XRP
			io.WriteString(w, `{"code":"0","data":[{"ordId":"123","state":"filled","avgPx":"80","accFillSz":"62.5","fee":"-0.09375","feeCcy":"XRP"}]}`)
		}
	}))

	ack, err := c.PlaceMarketOrder(context.Background(), "XRP-JPY", models.SideBuy, decimal.RequireFromString("62.5"))
	if err != nil {
		t.Fatalf("PlaceMarketOrder: %v", err)
	}
	if !signed.Load() {
		t.Fatalf("requests were not signed")
	}
	if ack.OrderID != "123" || ack.AvgPrice != 80 || ack.FilledQty != 62.5 || ack.Fee != 7.5 {
		t.Fatalf("ack = %+v", ack)
	}
}

func TestPlaceMarketOrderRejected(t *testing.T) {
	var posts atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		io.WriteString(w, `{"code":"1","msg":"All operations failed","data":[{"ordId":"","sCode":"51008","sMsg":"Insufficient balance"}]}`)
	}))

	_, err := c.PlaceMarketOrder(context.Background(), "XRP-JPY", models.SideBuy, decimal.NewFromInt(10))
	if !fault.Is(err, fault.OrderRejected) {
		t.Fatalf("want OrderRejected, got %v", err)
	}
	if posts.Load() != 1 {
		t.Fatalf("order must not be retried, got %d posts", posts.Load())
	}
}
