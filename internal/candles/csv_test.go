package candles

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gc_bot/internal/models"
)

func TestWriteReadCSV(t *testing.T) {
	start := time.Date(2024, 7, 1, 1, 0, 0, 0, time.UTC)
	var bars []models.Bar
	for i := 0; i < 5; i++ {
		c := 80 + float64(i)*0.25
		bars = append(bars, models.Bar{Ts: start.Add(time.Duration(i) * time.Hour), Open: c - 0.1, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1000.5})
	}
	path := filepath.Join(t.TempDir(), "data", "xrpjpy_1h.csv")
	if err := WriteCSV(path, bars); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	got, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(got) != len(bars) {
		t.Fatalf("len = %d", len(got))
	}
	for i := range bars {
		g, w := got[i], bars[i]
		if !g.Ts.Equal(w.Ts) || g.Open != w.Open || g.High != w.High || g.Low != w.Low || g.Close != w.Close || g.Volume != w.Volume {
			t.Fatalf("bar %d = %+v, want %+v", i, got[i], bars[i])
		}
	}
}

func TestReadPandasStyleAndSort(t *testing.T) {
	in := `close_time_jst,open_time_jst,open,high,low,close,volume,open_time_utc,close_time_utc,timestamp_ms
2024-07-01 11:00:00+09:00,x,2,3,1,2.5,10,x,2024-07-01 02:00:00+00:00,1719799200000
2024-07-01 10:00:00+09:00,x,1,2,0.5,1.5,10,x,2024-07-01 01:00:00+00:00,1719795600000
`
	bars, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(bars) != 2 || bars[0].Close != 1.5 || !bars[0].Ts.Equal(time.Date(2024, 7, 1, 1, 0, 0, 0, time.UTC)) {
		t.Fatalf("bars = %+v", bars)
	}
}

func TestReadErrors(t *testing.T) {
	cases := map[string]string{
		"no close":  "ts,open,high,low\n2024-07-01T00:00:00Z,1,1,1\n",
		"no time":   "open,high,low,close\n1,1,1,1\n",
		"bad float": "ts,open,high,low,close\n2024-07-01T00:00:00Z,1,x,1,1\n",
		"duplicate": "timestamp_ms,open,high,low,close\n1719795600000,1,1,1,1\n1719795600000,1,1,1,1\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Read(strings.NewReader(in)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
