package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestWriteRotatesByLocalDate(t *testing.T) {
	jst := time.FixedZone("JST", 9*3600)
	j, err := New(t.TempDir(), jst)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer j.Close()

	// 14:30 UTC = 23:30 JST 1 июля, 15:30 UTC = 00:30 JST 2 июля
	first := time.Date(2024, 7, 1, 14, 30, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	j.now = func() time.Time { return first }
	if err := j.Write("cycle_start", zap.String("symbol", "XRP-JPY")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := j.Write("signal", zap.Bool("is_crossover", true), zap.Float64("price", 81.5)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	j.now = func() time.Time { return second }
	if err := j.Write("cycle_end", zap.String("stage", "hold")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	day1 := readLines(t, j.Path(first))
	if len(day1) != 2 || day1[0]["event"] != "cycle_start" || day1[1]["is_crossover"] != true {
		t.Fatalf("day1 = %v", day1)
	}
	if day1[1]["price"] != 81.5 || day1[0]["symbol"] != "XRP-JPY" {
		t.Fatalf("fields lost: %v", day1)
	}
	day2 := readLines(t, j.Path(second))
	if len(day2) != 1 || day2[0]["stage"] != "hold" {
		t.Fatalf("day2 = %v", day2)
	}
	if j.Path(second) == j.Path(first) {
		t.Fatalf("expected different files")
	}
}
