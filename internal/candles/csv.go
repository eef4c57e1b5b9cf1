package candles

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"gc_bot/internal/models"
)

var header = []string{"close_time_utc", "open", "high", "low", "close", "volume"}

// форматы времени, которые встречаются в выгрузках (RFC3339 и вариант pandas)
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// WriteCSV сохраняет свечи с заголовком; время закрытия в UTC, RFC3339.
func WriteCSV(path string, bars []models.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create candles dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create candles file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write(header)
	for _, b := range bars {
		_ = w.Write([]string{
			b.Ts.UTC().Format(time.RFC3339),
			ftoa(b.Open), ftoa(b.High), ftoa(b.Low), ftoa(b.Close), ftoa(b.Volume),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "write candles")
	}
	return errors.Wrap(f.Sync(), "sync candles")
}

func ReadCSV(path string) ([]models.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open candles file")
	}
	defer f.Close()
	bars, err := Read(f)
	return bars, errors.Wrapf(err, "read %s", path)
}

// Read разбирает CSV со свечами. Колонки ищутся по заголовку: время берётся из
// close_time_utc (или ts), либо из timestamp_ms. Результат сортируется по времени,
// дубликаты времени — ошибка.
func Read(r io.Reader) ([]models.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	col := map[string]int{}
	for i, h := range head {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, need := range []string{"open", "high", "low", "close"} {
		if _, ok := col[need]; !ok {
			return nil, errors.Errorf("missing column %q", need)
		}
	}
	tsCol, tsMillis := -1, false
	for _, name := range []string{"close_time_utc", "ts"} {
		if i, ok := col[name]; ok {
			tsCol = i
			break
		}
	}
	if tsCol < 0 {
		i, ok := col["timestamp_ms"]
		if !ok {
			return nil, errors.New("missing time column (close_time_utc, ts or timestamp_ms)")
		}
		tsCol, tsMillis = i, true
	}

	var bars []models.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		b, err := parseRow(rec, col, tsCol, tsMillis)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		bars = append(bars, b)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Ts.Before(bars[j].Ts) })
	for i := 1; i < len(bars); i++ {
		if bars[i].Ts.Equal(bars[i-1].Ts) {
			return nil, errors.Errorf("duplicate bar time %s", bars[i].Ts)
		}
	}
	return bars, nil
}

func parseRow(rec []string, col map[string]int, tsCol int, tsMillis bool) (models.Bar, error) {
	field := func(i int) (string, error) {
		if i >= len(rec) {
			return "", errors.Errorf("short row: %d fields", len(rec))
		}
		return strings.TrimSpace(rec[i]), nil
	}

	raw, err := field(tsCol)
	if err != nil {
		return models.Bar{}, err
	}
	var b models.Bar
	if tsMillis {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return models.Bar{}, errors.Wrap(err, "timestamp_ms")
		}
		b.Ts = time.UnixMilli(ms).UTC()
	} else if b.Ts, err = parseTime(raw); err != nil {
		return models.Bar{}, err
	}

	targets := map[string]*float64{"open": &b.Open, "high": &b.High, "low": &b.Low, "close": &b.Close, "volume": &b.Volume}
	for name, dst := range targets {
		i, ok := col[name]
		if !ok {
			continue // volume необязателен
		}
		s, err := field(i)
		if err != nil {
			return models.Bar{}, err
		}
		if *dst, err = strconv.ParseFloat(s, 64); err != nil {
			return models.Bar{}, errors.Wrap(err, name)
		}
	}
	return b, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized time %q", s)
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
