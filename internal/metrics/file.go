package metrics

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

var dailyHeader = []string{"date", "trades", "win", "loss", "win_rate", "pnl_day", "pnl_cum", "max_dd"}

// WriteDaily переписывает metrics.csv: строка с той же датой заменяется,
// остальные сохраняются, порядок по дате.
func WriteDaily(path string, row Daily) error {
	rows, err := ReadDaily(path)
	if err != nil {
		return err
	}

	replaced := false
	for i := range rows {
		if rows[i].Date == row.Date {
			rows[i] = row
			replaced = true
		}
	}
	if !replaced {
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create metrics dir")
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "create metrics tmp")
	}
	w := csv.NewWriter(f)
	_ = w.Write(dailyHeader)
	for _, r := range rows {
		_ = w.Write([]string{
			r.Date,
			strconv.Itoa(r.Trades),
			strconv.Itoa(r.Win),
			strconv.Itoa(r.Loss),
			ftoa(r.WinRate),
			ftoa(r.PnLDay),
			ftoa(r.PnLCum),
			ftoa(r.MaxDD),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "write metrics")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close metrics tmp")
	}
	return errors.Wrap(os.Rename(tmp, path), "rename metrics")
}

// ReadDaily читает metrics.csv; отсутствующий файл — пустой список.
func ReadDaily(path string) ([]Daily, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open metrics")
	}
	defer f.Close()

	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}

	var out []Daily
	for i, r := range recs {
		if i == 0 && len(r) > 0 && r[0] == "date" {
			continue
		}
		if len(r) < len(dailyHeader) {
			return nil, errors.Errorf("%s line %d: want %d columns, got %d", path, i+1, len(dailyHeader), len(r))
		}
		var (
			d    = Daily{Date: r[0]}
			perr error
		)
		ints := []*int{&d.Trades, &d.Win, &d.Loss}
		for k, p := range ints {
			if *p, perr = strconv.Atoi(r[1+k]); perr != nil {
				return nil, errors.Wrapf(perr, "%s line %d", path, i+1)
			}
		}
		floats := []*float64{&d.WinRate, &d.PnLDay, &d.PnLCum, &d.MaxDD}
		for k, p := range floats {
			if *p, perr = strconv.ParseFloat(r[4+k], 64); perr != nil {
				return nil, errors.Wrapf(perr, "%s line %d", path, i+1)
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
