package ledger

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"gc_bot/internal/models"
)

var (
	fillHeader  = []string{"ts", "symbol", "side", "mode", "order_id", "price", "quantity", "notional", "fee"}
	tradeHeader = []string{"symbol", "entry_ts", "exit_ts", "entry_price", "exit_price", "size", "pnl",
		"reason", "duration_bars", "entry_fee", "exit_fee", "notional"}
)

// CSV хранит fills.csv и trades.csv в одной директории.
type CSV struct {
	dir string
	mu  sync.Mutex
}

func NewCSV(dir string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create ledger dir %s", dir)
	}
	return &CSV{dir: dir}, nil
}

func (c *CSV) FillsPath() string  { return filepath.Join(c.dir, "fills.csv") }
func (c *CSV) TradesPath() string { return filepath.Join(c.dir, "trades.csv") }

func (c *CSV) AppendFill(ctx context.Context, f models.Fill) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return appendRow(c.FillsPath(), fillHeader, fillRow(f))
}

func (c *CSV) AppendTrade(ctx context.Context, t models.TradeRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return appendRow(c.TradesPath(), tradeHeader, TradeRow(t))
}

func (c *CSV) LastBuyFee(ctx context.Context, symbol string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := readRows(c.FillsPath())
	if err != nil {
		return 0, err
	}
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		if len(r) < len(fillHeader) || r[1] != symbol || r[2] != string(models.SideBuy) {
			continue
		}
		fee, err := strconv.ParseFloat(r[8], 64)
		if err != nil {
			return 0, errors.Wrapf(err, "parse fee in row %d", i+1)
		}
		return fee, nil
	}
	return 0, nil
}

func (c *CSV) Trades(ctx context.Context, symbol string, since time.Time) ([]models.TradeRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := readRows(c.TradesPath())
	if err != nil {
		return nil, err
	}
	out := make([]models.TradeRecord, 0, len(rows))
	for i, r := range rows {
		t, err := ParseTradeRow(r)
		if err != nil {
			return nil, errors.Wrapf(err, "trades row %d", i+1)
		}
		if t.Symbol != symbol || t.ExitTs.Before(since) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *CSV) Close() error { return nil }

func fillRow(f models.Fill) []string {
	return []string{
		f.Ts.UTC().Format(time.RFC3339Nano),
		f.Symbol,
		string(f.Side),
		string(f.Mode),
		f.OrderID,
		ftoa(f.Price),
		ftoa(f.Quantity),
		ftoa(f.Notional),
		ftoa(f.Fee),
	}
}

// TradeRow — строка trades.csv; её же пишет бэктест.
func TradeRow(t models.TradeRecord) []string {
	return []string{
		t.Symbol,
		t.EntryTs.UTC().Format(time.RFC3339Nano),
		t.ExitTs.UTC().Format(time.RFC3339Nano),
		ftoa(t.EntryPrice),
		ftoa(t.ExitPrice),
		ftoa(t.Size),
		ftoa(t.PnL),
		string(t.Reason),
		strconv.Itoa(t.DurationBars),
		ftoa(t.EntryFee),
		ftoa(t.ExitFee),
		ftoa(t.Notional),
	}
}

func TradeHeader() []string { return append([]string(nil), tradeHeader...) }

func ParseTradeRow(r []string) (models.TradeRecord, error) {
	if len(r) < len(tradeHeader) {
		return models.TradeRecord{}, errors.Errorf("want %d columns, got %d", len(tradeHeader), len(r))
	}
	var (
		t   models.TradeRecord
		err error
	)
	t.Symbol = r[0]
	if t.EntryTs, err = time.Parse(time.RFC3339Nano, r[1]); err != nil {
		return t, errors.Wrap(err, "entry_ts")
	}
	if t.ExitTs, err = time.Parse(time.RFC3339Nano, r[2]); err != nil {
		return t, errors.Wrap(err, "exit_ts")
	}
	floats := []*float64{&t.EntryPrice, &t.ExitPrice, &t.Size, &t.PnL}
	for i, dst := range floats {
		if *dst, err = strconv.ParseFloat(r[3+i], 64); err != nil {
			return t, errors.Wrapf(err, "column %s", tradeHeader[3+i])
		}
	}
	t.Reason = models.CloseReason(r[7])
	if t.DurationBars, err = strconv.Atoi(r[8]); err != nil {
		return t, errors.Wrap(err, "duration_bars")
	}
	floats = []*float64{&t.EntryFee, &t.ExitFee, &t.Notional}
	for i, dst := range floats {
		if *dst, err = strconv.ParseFloat(r[9+i], 64); err != nil {
			return t, errors.Wrapf(err, "column %s", tradeHeader[9+i])
		}
	}
	return t, nil
}

func appendRow(path string, header, row []string) error {
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(header); err != nil {
			return errors.Wrap(err, "write header")
		}
	}
	if err := w.Write(row); err != nil {
		return errors.Wrap(err, "write row")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrapf(err, "flush %s", path)
	}
	return f.Sync()
}

// readRows читает строки без заголовка. Нет файла — пустой список.
func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows [][]string
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		if first {
			first = false
			continue
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
