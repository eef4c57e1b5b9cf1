package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // драйвер "sqlite"

	"gc_bot/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS fills (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	ts        TEXT NOT NULL,
	symbol    TEXT NOT NULL,
	side      TEXT NOT NULL,
	mode      TEXT NOT NULL,
	order_id  TEXT NOT NULL,
	price     REAL NOT NULL,
	quantity  REAL NOT NULL,
	notional  REAL NOT NULL,
	fee       REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol        TEXT NOT NULL,
	entry_ts      TEXT NOT NULL,
	exit_ts       TEXT NOT NULL,
	entry_price   REAL NOT NULL,
	exit_price    REAL NOT NULL,
	size          REAL NOT NULL,
	pnl           REAL NOT NULL,
	reason        TEXT NOT NULL,
	duration_bars INTEGER NOT NULL,
	entry_fee     REAL NOT NULL,
	exit_fee      REAL NOT NULL,
	notional      REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_symbol_exit_idx ON trades (symbol, exit_ts);
`

// время храним текстом RFC3339 в UTC, поэтому сравнение строк совпадает с хронологией
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite — журнал в локальном файле базы.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create sqlite dir")
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	conn.SetMaxOpenConns(1) // один писатель
	conn.SetConnMaxLifetime(time.Hour)

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "ensure sqlite schema")
	}
	return &SQLite{db: conn}, nil
}

func (s *SQLite) AppendFill(ctx context.Context, f models.Fill) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fills (ts, symbol, side, mode, order_id, price, quantity, notional, fee)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Ts.UTC().Format(sqliteTime), f.Symbol, string(f.Side), string(f.Mode), f.OrderID,
		f.Price, f.Quantity, f.Notional, f.Fee,
	)
	return errors.Wrap(err, "insert fill")
}

func (s *SQLite) AppendTrade(ctx context.Context, t models.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (symbol, entry_ts, exit_ts, entry_price, exit_price, size, pnl,
			reason, duration_bars, entry_fee, exit_fee, notional)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Symbol, t.EntryTs.UTC().Format(sqliteTime), t.ExitTs.UTC().Format(sqliteTime),
		t.EntryPrice, t.ExitPrice, t.Size, t.PnL, string(t.Reason), t.DurationBars,
		t.EntryFee, t.ExitFee, t.Notional,
	)
	return errors.Wrap(err, "insert trade")
}

func (s *SQLite) LastBuyFee(ctx context.Context, symbol string) (float64, error) {
	var fee float64
	err := s.db.QueryRowContext(ctx, `
		SELECT fee FROM fills WHERE symbol = ? AND side = ? ORDER BY id DESC LIMIT 1`,
		symbol, string(models.SideBuy),
	).Scan(&fee)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "select last buy fee")
	}
	return fee, nil
}

func (s *SQLite) Trades(ctx context.Context, symbol string, since time.Time) ([]models.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, entry_ts, exit_ts, entry_price, exit_price, size, pnl,
			reason, duration_bars, entry_fee, exit_fee, notional
		FROM trades WHERE symbol = ? AND exit_ts >= ? ORDER BY exit_ts, id`,
		symbol, since.UTC().Format(sqliteTime),
	)
	if err != nil {
		return nil, errors.Wrap(err, "select trades")
	}
	defer rows.Close()

	var out []models.TradeRecord
	for rows.Next() {
		var (
			t              models.TradeRecord
			entryTs, exitTs string
			reason         string
		)
		if err := rows.Scan(&t.Symbol, &entryTs, &exitTs, &t.EntryPrice, &t.ExitPrice, &t.Size, &t.PnL,
			&reason, &t.DurationBars, &t.EntryFee, &t.ExitFee, &t.Notional); err != nil {
			return nil, errors.Wrap(err, "scan trade")
		}
		if t.EntryTs, err = time.Parse(sqliteTime, entryTs); err != nil {
			return nil, errors.Wrap(err, "entry_ts")
		}
		if t.ExitTs, err = time.Parse(sqliteTime, exitTs); err != nil {
			return nil, errors.Wrap(err, "exit_ts")
		}
		t.Reason = models.CloseReason(reason)
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "iterate trades")
}

func (s *SQLite) Close() error { return s.db.Close() }
