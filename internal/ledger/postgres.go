package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"gc_bot/internal/models"
	"gc_bot/pkg/db"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS gc_fills (
	id        BIGSERIAL PRIMARY KEY,
	ts        TIMESTAMPTZ NOT NULL,
	symbol    TEXT NOT NULL,
	side      TEXT NOT NULL,
	mode      TEXT NOT NULL,
	order_id  TEXT NOT NULL,
	price     DOUBLE PRECISION NOT NULL,
	quantity  DOUBLE PRECISION NOT NULL,
	notional  DOUBLE PRECISION NOT NULL,
	fee       DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS gc_fills_symbol_side_idx ON gc_fills (symbol, side, id DESC);
CREATE TABLE IF NOT EXISTS gc_trades (
	id            BIGSERIAL PRIMARY KEY,
	symbol        TEXT NOT NULL,
	entry_ts      TIMESTAMPTZ NOT NULL,
	exit_ts       TIMESTAMPTZ NOT NULL,
	entry_price   DOUBLE PRECISION NOT NULL,
	exit_price    DOUBLE PRECISION NOT NULL,
	size          DOUBLE PRECISION NOT NULL,
	pnl           DOUBLE PRECISION NOT NULL,
	reason        TEXT NOT NULL,
	duration_bars INTEGER NOT NULL,
	entry_fee     DOUBLE PRECISION NOT NULL,
	exit_fee      DOUBLE PRECISION NOT NULL,
	notional      DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS gc_trades_symbol_exit_idx ON gc_trades (symbol, exit_ts);
`

// Postgres — журнал в Postgres через общий PgTxManager.
type Postgres struct {
	tx db.TxManager
}

func NewPostgres(ctx context.Context, tx db.TxManager) (*Postgres, error) {
	if _, err := tx.Conn().Exec(ctx, pgSchema); err != nil {
		return nil, errors.Wrap(err, "ensure ledger schema")
	}
	return &Postgres{tx: tx}, nil
}

func (p *Postgres) AppendFill(ctx context.Context, f models.Fill) error {
	_, err := p.tx.Conn().Exec(ctx, `
		INSERT INTO gc_fills (ts, symbol, side, mode, order_id, price, quantity, notional, fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.Ts.UTC(), f.Symbol, string(f.Side), string(f.Mode), f.OrderID, f.Price, f.Quantity, f.Notional, f.Fee,
	)
	return errors.Wrap(err, "insert fill")
}

func (p *Postgres) AppendTrade(ctx context.Context, t models.TradeRecord) error {
	return p.tx.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO gc_trades (symbol, entry_ts, exit_ts, entry_price, exit_price, size, pnl,
				reason, duration_bars, entry_fee, exit_fee, notional)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			t.Symbol, t.EntryTs.UTC(), t.ExitTs.UTC(), t.EntryPrice, t.ExitPrice, t.Size, t.PnL,
			string(t.Reason), t.DurationBars, t.EntryFee, t.ExitFee, t.Notional,
		)
		return errors.Wrap(err, "insert trade")
	})
}

func (p *Postgres) LastBuyFee(ctx context.Context, symbol string) (float64, error) {
	var fee float64
	err := p.tx.Conn().QueryRow(ctx, `
		SELECT fee FROM gc_fills
		WHERE symbol = $1 AND side = $2
		ORDER BY id DESC LIMIT 1`, symbol, string(models.SideBuy),
	).Scan(&fee)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "select last buy fee")
	}
	return fee, nil
}

func (p *Postgres) Trades(ctx context.Context, symbol string, since time.Time) ([]models.TradeRecord, error) {
	rows, err := p.tx.Conn().Query(ctx, `
		SELECT symbol, entry_ts, exit_ts, entry_price, exit_price, size, pnl,
			reason, duration_bars, entry_fee, exit_fee, notional
		FROM gc_trades
		WHERE symbol = $1 AND exit_ts >= $2
		ORDER BY exit_ts, id`, symbol, since.UTC(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "select trades")
	}
	defer rows.Close()

	var out []models.TradeRecord
	for rows.Next() {
		var (
			t      models.TradeRecord
			reason string
		)
		if err := rows.Scan(&t.Symbol, &t.EntryTs, &t.ExitTs, &t.EntryPrice, &t.ExitPrice, &t.Size, &t.PnL,
			&reason, &t.DurationBars, &t.EntryFee, &t.ExitFee, &t.Notional); err != nil {
			return nil, errors.Wrap(err, "scan trade")
		}
		t.Reason = models.CloseReason(reason)
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "iterate trades")
}

// Close ничего не делает: пулом владеет fx-модуль postgres.
func (p *Postgres) Close() error { return nil }
