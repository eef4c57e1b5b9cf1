package ledger

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"gc_bot/internal/models"
	"gc_bot/pkg/db"
)

// Ledger — журнал исполнений и закрытых сделок. Только дозапись.
type Ledger interface {
	AppendFill(ctx context.Context, f models.Fill) error
	AppendTrade(ctx context.Context, t models.TradeRecord) error
	// LastBuyFee — комиссия последней покупки по символу, 0 если покупок не было.
	LastBuyFee(ctx context.Context, symbol string) (float64, error)
	// Trades — сделки по символу с exit_ts >= since.
	Trades(ctx context.Context, symbol string, since time.Time) ([]models.TradeRecord, error)
	Close() error
}

const (
	DriverCSV      = "csv"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open выбирает реализацию по драйверу. tx нужен только для postgres.
func Open(ctx context.Context, driver, dir, sqlitePath string, tx db.TxManager) (Ledger, error) {
	switch driver {
	case DriverCSV, "":
		return NewCSV(dir)
	case DriverSQLite:
		return NewSQLite(ctx, sqlitePath)
	case DriverPostgres:
		if tx == nil {
			return nil, errors.New("postgres ledger requires a connection pool")
		}
		return NewPostgres(ctx, tx)
	}
	return nil, errors.Errorf("unknown ledger driver %q", driver)
}
