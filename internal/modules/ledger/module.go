package ledger

import (
	"context"

	"go.uber.org/fx"

	"gc_bot/internal/config"
	"gc_bot/internal/ledger"
	"gc_bot/pkg/db"
)

type Params struct {
	fx.In

	Ctx context.Context
	LC  fx.Lifecycle
	Cfg *config.Config
	Tx  db.TxManager `optional:"true"`
}

func Module() fx.Option {
	return fx.Module("ledger",
		fx.Provide(New),
	)
}

func New(p Params) (ledger.Ledger, error) {
	l, err := ledger.Open(p.Ctx, p.Cfg.Ledger.Driver, p.Cfg.Paths.Ledger, p.Cfg.Ledger.SQLitePath, p.Tx)
	if err != nil {
		return nil, err
	}
	p.LC.Append(fx.StopHook(l.Close))
	return l, nil
}
