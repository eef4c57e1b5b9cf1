package postgres

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"gc_bot/internal/config"
	"gc_bot/pkg/db"
)

// Module подключается только при ledger.driver = postgres.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, lc fx.Lifecycle, cfg *config.Config) (db.TxManager, error) {
				poolMaster, err := db.NewPool(ctx, cfg.PoolConfig())
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				err = poolMaster.Ping(ctx)
				if err != nil {
					poolMaster.Close()
					return nil, err
				}

				tx := db.NewPgTxManager(poolMaster)
				lc.Append(fx.StopHook(tx.Close))
				return tx, nil
			},
		),
	)
}
