package postgres

import (
	"context"
	"fmt"

	"stock_bot/internal/modules/config"
	"stock_bot/internal/store"
	"stock_bot/pkg/db"

	"go.uber.org/fx"
)

// Module поднимает пул и отдаёт store.Store. Без DSN работаем на
// in-memory сторе (локальный прогон без БД).
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config) (store.Store, error) {
				if cfg.DB == "" {
					return store.NewMemory(), nil
				}

				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				txm := db.NewPgTxManager(poolMaster)
				if err := txm.Ping(ctx); err != nil {
					return nil, err
				}

				return store.NewPg(txm), nil
			},
		),
	)
}
