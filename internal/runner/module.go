package runner

import (
	"context"

	"go.uber.org/fx"

	strategysvc "stock_bot/internal/modules/strategy/service"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			NewManager,
			func(m *Manager) strategysvc.Consumer { return m },
		),
		fx.Invoke(func(lc fx.Lifecycle, m *Manager) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					return m.Start()
				},
				OnStop: func(context.Context) error {
					m.Stop()
					return nil
				},
			})
		}),
	)
}
