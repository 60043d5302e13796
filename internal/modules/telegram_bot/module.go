package telegram

import (
	"context"

	"go.uber.org/fx"

	strategysvc "stock_bot/internal/modules/strategy/service"
	"stock_bot/internal/modules/telegram_bot/service"
	"stock_bot/internal/runner/sessions"
)

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			service.NewTelegram,
		),

		// адаптеры: один клиент обслуживает и раннер, и хаб
		fx.Provide(
			func(t *service.Telegram) sessions.Notifier { return t },
			func(t *service.Telegram) strategysvc.ServiceNotifier { return t },
		),

		fx.Invoke(
			func(lc fx.Lifecycle, t *service.Telegram) {
				loopCtx, cancel := context.WithCancel(context.Background())
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						go t.Start(loopCtx)
						return nil
					},
					OnStop: func(context.Context) error {
						cancel()
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
