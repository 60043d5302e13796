package main

import (
	"context"

	"go.uber.org/fx"

	"stock_bot/internal/modules/config"
	"stock_bot/internal/modules/health"
	"stock_bot/internal/modules/marketdata"
	"stock_bot/internal/modules/postgres"
	"stock_bot/internal/modules/strategy"
	telegram "stock_bot/internal/modules/telegram_bot"
	"stock_bot/internal/runner"
	"stock_bot/pkg/logger"
	"stock_bot/pkg/tracing"
)

func main() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	defer logger.Sync()

	tracing.SetServiceName("stock_bot")

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		health.Module(),
		marketdata.Module(),
		runner.Module(),
		telegram.Module(),
		strategy.Module(),

		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) {
			if cfg.Jaeger.Host == "" {
				return
			}
			var closeTracer func()
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					_, closer, err := tracing.InitTracer(tracing.Config{
						Host: cfg.Jaeger.Host,
						Port: cfg.Jaeger.Port,
					})
					if err != nil {
						return err
					}
					closeTracer = closer
					return nil
				},
				OnStop: func(context.Context) error {
					if closeTracer != nil {
						closeTracer()
					}
					return nil
				},
			})
		}),
	)

	app.Run()
}
