package strategy

import (
	"context"

	"go.uber.org/fx"

	"stock_bot/internal/modules/config"
	mdservice "stock_bot/internal/modules/marketdata/service"
	"stock_bot/internal/modules/strategy/service"
)

func newDetector(cfg *config.Config) *service.Detector {
	return service.NewDetector(cfg.Calendar(), cfg.HistoryMax)
}

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			newDetector,
			service.NewHub, // *service.Hub (получит Config, Watchlist, Detector, Store, Consumer)
		),

		fx.Invoke(func(lc fx.Lifecycle, hub *service.Hub, feed *mdservice.Client) {
			loopCtx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go hub.Run(loopCtx, feed.Stream(loopCtx))
					return nil
				},
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)
}
