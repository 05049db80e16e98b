package channel

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/artmarket/session-sync/config"
)

var Module = fx.Module("channel",
	fx.Provide(
		func(d Dialer, cfg *config.Config, logger *slog.Logger) *Channel {
			return New(d,
				WithLogger(logger.With("component", "realtime")),
				WithMaxRedials(int(cfg.Realtime.MaxRetries)),
			)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, ch *Channel) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				ch.Close() // [GRACEFUL_SHUTDOWN] drop the socket and stop the read loop
				return nil
			},
		})
	}),
)
