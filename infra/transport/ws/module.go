package ws

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/artmarket/session-sync/config"
	"github.com/artmarket/session-sync/internal/domain/channel"
)

var Module = fx.Module("ws_transport",
	fx.Provide(
		fx.Annotate(
			func(cfg *config.Config, tokens TokenSource, logger *slog.Logger) (*Dialer, error) {
				url, err := cfg.RealtimeURL()
				if err != nil {
					return nil, err
				}
				return NewDialer(Options{
					URL:              url,
					HandshakeTimeout: cfg.Realtime.HandshakeTime,
					MaxRetries:       cfg.Realtime.MaxRetries,
					InitialBackoff:   cfg.Realtime.InitialBackoff,
					MaxBackoff:       cfg.Realtime.MaxBackoff,
				}, tokens, logger), nil
			},
			fx.As(new(channel.Dialer)),
		),
	),
)
