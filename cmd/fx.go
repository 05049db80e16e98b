package cmd

import (
	"log/slog"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/artmarket/session-sync/config"
	clientdi "github.com/artmarket/session-sync/infra/client/di"
	"github.com/artmarket/session-sync/infra/storage"
	"github.com/artmarket/session-sync/infra/transport/ws"
	"github.com/artmarket/session-sync/internal/adapter/pubsub"
	"github.com/artmarket/session-sync/internal/domain/channel"
	servicedi "github.com/artmarket/session-sync/internal/service/di"
)

// NewApp assembles the client. Command-specific modules and populate targets
// come in through opts.
func NewApp(cfg *config.Config, opts ...fx.Option) *fx.App {
	base := []fx.Option{
		fx.WithLogger(func(l *slog.Logger) fxevent.Logger {
			fl := &fxevent.SlogLogger{Logger: l.With("component", "fx")}
			fl.UseLogLevel(slog.LevelDebug)
			return fl
		}),
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
			ProvideTracerProvider,
			ProvideCatalog,
		),
		storage.Module,
		pubsub.Module,
		clientdi.Module,
		ws.Module,
		channel.Module,
		servicedi.Module,
	}
	return fx.New(append(base, opts...)...)
}
