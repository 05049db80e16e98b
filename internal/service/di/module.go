package servicedi

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/artmarket/session-sync/config"
	"github.com/artmarket/session-sync/infra/client/api"
	"github.com/artmarket/session-sync/infra/transport/ws"
	"github.com/artmarket/session-sync/internal/domain/channel"
	"github.com/artmarket/session-sync/internal/domain/guard"
	"github.com/artmarket/session-sync/internal/service"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		service.NewSessionStore,
		service.NewContainer,
		service.NewAuthenticator,
		guard.New,

		// [INTERFACE_BINDING] the container is the token source of both transports
		fx.Annotate(
			func(c *service.Container) *service.Container { return c },
			fx.As(new(api.TokenSource)),
			fx.As(new(ws.TokenSource)),
			fx.As(new(guard.SessionSource)),
			fx.As(new(service.Identity)),
		),
		fx.Annotate(
			func(c *api.Client) *api.Client { return c },
			fx.As(new(service.NotificationAPI)),
			fx.As(new(service.ProfileFetcher)),
			fx.As(new(service.AuthAPI)),
			fx.As(new(service.UnauthorizedNotifier)),
		),
		fx.Annotate(
			func(ch *channel.Channel) *channel.Channel { return ch },
			fx.As(new(service.Switcher)),
		),

		service.NewNotificationStore,
		fx.Annotate(
			func(a service.ProfileFetcher, cfg *config.Config) (*service.ProfileResolver, error) {
				return service.NewProfileResolver(a, cfg.Profile.CacheSize)
			},
			fx.As(new(service.Resolver)),
		),
		service.NewSynchronizer,
	),

	// [DECORATION_LAYER] Intercept Resolver to add cross-cutting concerns
	fx.Decorate(func(orig service.Resolver, logger *slog.Logger) service.Resolver {
		return service.NewResolverMiddleware(orig, logger)
	}),

	fx.Invoke(func(lc fx.Lifecycle, sync *service.Synchronizer, session *service.Container) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				// [ORDER] subscribe before the persisted session is applied
				if err := sync.Start(ctx); err != nil {
					return err
				}
				session.Initialize(ctx)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				sync.Stop()
				return nil
			},
		})
	}),
)
