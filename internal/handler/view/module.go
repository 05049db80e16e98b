package view

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"go.uber.org/fx"

	"github.com/artmarket/session-sync/config"
	"github.com/artmarket/session-sync/internal/adapter/pubsub"
	"github.com/artmarket/session-sync/internal/domain/model"
	"github.com/artmarket/session-sync/internal/handler/lp"
	"github.com/artmarket/session-sync/internal/handler/ws"
	"github.com/artmarket/session-sync/internal/service"
)

var Module = fx.Module("view",
	fx.Provide(
		func(
			session *service.Container,
			store *service.NotificationStore,
			auth *service.Authenticator,
			bus pubsub.EventDispatcher,
			catalog model.Catalog,
			cfg *config.Config,
			logger *slog.Logger,
		) *Server {
			logger = logger.With("component", "view")
			return NewServer(session, store, auth, catalog, logger, Options{
				Stream: ws.NewWSHandler(logger, bus, store, catalog),
				Poll:   lp.NewLPHandler(bus, cfg.View.PollTimeout).Poll,
			})
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, s *Server, cfg *config.Config, logger *slog.Logger) {
		srv := &http.Server{Handler: s.Routes()}

		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				ln, err := net.Listen("tcp", cfg.View.Addr)
				if err != nil {
					return err
				}
				go func() {
					if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("VIEW_SERVER_FAILED", "err", err)
					}
				}()
				logger.Info("VIEW_SERVER_LISTENING", "addr", ln.Addr().String())
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
		})
	}),
)
