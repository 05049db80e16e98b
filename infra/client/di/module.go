package clientdi

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/artmarket/session-sync/config"
	"github.com/artmarket/session-sync/infra/client/api"
)

var Module = fx.Module(
	"api_client",

	// [CONSTRUCTOR] Provides the breaker-guarded REST client
	fx.Provide(func(cfg *config.Config, tokens api.TokenSource, tp trace.TracerProvider, logger *slog.Logger) (*api.Client, error) {
		return api.NewClient(api.Options{
			BaseURL:            cfg.API.BaseURL,
			Timeout:            cfg.API.Timeout,
			BreakerMaxRequests: cfg.API.Breaker.MaxRequests,
			BreakerInterval:    cfg.API.Breaker.Interval,
			BreakerTimeout:     cfg.API.Breaker.Timeout,
			BreakerFailures:    cfg.API.Breaker.Failures,
		}, tokens, tp, logger.With("component", "api"))
	}),
)
