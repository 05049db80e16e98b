package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/artmarket/session-sync/config"
	"github.com/artmarket/session-sync/internal/domain/model"
)

// ProvideLogger builds the process logger. The level follows config reloads.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Log.Level))

	var h slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	switch {
	case cfg.Log.Otel:
		// records go to the global LoggerProvider of the host process
		h = otelslog.NewHandler(ServiceName)
	case cfg.Log.Format == "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(h).With("service", ServiceName)

	cfg.Watch(func(next *config.Config) {
		level.Set(parseLevel(next.Log.Level))
		logger.Info("LOG_LEVEL_RELOADED", "level", level.Level().String())
	})

	return logger
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// ProvideWatermillLogger adapts slog for the in-process bus.
func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger.With("component", "bus"))
}

// ProvideTracerProvider backs the REST client spans.
func ProvideTracerProvider(lc fx.Lifecycle) trace.TracerProvider {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", ServiceName),
			attribute.String("service.namespace", ServiceNamespace),
			attribute.String("service.version", version),
		)),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp
}

// ProvideCatalog exposes the configured message templates.
func ProvideCatalog(cfg *config.Config) model.Catalog {
	return model.MapCatalog(cfg.MessageCatalog())
}
