package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
	"go.uber.org/fx"

	"github.com/artmarket/session-sync/config"
)

var Module = fx.Module("storage",
	fx.Provide(NewKV),
)

// NewKV selects the durable backend named by storage.driver.
func NewKV(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (KV, error) {
	sc := cfg.Storage
	switch sc.Driver {
	case "", "file":
		logger.Debug("STORAGE_READY", "driver", "file", "dir", sc.Dir)
		return NewFileKV(afero.NewOsFs(), sc.Dir, sc.Namespace), nil

	case "redis":
		client, err := NewRedisClient(context.Background(), RedisConfig{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
		logger.Debug("STORAGE_READY", "driver", "redis", "addr", sc.Redis.Addr)
		return NewRedisKV(client, sc.Redis.Prefix, sc.Namespace), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, sc.Driver)
	}
}
