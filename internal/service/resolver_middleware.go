package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/artmarket/session-sync/internal/domain/model"
)

// ResolverMiddleware implements [DECORATOR_PATTERN] to add observability
// to profile resolution without touching the lookup logic.
type ResolverMiddleware struct {
	Next   Resolver
	Logger *slog.Logger
}

func NewResolverMiddleware(next Resolver, logger *slog.Logger) Resolver {
	return &ResolverMiddleware{
		Next:   next,
		Logger: logger,
	}
}

func (m *ResolverMiddleware) Resolve(ctx context.Context, userID int64) (model.User, error) {
	start := time.Now()

	u, err := m.Next.Resolve(ctx, userID)
	if err != nil {
		m.Logger.Warn("PROFILE_RESOLVE_FAILED",
			"user_id", userID,
			"err", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return u, err
	}

	m.Logger.Debug("PROFILE_RESOLVED",
		"user_id", userID,
		"role", u.Role,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return u, nil
}

func (m *ResolverMiddleware) Forget(userID int64) {
	m.Next.Forget(userID)
}
