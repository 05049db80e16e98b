package service

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/artmarket/session-sync/internal/domain/model"
)

// ProfileFetcher loads the current user with its nested artist/employer profile.
type ProfileFetcher interface {
	Me(ctx context.Context) (model.User, error)
}

// Resolver defines the contract for lazily discovering profile ids.
type Resolver interface {
	// Resolve returns the full profile of userID.
	Resolve(ctx context.Context, userID int64) (model.User, error)
	// Forget drops the cached profile of userID.
	Forget(userID int64)
}

type ProfileResolver struct {
	api   ProfileFetcher
	cache *lru.Cache[int64, model.User]
}

// NewProfileResolver provides a thread-safe resolver with an internal LRU cache.
func NewProfileResolver(api ProfileFetcher, size int) (*ProfileResolver, error) {
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[int64, model.User](size)
	if err != nil {
		return nil, fmt.Errorf("profile cache: %w", err)
	}
	return &ProfileResolver{api: api, cache: cache}, nil
}

// Resolve is cache-aside over /api/users/me.
func (r *ProfileResolver) Resolve(ctx context.Context, userID int64) (model.User, error) {
	// [HOT_PATH]
	if cached, ok := r.cache.Get(userID); ok {
		return cached, nil
	}

	u, err := r.api.Me(ctx)
	if err != nil {
		return model.User{}, err
	}

	// [IDENTITY_GUARD] /me answers for the token, which may already belong to someone else
	if u.ID != userID {
		return model.User{}, fmt.Errorf("resolve profile %d: got user %d: %w", userID, u.ID, ErrStaleResponse)
	}

	r.cache.Add(userID, u)
	return u, nil
}

func (r *ProfileResolver) Forget(userID int64) {
	r.cache.Remove(userID)
}
