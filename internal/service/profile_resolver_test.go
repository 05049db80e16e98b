package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artmarket/session-sync/internal/domain/model"
)

func TestProfileResolver_CachesByUser(t *testing.T) {
	stub := &stubAPI{me: func(context.Context) (model.User, error) {
		return model.User{ID: 1, Role: model.RoleArtist, Artist: &model.ArtistProfile{ID: 3}}, nil
	}}
	r, err := NewProfileResolver(stub, 2)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		u, err := r.Resolve(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(3), u.Artist.ID)
	}
	assert.Equal(t, 1, stub.meCalls)

	r.Forget(1)
	_, err = r.Resolve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.meCalls)
}

func TestProfileResolver_RejectsForeignIdentity(t *testing.T) {
	stub := &stubAPI{me: func(context.Context) (model.User, error) {
		return model.User{ID: 2}, nil
	}}
	r, err := NewProfileResolver(stub, 2)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), 1)
	assert.ErrorIs(t, err, ErrStaleResponse)
}

func TestResolverMiddleware_Delegates(t *testing.T) {
	stub := &stubAPI{me: func(context.Context) (model.User, error) {
		return model.User{ID: 1}, nil
	}}
	inner, err := NewProfileResolver(stub, 2)
	require.NoError(t, err)
	r := NewResolverMiddleware(inner, testLogger())

	u, err := r.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)

	r.Forget(1)
	_, _ = r.Resolve(context.Background(), 1)
	assert.Equal(t, 2, stub.meCalls)
}
