package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artmarket/session-sync/internal/domain/model"
)

type syncFixture struct {
	session  *Container
	store    *NotificationStore
	switcher *fakeSwitcher
	api      *stubAPI
	sync     *Synchronizer
}

func newSyncFixture(t *testing.T, api *stubAPI) *syncFixture {
	t.Helper()
	bus := newBus(t)
	session := NewContainer(NewSessionStore(newMemKV(), testLogger()), bus, testLogger())
	store := NewNotificationStore(api, session, bus, testLogger())
	sw := &fakeSwitcher{}
	resolver, err := NewProfileResolver(api, 8)
	require.NoError(t, err)

	s := NewSynchronizer(session, store, sw, resolver, bus, api, testLogger())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	return &syncFixture{session: session, store: store, switcher: sw, api: api, sync: s}
}

func TestSync_LoginHydratesAndBindsChannel(t *testing.T) {
	api := &stubAPI{
		list: func(_ context.Context, userID int64) ([]model.Notification, error) {
			return []model.Notification{{ID: 1, Read: false, Payload: model.LegacyPayload{Message: "hi"}}}, nil
		},
		me: func(context.Context) (model.User, error) {
			return model.User{ID: 1, Role: model.RoleArtist, Fullname: "A", Artist: &model.ArtistProfile{ID: 11}}, nil
		},
	}
	f := newSyncFixture(t, api)
	ctx := context.Background()

	require.NoError(t, f.session.Login(ctx, model.User{ID: 1, Role: model.RoleArtist, Fullname: "A"}, "tok"))

	require.Eventually(t, func() bool { return len(f.store.List()) == 1 }, 2*time.Second, 10*time.Millisecond)
	list := f.store.List()
	assert.Equal(t, int64(1), list[0].ID)
	assert.Equal(t, "hi", list[0].Text(nil))

	calls := f.switcher.history()
	require.NotEmpty(t, calls)
	require.NotNil(t, calls[0])
	assert.Equal(t, int64(1), *calls[0])

	// the lazily resolved artist id lands without rebinding the channel
	require.Eventually(t, func() bool {
		a := f.session.Snapshot().ArtistID
		return a != nil && *a == 11
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, f.switcher.history(), 1)
}

func TestSync_LogoutUnbindsAndClears(t *testing.T) {
	api := &stubAPI{list: serverList(note(1, false))}
	f := newSyncFixture(t, api)
	ctx := context.Background()

	require.NoError(t, f.session.Login(ctx, artist(), "tok"))
	require.Eventually(t, func() bool { return len(f.store.List()) == 1 }, 2*time.Second, 10*time.Millisecond)

	f.session.Logout(ctx)

	require.Eventually(t, func() bool {
		calls := f.switcher.history()
		return len(calls) == 2 && calls[1] == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, f.store.List())
}

func TestSync_UserChangeRebinds(t *testing.T) {
	api := &stubAPI{list: func(_ context.Context, userID int64) ([]model.Notification, error) {
		return []model.Notification{note(userID*100, false)}, nil
	}}
	f := newSyncFixture(t, api)
	ctx := context.Background()

	require.NoError(t, f.session.Login(ctx, model.User{ID: 7, Role: model.RoleArtist}, "tok7"))
	require.Eventually(t, func() bool {
		l := f.store.List()
		return len(l) == 1 && l[0].ID == 700
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.session.Login(ctx, model.User{ID: 9, Role: model.RoleEmployer}, "tok9"))
	require.Eventually(t, func() bool {
		l := f.store.List()
		return len(l) == 1 && l[0].ID == 900
	}, 2*time.Second, 10*time.Millisecond)

	// the old user's connection is gone before the new one is dialed
	calls := f.switcher.history()
	require.Len(t, calls, 3)
	assert.Equal(t, int64(7), *calls[0])
	assert.Nil(t, calls[1])
	assert.Equal(t, int64(9), *calls[2])
}

func TestSync_LateFrameOfPreviousUserIsCleared(t *testing.T) {
	api := &stubAPI{list: func(_ context.Context, userID int64) ([]model.Notification, error) {
		if userID == 9 {
			return nil, nil
		}
		return []model.Notification{note(1, false)}, nil
	}}
	f := newSyncFixture(t, api)
	ctx := context.Background()

	// the old socket delivers one more frame while it is being torn down
	f.switcher.beforeUnbind = func(ctx context.Context) { f.switcher.push(ctx, note(77, false)) }

	t.Run("logout", func(t *testing.T) {
		require.NoError(t, f.session.Login(ctx, artist(), "tok"))
		require.Eventually(t, func() bool { return len(f.store.List()) == 1 }, 2*time.Second, 10*time.Millisecond)

		f.session.Logout(ctx)
		require.Eventually(t, func() bool {
			calls := f.switcher.history()
			return len(calls) == 2 && calls[1] == nil
		}, 2*time.Second, 10*time.Millisecond)

		require.Eventually(t, func() bool { return len(f.store.List()) == 0 }, 2*time.Second, 10*time.Millisecond)
		assert.Never(t, func() bool { return len(f.store.List()) != 0 }, 100*time.Millisecond, 10*time.Millisecond)
	})

	t.Run("user change", func(t *testing.T) {
		require.NoError(t, f.session.Login(ctx, artist(), "tok"))
		require.Eventually(t, func() bool { return len(f.store.List()) == 1 }, 2*time.Second, 10*time.Millisecond)

		require.NoError(t, f.session.Login(ctx, model.User{ID: 9, Role: model.RoleEmployer}, "tok9"))
		require.Eventually(t, func() bool {
			calls := f.switcher.history()
			last := calls[len(calls)-1]
			return last != nil && *last == 9
		}, 2*time.Second, 10*time.Millisecond)

		assert.Never(t, func() bool { return len(f.store.List()) != 0 }, 200*time.Millisecond, 10*time.Millisecond)
	})
}

func TestSync_PushesReachStore(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	api := &stubAPI{list: func(context.Context, int64) ([]model.Notification, error) {
		close(entered)
		<-release
		return []model.Notification{note(1, true)}, nil
	}}
	f := newSyncFixture(t, api)
	ctx := context.Background()

	require.NoError(t, f.session.Login(ctx, artist(), "tok"))
	<-entered

	// a push racing the initial hydrate survives the merge
	f.switcher.push(ctx, note(5, false))
	close(release)

	require.Eventually(t, func() bool {
		l := ids(f.store.List())
		return len(l) == 2 && l[0] == 5 && l[1] == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSync_UnauthorizedLogsOut(t *testing.T) {
	f := newSyncFixture(t, &stubAPI{})
	ctx := context.Background()

	require.NoError(t, f.session.Login(ctx, artist(), "tok"))
	f.api.fireUnauthorized()

	assert.False(t, f.session.Snapshot().Authenticated())
	require.Eventually(t, func() bool {
		calls := f.switcher.history()
		return len(calls) > 0 && calls[len(calls)-1] == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSync_InitializeFromStorageBinds(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	NewSessionStore(kv, testLogger()).Save(ctx, model.NewSession(artist(), "tok"))

	bus := newBus(t)
	api := &stubAPI{list: serverList(note(1, false))}
	session := NewContainer(NewSessionStore(kv, testLogger()), bus, testLogger())
	store := NewNotificationStore(api, session, bus, testLogger())
	sw := &fakeSwitcher{}
	resolver, err := NewProfileResolver(api, 8)
	require.NoError(t, err)

	s := NewSynchronizer(session, store, sw, resolver, bus, api, testLogger())
	require.NoError(t, s.Start(ctx))
	t.Cleanup(s.Stop)

	session.Initialize(ctx)

	require.Eventually(t, func() bool { return len(store.List()) == 1 }, 2*time.Second, 10*time.Millisecond)
	calls := sw.history()
	require.Len(t, calls, 1)
	assert.Equal(t, int64(1), *calls[0])
}

func TestSync_DirectReconcileSettlesBeforeHydrate(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	NewSessionStore(kv, testLogger()).Save(ctx, model.NewSession(artist(), "tok"))

	bus := newBus(t)
	api := &stubAPI{list: serverList(note(2, false), note(1, false))}
	session := NewContainer(NewSessionStore(kv, testLogger()), bus, testLogger())
	store := NewNotificationStore(api, session, bus, testLogger())
	sw := &fakeSwitcher{}
	resolver, err := NewProfileResolver(api, 8)
	require.NoError(t, err)

	s := NewSynchronizer(session, store, sw, resolver, bus, api, testLogger())
	require.NoError(t, s.Start(ctx))
	t.Cleanup(s.Stop)
	session.Initialize(ctx)

	s.Reconcile(ctx)
	require.NoError(t, store.Hydrate(ctx))

	// no later reset can wipe what the caller just loaded
	assert.Equal(t, []int64{2, 1}, ids(store.List()))
	assert.Never(t, func() bool { return len(store.List()) != 2 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Len(t, sw.history(), 1)
}
