package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/spf13/afero"

	"github.com/artmarket/session-sync/infra/storage"
	"github.com/artmarket/session-sync/internal/adapter/pubsub"
	"github.com/artmarket/session-sync/internal/domain/channel"
	"github.com/artmarket/session-sync/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBus(t *testing.T) pubsub.EventDispatcher {
	t.Helper()
	gc := pubsub.NewGoChannel(watermill.NopLogger{})
	t.Cleanup(func() { _ = gc.Close() })
	return pubsub.NewEventDispatcher(gc, gc)
}

func newMemKV() storage.KV {
	return storage.NewFileKV(afero.NewMemMapFs(), "/data", "session")
}

func note(id int64, read bool) model.Notification {
	return model.Notification{
		ID:        id,
		Read:      read,
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Payload:   model.LegacyPayload{Message: fmt.Sprintf("n%d", id)},
	}
}

func ids(ns []model.Notification) []int64 {
	out := make([]int64, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.ID)
	}
	return out
}

// stubAPI stands in for the REST client.
type stubAPI struct {
	mu        sync.Mutex
	list      func(ctx context.Context, userID int64) ([]model.Notification, error)
	me        func(ctx context.Context) (model.User, error)
	markErr   error
	deleteErr error
	marked    []int64
	deleted   []int64
	meCalls   int
	hooks     []func()
	// inFlight runs inside mark/delete calls, before they return.
	inFlight func()
}

func (s *stubAPI) Notifications(ctx context.Context, userID int64) ([]model.Notification, error) {
	s.mu.Lock()
	fn := s.list
	s.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, userID)
}

func (s *stubAPI) MarkNotificationRead(_ context.Context, id int64) error {
	s.mu.Lock()
	s.marked = append(s.marked, id)
	err, fn := s.markErr, s.inFlight
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
	return err
}

func (s *stubAPI) DeleteNotification(_ context.Context, id int64) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, id)
	err, fn := s.deleteErr, s.inFlight
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
	return err
}

func (s *stubAPI) Me(ctx context.Context) (model.User, error) {
	s.mu.Lock()
	s.meCalls++
	fn := s.me
	s.mu.Unlock()
	if fn == nil {
		return model.User{}, fmt.Errorf("me: not stubbed")
	}
	return fn(ctx)
}

func (s *stubAPI) OnUnauthorized(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *stubAPI) fireUnauthorized() {
	s.mu.Lock()
	hooks := append([]func(){}, s.hooks...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// fakeIdentity is a settable Identity.
type fakeIdentity struct {
	mu    sync.Mutex
	uid   *int64
	epoch uint64
}

func (f *fakeIdentity) UserID() *int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uid == nil {
		return nil
	}
	return model.ID(*f.uid)
}

func (f *fakeIdentity) Epoch() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.epoch
}

func (f *fakeIdentity) become(uid *int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uid = uid
	f.epoch++
}

// fakeSwitcher records channel transitions.
type fakeSwitcher struct {
	mu      sync.Mutex
	calls   []*int64
	handler channel.Handler

	// beforeUnbind runs at the start of Switch(nil), while the old
	// connection would still be reading.
	beforeUnbind func(ctx context.Context)
}

func (f *fakeSwitcher) Switch(ctx context.Context, userID *int64) error {
	f.mu.Lock()
	fn := f.beforeUnbind
	f.mu.Unlock()
	if userID == nil && fn != nil {
		fn(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var c *int64
	if userID != nil {
		c = model.ID(*userID)
	}
	f.calls = append(f.calls, c)
	return nil
}

func (f *fakeSwitcher) SetHandler(h channel.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeSwitcher) history() []*int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*int64(nil), f.calls...)
}

func (f *fakeSwitcher) push(ctx context.Context, n model.Notification) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(ctx, n)
}
