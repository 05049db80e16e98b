package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/artmarket/session-sync/internal/adapter/pubsub"
	"github.com/artmarket/session-sync/internal/domain/channel"
	"github.com/artmarket/session-sync/internal/domain/event"
)

// Switcher is the push channel as seen by the sync layer.
type Switcher interface {
	Switch(ctx context.Context, userID *int64) error
	SetHandler(h channel.Handler)
}

// UnauthorizedNotifier reports auth-invalid REST responses.
type UnauthorizedNotifier interface {
	OnUnauthorized(fn func())
}

// Synchronizer reacts to session changes: on every identity change it
// unbinds the push channel, resets the notification store, binds the channel
// to the new user, then hydrates the store and resolves the profile in
// parallel.
//
// Bus delivery order is not guaranteed, so events only wake the loop; the
// work is derived from the container's current state and its epoch.
type Synchronizer struct {
	session  *Container
	store    *NotificationStore
	channel  Switcher
	profiles Resolver
	bus      pubsub.EventDispatcher
	logger   *slog.Logger

	// [RECONCILE] serialises reconciliations; boundEpoch is the identity last acted on
	mu         sync.Mutex
	boundEpoch uint64
	bound      bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSynchronizer(
	session *Container,
	store *NotificationStore,
	ch Switcher,
	profiles Resolver,
	bus pubsub.EventDispatcher,
	unauthorized UnauthorizedNotifier,
	logger *slog.Logger,
) *Synchronizer {
	s := &Synchronizer{
		session:  session,
		store:    store,
		channel:  ch,
		profiles: profiles,
		bus:      bus,
		logger:   logger,
	}

	ch.SetHandler(store.ReceivePush)

	// [AUTH_INVALIDATION] any 401 on an authenticated call ends the session
	unauthorized.OnUnauthorized(func() {
		if session.UserID() == nil {
			return
		}
		logger.Warn("SESSION_UNAUTHORIZED_LOGOUT")
		session.Logout(context.Background())
	})

	return s
}

// Start subscribes to session changes. It must run before the container is
// initialized so the first login is observed.
func (s *Synchronizer) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	msgs, err := s.bus.Subscribe(runCtx, event.TopicSession)
	if err != nil {
		cancel()
		return err
	}
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for msg := range msgs {
			if _, err := pubsub.Decode[event.SessionChangedEvent](msg); err != nil {
				s.logger.Warn("SYNC_EVENT_DECODE_FAILED", "err", err)
			}
			s.Reconcile(runCtx)
		}
	}()

	s.logger.Debug("SYNC_STARTED")
	return nil
}

// Stop ends the subscription and waits for in-flight work.
func (s *Synchronizer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Reconcile brings the channel and the store in line with the resident
// identity. It is idempotent per epoch; a caller that needs the store settled
// before acting on it may call it directly.
func (s *Synchronizer) Reconcile(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	epoch := s.session.Epoch()
	if epoch == s.boundEpoch {
		return
	}
	s.boundEpoch = epoch
	uid := s.session.UserID()

	// [ORDER] unbind, reset, bind, hydrate: a frame of the previous identity
	// can only land before the reset
	if s.bound {
		if err := s.channel.Switch(ctx, nil); err != nil {
			s.logger.Warn("SYNC_CHANNEL_SWITCH_FAILED", "err", err)
		}
		s.bound = false
	}
	s.store.Reset(ctx)
	if uid == nil {
		s.logger.Info("SYNC_UNBOUND", "epoch", epoch)
		return
	}

	// set even when the bind fails; unbinding an idle channel is a no-op
	s.bound = true
	if err := s.channel.Switch(ctx, uid); err != nil {
		// push degrades to REST-hydrated state only
		s.logger.Warn("SYNC_CHANNEL_SWITCH_FAILED", "err", err)
	}

	s.logger.Info("SYNC_BOUND", "user_id", *uid, "epoch", epoch)
	userID := *uid
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.populate(ctx, userID, epoch)
	}()
}

// populate hydrates notifications and resolves the profile concurrently.
// A failure of one does not cancel the other.
func (s *Synchronizer) populate(ctx context.Context, userID int64, epoch uint64) {
	var g errgroup.Group

	g.Go(func() error {
		return s.store.Hydrate(ctx)
	})

	g.Go(func() error {
		u, err := s.profiles.Resolve(ctx, userID)
		if err != nil {
			return err
		}
		return s.session.ApplyProfile(ctx, epoch, u)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, ErrStaleResponse) && !errors.Is(err, context.Canceled) {
		s.logger.Warn("SYNC_POPULATE_INCOMPLETE", "user_id", userID, "err", err)
	}
}
