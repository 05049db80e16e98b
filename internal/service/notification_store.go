package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/artmarket/session-sync/internal/adapter/pubsub"
	"github.com/artmarket/session-sync/internal/domain/event"
	"github.com/artmarket/session-sync/internal/domain/model"
)

var (
	// ErrStaleResponse is returned when a response arrives after the identity
	// that requested it was replaced; the response is discarded.
	ErrStaleResponse = errors.New("stale response discarded")
	ErrNotFound      = errors.New("notification not found")
)

// NotificationAPI is the REST surface the store needs.
type NotificationAPI interface {
	Notifications(ctx context.Context, userID int64) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	DeleteNotification(ctx context.Context, id int64) error
}

// Identity is the view of the session the store checks responses against.
type Identity interface {
	UserID() *int64
	Epoch() uint64
}

// NotificationStore is the ordered, newest-first collection of the current
// user's notifications. MarkRead and Remove mutate only after the server
// confirmed; pushes are applied immediately.
type NotificationStore struct {
	api     NotificationAPI
	session Identity
	bus     pubsub.EventDispatcher
	logger  *slog.Logger

	mu    sync.RWMutex
	items []model.Notification
	err   error
	// pushed collects ids received while a hydrate is in flight so the
	// merge keeps them.
	hydrating int
	pushed    map[int64]struct{}
}

func NewNotificationStore(api NotificationAPI, session Identity, bus pubsub.EventDispatcher, logger *slog.Logger) *NotificationStore {
	return &NotificationStore{
		api:     api,
		session: session,
		bus:     bus,
		logger:  logger,
	}
}

// Hydrate replaces the collection with the server's list. On failure the
// collection is emptied and Err reports the cause. There is no retry.
func (s *NotificationStore) Hydrate(ctx context.Context) error {
	uid := s.session.UserID()
	if uid == nil {
		return ErrNoSession
	}
	epoch := s.session.Epoch()

	s.mu.Lock()
	if s.hydrating == 0 {
		s.pushed = make(map[int64]struct{})
	}
	s.hydrating++
	s.mu.Unlock()

	list, err := s.api.Notifications(ctx, *uid)

	s.mu.Lock()
	s.hydrating--
	// [IDENTITY_GUARD] checked under the lock so a concurrent Reset cannot interleave
	if s.session.Epoch() != epoch {
		s.mu.Unlock()
		s.logger.Debug("NOTIFICATIONS_HYDRATE_DISCARDED", "user_id", *uid)
		return ErrStaleResponse
	}

	if err != nil {
		s.items = nil
		s.err = err
		ev := s.eventLocked(event.ReasonFailed, 0)
		s.mu.Unlock()

		s.logger.Warn("NOTIFICATIONS_HYDRATE_FAILED", "user_id", *uid, "err", err)
		s.publish(ctx, ev)
		return fmt.Errorf("hydrate notifications: %w", err)
	}

	s.items = s.mergeLocked(list)
	s.err = nil
	if s.hydrating == 0 {
		s.pushed = nil
	}
	ev := s.eventLocked(event.ReasonHydrated, 0)
	s.mu.Unlock()

	s.logger.Debug("NOTIFICATIONS_HYDRATED", "user_id", *uid, "total", ev.Total)
	s.publish(ctx, ev)
	return nil
}

// mergeLocked returns the server list, de-duplicated by id, preceded by
// pushes that arrived during the request and that the server did not return.
func (s *NotificationStore) mergeLocked(server []model.Notification) []model.Notification {
	seen := make(map[int64]struct{}, len(server))
	out := make([]model.Notification, 0, len(server)+len(s.pushed))

	dedup := make([]model.Notification, 0, len(server))
	for _, n := range server {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		dedup = append(dedup, n)
	}

	for _, n := range s.items {
		if _, ok := s.pushed[n.ID]; !ok {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}
	return append(out, dedup...)
}

// ReceivePush puts n at the front. A record with the same id is replaced.
func (s *NotificationStore) ReceivePush(ctx context.Context, n model.Notification) {
	s.mu.Lock()
	s.items = slices.DeleteFunc(s.items, func(x model.Notification) bool { return x.ID == n.ID })
	s.items = slices.Insert(s.items, 0, n)
	if s.hydrating > 0 {
		s.pushed[n.ID] = struct{}{}
	}
	ev := s.eventLocked(event.ReasonPushed, n.ID)
	s.mu.Unlock()

	s.logger.Debug("NOTIFICATION_PUSHED", "notification_id", n.ID)
	s.publish(ctx, ev)
}

// MarkRead marks id read on the server, then flips the local flag.
func (s *NotificationStore) MarkRead(ctx context.Context, id int64) error {
	if !s.contains(id) {
		return fmt.Errorf("mark read %d: %w", id, ErrNotFound)
	}
	epoch := s.session.Epoch()

	if err := s.api.MarkNotificationRead(ctx, id); err != nil {
		return fmt.Errorf("mark read %d: %w", id, err)
	}

	s.mu.Lock()
	if s.session.Epoch() != epoch {
		s.mu.Unlock()
		return ErrStaleResponse
	}
	if i := s.indexLocked(id); i >= 0 {
		s.items[i].Read = true
	}
	ev := s.eventLocked(event.ReasonRead, id)
	s.mu.Unlock()

	s.publish(ctx, ev)
	return nil
}

// Remove deletes id on the server, then drops it locally keeping the order
// of the rest.
func (s *NotificationStore) Remove(ctx context.Context, id int64) error {
	if !s.contains(id) {
		return fmt.Errorf("remove %d: %w", id, ErrNotFound)
	}
	epoch := s.session.Epoch()

	if err := s.api.DeleteNotification(ctx, id); err != nil {
		return fmt.Errorf("remove %d: %w", id, err)
	}

	s.mu.Lock()
	if s.session.Epoch() != epoch {
		s.mu.Unlock()
		return ErrStaleResponse
	}
	if i := s.indexLocked(id); i >= 0 {
		s.items = slices.Delete(s.items, i, i+1)
	}
	ev := s.eventLocked(event.ReasonRemoved, id)
	s.mu.Unlock()

	s.publish(ctx, ev)
	return nil
}

// Reset empties the collection and the error flag.
func (s *NotificationStore) Reset(ctx context.Context) {
	s.mu.Lock()
	s.items = nil
	s.err = nil
	if s.hydrating > 0 {
		s.pushed = make(map[int64]struct{})
	}
	ev := s.eventLocked(event.ReasonReset, 0)
	s.mu.Unlock()

	s.publish(ctx, ev)
}

// List returns a copy of the collection, newest first.
func (s *NotificationStore) List() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

func (s *NotificationStore) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadLocked()
}

// Err reports the last hydrate failure, nil after a successful hydrate.
func (s *NotificationStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *NotificationStore) contains(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(id) >= 0
}

func (s *NotificationStore) indexLocked(id int64) int {
	return slices.IndexFunc(s.items, func(n model.Notification) bool { return n.ID == id })
}

func (s *NotificationStore) unreadLocked() int {
	unread := 0
	for _, n := range s.items {
		if !n.Read {
			unread++
		}
	}
	return unread
}

func (s *NotificationStore) eventLocked(reason event.Reason, id int64) *event.NotificationsChangedEvent {
	return event.NewNotificationsChanged(reason, id, len(s.items), s.unreadLocked())
}

func (s *NotificationStore) publish(ctx context.Context, ev event.Eventer) {
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Warn("NOTIFICATIONS_EVENT_PUBLISH_FAILED", "err", err)
	}
}
