package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/artmarket/session-sync/internal/adapter/pubsub"
	"github.com/artmarket/session-sync/internal/domain/event"
	"github.com/artmarket/session-sync/internal/domain/model"
)

var (
	ErrInvalidIdentity = errors.New("session: user id and token are required")
	ErrNoSession       = errors.New("session: not logged in")
)

// Container is the single in-memory authority for who is logged in. Every
// mutation is persisted through the SessionStore and announced on the bus;
// dependent effects (push channel, notification hydration) react to those
// announcements instead of running inline.
type Container struct {
	store  *SessionStore
	bus    pubsub.EventDispatcher
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	session model.Session
	// epoch increments whenever the identity (user id or token) changes.
	epoch uint64
}

func NewContainer(store *SessionStore, bus pubsub.EventDispatcher, logger *slog.Logger) *Container {
	return &Container{
		store:  store,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// Initialize applies the persisted session, if any. A corrupt record or an
// expired JWT leaves the client anonymous with storage wiped.
func (c *Container) Initialize(ctx context.Context) {
	sess, err := c.store.load(ctx)
	switch {
	case errors.Is(err, errNoSession):
		c.logger.Debug("SESSION_INITIALIZED", "authenticated", false)
		return
	case err != nil:
		c.Logout(ctx)
		return
	case tokenExpired(sess.AuthToken, c.now()):
		c.logger.Info("SESSION_TOKEN_EXPIRED", "user_id", *sess.UserID)
		c.Logout(ctx)
		return
	}

	c.replace(ctx, sess, false)
	c.logger.Info("SESSION_INITIALIZED", "authenticated", true, "user_id", *sess.UserID)
}

// Login makes u the resident identity. Repeating a login with the same data
// only rewrites storage.
func (c *Container) Login(ctx context.Context, u model.User, token string) error {
	if u.ID == 0 || token == "" {
		return ErrInvalidIdentity
	}
	c.replace(ctx, model.NewSession(u, token), true)
	return nil
}

// Logout resets every field and wipes storage. Safe when already anonymous.
func (c *Container) Logout(ctx context.Context) {
	c.mu.Lock()
	prev := c.session
	c.session = model.Session{}
	if prev.Authenticated() {
		c.epoch++
	}
	ep := c.epoch
	c.mu.Unlock()

	c.store.Clear(ctx, true)

	if !prev.Authenticated() {
		return
	}
	c.logger.Info("SESSION_LOGGED_OUT", "user_id", *prev.UserID)
	c.publish(ctx, prev, model.Session{}, ep)
}

func (c *Container) SetArtistID(ctx context.Context, id int64) {
	c.mutate(ctx, 0, false, SessionPatch{ArtistID: &id})
}

func (c *Container) SetEmployerID(ctx context.Context, id int64) {
	c.mutate(ctx, 0, false, SessionPatch{EmployerID: &id})
}

func (c *Container) SetRole(ctx context.Context, r model.Role) {
	c.mutate(ctx, 0, false, SessionPatch{Role: &r})
}

func (c *Container) SetFullname(ctx context.Context, name string) {
	c.mutate(ctx, 0, false, SessionPatch{Fullname: &name})
}

// ApplyProfile merges a fetched profile in one step, provided the identity is
// still the one of generation epoch. It reports ErrStaleResponse otherwise.
func (c *Container) ApplyProfile(ctx context.Context, epoch uint64, u model.User) error {
	var p SessionPatch
	if u.Role != model.RoleNone {
		p.Role = &u.Role
	}
	if u.Fullname != "" {
		p.Fullname = &u.Fullname
	}
	if u.Artist != nil {
		p.ArtistID = &u.Artist.ID
	}
	if u.Employer != nil {
		p.EmployerID = &u.Employer.ID
	}
	if !c.mutate(ctx, epoch, true, p) {
		return ErrStaleResponse
	}
	return nil
}

// Snapshot returns a copy of the resident session.
func (c *Container) Snapshot() model.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Clone()
}

// Epoch returns the identity generation.
func (c *Container) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Token returns the bearer token, empty when anonymous.
func (c *Container) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.AuthToken
}

// UserID returns the current user id, nil when anonymous.
func (c *Container) UserID() *int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session.UserID == nil {
		return nil
	}
	return model.ID(*c.session.UserID)
}

// replace installs next as the whole session.
func (c *Container) replace(ctx context.Context, next model.Session, persist bool) {
	c.mu.Lock()
	prev := c.session
	if !prev.SameIdentity(next) {
		c.epoch++
	}
	c.session = next.Clone()
	ep := c.epoch
	c.mu.Unlock()

	if persist {
		c.store.Save(ctx, next)
	}
	if prev.Equal(next) {
		return
	}
	c.logger.Info("SESSION_LOGGED_IN", "user_id", *next.UserID, "role", next.Role)
	c.publish(ctx, prev, next, ep)
}

// mutate applies p to the in-memory session and the durable record. It never
// touches the identity, so the epoch stays. With checkEpoch set it refuses to
// apply once the identity moved past epoch. It reports whether p was applied.
func (c *Container) mutate(ctx context.Context, epoch uint64, checkEpoch bool, p SessionPatch) bool {
	c.mu.Lock()
	if authed := c.session.Authenticated(); !authed || (checkEpoch && c.epoch != epoch) {
		c.mu.Unlock()
		c.logger.Debug("SESSION_PATCH_IGNORED", "authenticated", authed)
		return false
	}
	prev := c.session.Clone()
	p.apply(&c.session)
	next := c.session.Clone()
	ep := c.epoch
	c.mu.Unlock()

	if prev.Equal(next) {
		return true
	}
	c.store.Patch(ctx, p)
	c.publish(ctx, prev, next, ep)
	return true
}

func (c *Container) publish(ctx context.Context, prev, next model.Session, epoch uint64) {
	if err := c.bus.Publish(ctx, event.NewSessionChanged(prev, next, epoch)); err != nil {
		c.logger.Warn("SESSION_EVENT_PUBLISH_FAILED", "err", err)
	}
}

// tokenExpired inspects the exp claim of a JWT without verifying it. Opaque
// tokens never expire client-side.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
