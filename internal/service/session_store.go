package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/artmarket/session-sync/infra/storage"
	"github.com/artmarket/session-sync/internal/domain/model"
)

// Durable keys.
const (
	keyToken = "token"
	keyUser  = "user"
)

var (
	errNoSession      = errors.New("session store: no session")
	errCorruptSession = errors.New("session store: corrupt record")
)

// SessionPatch carries the fields to merge into the durable record. Nil fields
// are left untouched.
type SessionPatch struct {
	Role       *model.Role
	ArtistID   *int64
	EmployerID *int64
	Fullname   *string
}

func (p SessionPatch) apply(s *model.Session) {
	if p.Role != nil {
		s.Role = *p.Role
	}
	if p.ArtistID != nil {
		s.ArtistID = model.ID(*p.ArtistID)
	}
	if p.EmployerID != nil {
		s.EmployerID = model.ID(*p.EmployerID)
	}
	if p.Fullname != nil {
		s.Fullname = *p.Fullname
	}
}

// SessionStore is the only component that touches durable storage. Every
// operation fails soft: storage errors are logged, never returned.
type SessionStore struct {
	kv     storage.KV
	logger *slog.Logger
}

func NewSessionStore(kv storage.KV, logger *slog.Logger) *SessionStore {
	return &SessionStore{kv: kv, logger: logger}
}

// Load returns the persisted session, or false when none exists or the
// record cannot be trusted.
func (s *SessionStore) Load(ctx context.Context) (model.Session, bool) {
	sess, err := s.load(ctx)
	if err != nil {
		return model.Session{}, false
	}
	return sess, true
}

// load distinguishes an absent session from a corrupt one.
func (s *SessionStore) load(ctx context.Context) (model.Session, error) {
	token, hasToken, err := s.kv.Get(ctx, keyToken)
	if err != nil {
		s.logger.Warn("SESSION_LOAD_FAILED", "key", keyToken, "err", err)
		return model.Session{}, errNoSession
	}
	raw, hasUser, err := s.kv.Get(ctx, keyUser)
	if err != nil {
		s.logger.Warn("SESSION_LOAD_FAILED", "key", keyUser, "err", err)
		return model.Session{}, errNoSession
	}

	switch {
	case !hasToken && !hasUser:
		return model.Session{}, errNoSession
	case !hasToken || !hasUser:
		s.logger.Warn("SESSION_RECORD_INCOMPLETE", "has_token", hasToken, "has_user", hasUser)
		return model.Session{}, errCorruptSession
	}

	var sess model.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		s.logger.Warn("SESSION_RECORD_CORRUPT", "err", err)
		return model.Session{}, errCorruptSession
	}
	sess.AuthToken = token

	// [INVARIANT] token and user id travel together
	if !sess.Consistent() {
		s.logger.Warn("SESSION_RECORD_INCONSISTENT")
		return model.Session{}, errCorruptSession
	}
	return sess, nil
}

// Save writes the token and the user record. When the record cannot be
// written the token is dropped again, so a new token never pairs with the
// previous user's record.
func (s *SessionStore) Save(ctx context.Context, sess model.Session) {
	raw, err := json.Marshal(sess)
	if err != nil {
		s.logger.Warn("SESSION_SAVE_FAILED", "err", err)
		return
	}
	if err := s.kv.Set(ctx, keyToken, sess.AuthToken); err != nil {
		s.logger.Warn("SESSION_SAVE_FAILED", "key", keyToken, "err", err)
		return
	}
	if err := s.kv.Set(ctx, keyUser, string(raw)); err != nil {
		s.logger.Warn("SESSION_SAVE_FAILED", "key", keyUser, "err", err)
		if err := s.kv.Delete(ctx, keyToken); err != nil {
			s.logger.Error("SESSION_SAVE_ROLLBACK_FAILED", "err", err)
		}
	}
}

// Patch merges p into the existing user record. Without a record it does nothing.
func (s *SessionStore) Patch(ctx context.Context, p SessionPatch) {
	raw, ok, err := s.kv.Get(ctx, keyUser)
	if err != nil {
		s.logger.Warn("SESSION_PATCH_FAILED", "err", err)
		return
	}
	if !ok {
		s.logger.Debug("SESSION_PATCH_SKIPPED", "reason", "no record")
		return
	}

	var sess model.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		s.logger.Warn("SESSION_PATCH_FAILED", "err", err)
		return
	}
	p.apply(&sess)

	out, err := json.Marshal(sess)
	if err != nil {
		s.logger.Warn("SESSION_PATCH_FAILED", "err", err)
		return
	}
	if err := s.kv.Set(ctx, keyUser, string(out)); err != nil {
		s.logger.Warn("SESSION_PATCH_FAILED", "err", err)
	}
}

// Clear removes the session entries. With all set it wipes every key of the
// namespace so no residue of the previous identity survives a logout.
func (s *SessionStore) Clear(ctx context.Context, all bool) {
	var err error
	if all {
		err = s.kv.Clear(ctx)
	} else {
		err = s.kv.Delete(ctx, keyToken, keyUser)
	}
	if err != nil {
		s.logger.Warn("SESSION_CLEAR_FAILED", "all", all, "err", err)
	}
}
