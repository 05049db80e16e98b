package view

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artmarket/session-sync/infra/client/api"
	"github.com/artmarket/session-sync/internal/domain/model"
	"github.com/artmarket/session-sync/internal/service"
)

type fakeSessions struct {
	mu        sync.Mutex
	session   model.Session
	loggedOut bool
}

func (f *fakeSessions) Snapshot() model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.Clone()
}

func (f *fakeSessions) Logout(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = model.Session{}
	f.loggedOut = true
}

type fakeNotifications struct {
	list    []model.Notification
	err     error
	marked  []int64
	removed []int64
}

func (f *fakeNotifications) List() []model.Notification { return f.list }
func (f *fakeNotifications) Err() error                 { return f.err }

func (f *fakeNotifications) UnreadCount() int {
	n := 0
	for _, x := range f.list {
		if !x.Read {
			n++
		}
	}
	return n
}

func (f *fakeNotifications) MarkRead(_ context.Context, id int64) error {
	for _, x := range f.list {
		if x.ID == id {
			f.marked = append(f.marked, id)
			return nil
		}
	}
	return service.ErrNotFound
}

func (f *fakeNotifications) Remove(_ context.Context, id int64) error {
	for _, x := range f.list {
		if x.ID == id {
			f.removed = append(f.removed, id)
			return nil
		}
	}
	return service.ErrNotFound
}

type fakeAuth struct {
	sessions *fakeSessions
	err      error
}

func (f *fakeAuth) Login(_ context.Context, email, _ string) (model.Session, error) {
	if f.err != nil {
		return model.Session{}, f.err
	}
	s := model.Session{UserID: model.ID(1), Role: model.RoleArtist, Fullname: email, AuthToken: "tok"}
	f.sessions.mu.Lock()
	f.sessions.session = s
	f.sessions.mu.Unlock()
	return s, nil
}

func newTestServer(sess model.Session, n *fakeNotifications) (*Server, *fakeSessions) {
	fs := &fakeSessions{session: sess}
	catalog := model.MapCatalog{"job.applied": "{artist} applied to {job}"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(fs, n, &fakeAuth{sessions: fs}, catalog, logger, Options{}), fs
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func TestGuard_AnonymousRedirectsToLogin(t *testing.T) {
	s, _ := newTestServer(model.Session{}, &fakeNotifications{})

	for _, path := range []string{"/", "/notifications", "/admin"} {
		rec := serve(s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, LoginPath, rec.Header().Get("Location"), path)
	}
}

func TestGuard_NonAdminRedirectsToMain(t *testing.T) {
	s, _ := newTestServer(model.Session{UserID: model.ID(5), Role: model.RoleArtist, AuthToken: "t"}, &fakeNotifications{})

	rec := serve(s, http.MethodGet, "/admin", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, MainPath, rec.Header().Get("Location"))
}

func TestGuard_AdminAllowed(t *testing.T) {
	s, _ := newTestServer(model.Session{UserID: model.ID(5), Role: model.RoleAdmin, AuthToken: "t"}, &fakeNotifications{})

	rec := serve(s, http.MethodGet, "/admin", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotifications_RenderedView(t *testing.T) {
	n := &fakeNotifications{list: []model.Notification{
		{ID: 2, Payload: model.StructuredPayload{Key: "job.applied", Params: map[string]model.Param{
			"artist": {Text: "Ada", Link: "/artists/3"},
			"job":    {Text: "Mural"},
		}}},
		{ID: 1, Read: true, Payload: model.LegacyPayload{Message: "hi"}},
	}}
	s, _ := newTestServer(model.Session{UserID: model.ID(1), AuthToken: "t"}, n)

	rec := serve(s, http.MethodGet, "/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Notifications []struct {
			ID    int64             `json:"id"`
			Kind  string            `json:"kind"`
			Text  string            `json:"text"`
			Links map[string]string `json:"links"`
		} `json:"notifications"`
		Unread int `json:"unread"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Notifications, 2)
	assert.Equal(t, "Ada applied to Mural", body.Notifications[0].Text)
	assert.Equal(t, "structured", body.Notifications[0].Kind)
	assert.Equal(t, "/artists/3", body.Notifications[0].Links["artist"])
	assert.Equal(t, "hi", body.Notifications[1].Text)
	assert.Equal(t, 1, body.Unread)
}

func TestNotifications_HydrateErrorShownInline(t *testing.T) {
	n := &fakeNotifications{err: errors.New("api down")}
	s, _ := newTestServer(model.Session{UserID: model.ID(1), AuthToken: "t"}, n)

	rec := serve(s, http.MethodGet, "/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "api down")
}

func TestNotifications_Mutations(t *testing.T) {
	n := &fakeNotifications{list: []model.Notification{{ID: 3, Payload: model.LegacyPayload{Message: "x"}}}}
	s, _ := newTestServer(model.Session{UserID: model.ID(1), AuthToken: "t"}, n)

	assert.Equal(t, http.StatusNoContent, serve(s, http.MethodPost, "/notifications/3/read", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(s, http.MethodDelete, "/notifications/3", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodPost, "/notifications/4/read", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodDelete, "/notifications/abc", "").Code)

	assert.Equal(t, []int64{3}, n.marked)
	assert.Equal(t, []int64{3}, n.removed)
}

func TestLoginAndLogout(t *testing.T) {
	s, fs := newTestServer(model.Session{}, &fakeNotifications{})

	rec := serve(s, http.MethodPost, LoginPath, `{"email":"a@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "tok", "the token never leaves the client")

	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, MainPath, "").Code)

	assert.Equal(t, http.StatusNoContent, serve(s, http.MethodPost, "/logout", "").Code)
	assert.True(t, fs.loggedOut)
	assert.Equal(t, http.StatusSeeOther, serve(s, http.MethodGet, MainPath, "").Code)
}

func TestLogin_FailureStatus(t *testing.T) {
	fs := &fakeSessions{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(fs, &fakeNotifications{}, &fakeAuth{sessions: fs, err: &api.Error{Op: "login", Status: 401}}, nil, logger, Options{})

	rec := serve(s, http.MethodPost, LoginPath, `{"email":"a@example.com","password":"bad"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
