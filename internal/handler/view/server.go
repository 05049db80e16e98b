// Package view serves the local JSON views of the client. Navigation to every
// route goes through the route guard.
package view

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/artmarket/session-sync/infra/client/api"
	"github.com/artmarket/session-sync/internal/domain/guard"
	"github.com/artmarket/session-sync/internal/domain/model"
	"github.com/artmarket/session-sync/internal/handler/marshaller"
	"github.com/artmarket/session-sync/internal/service"
)

// Route targets of guard redirects.
const (
	LoginPath = "/login"
	MainPath  = "/"
)

type Sessions interface {
	Snapshot() model.Session
	Logout(ctx context.Context)
}

type Notifications interface {
	List() []model.Notification
	UnreadCount() int
	Err() error
	MarkRead(ctx context.Context, id int64) error
	Remove(ctx context.Context, id int64) error
}

type Authenticator interface {
	Login(ctx context.Context, email, password string) (model.Session, error)
}

type Server struct {
	sessions      Sessions
	notifications Notifications
	auth          Authenticator
	guard         *guard.Guard
	catalog       model.Catalog
	logger        *slog.Logger

	stream http.Handler
	poll   http.HandlerFunc
}

type Options struct {
	// Stream serves the live notification feed; Poll its long-polling variant.
	Stream http.Handler
	Poll   http.HandlerFunc
}

func NewServer(s Sessions, n Notifications, a Authenticator, catalog model.Catalog, logger *slog.Logger, opts Options) *Server {
	return &Server{
		sessions:      s,
		notifications: n,
		auth:          a,
		guard:         guard.New(s),
		catalog:       catalog,
		logger:        logger,
		stream:        opts.Stream,
		poll:          opts.Poll,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(s.Require(guard.Public))
		r.Get(LoginPath, s.loginView)
		r.Post(LoginPath, s.login)
		r.Post("/logout", s.logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.Require(guard.Authenticated))
		r.Get(MainPath, s.main)
		r.Get("/notifications", s.list)
		r.Post("/notifications/{id}/read", s.markRead)
		r.Delete("/notifications/{id}", s.remove)
		if s.poll != nil {
			r.Get("/notifications/poll", s.poll)
		}
		if s.stream != nil {
			r.Handle("/notifications/stream", s.stream)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(s.Require(guard.Admin))
		r.Get("/admin", s.admin)
	})

	return r
}

// Require evaluates the guard against the resident session on every request.
func (s *Server) Require(req guard.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch d := s.guard.Check(req); d {
			case guard.Allow:
				next.ServeHTTP(w, r)
			case guard.RedirectToLogin:
				http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			default:
				s.logger.Debug("VIEW_REDIRECTED", "path", r.URL.Path, "decision", d.String())
				http.Redirect(w, r, MainPath, http.StatusSeeOther)
			}
		})
	}
}

type mainView struct {
	Session marshaller.SessionView `json:"session"`
	Unread  int                    `json:"unread"`
	Error   string                 `json:"notifications_error,omitempty"`
}

func (s *Server) main(w http.ResponseWriter, r *http.Request) {
	v := mainView{
		Session: marshaller.MarshalSession(s.sessions.Snapshot()),
		Unread:  s.notifications.UnreadCount(),
	}
	if err := s.notifications.Err(); err != nil {
		v.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) loginView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, marshaller.MarshalSession(s.sessions.Snapshot()))
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := s.auth.Login(r.Context(), c.Email, c.Password)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, marshaller.MarshalSession(sess))
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type listView struct {
	Notifications []marshaller.NotificationView `json:"notifications"`
	Unread        int                           `json:"unread"`
	Error         string                        `json:"error,omitempty"`
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	v := listView{
		Notifications: marshaller.MarshalNotifications(s.notifications.List(), s.catalog),
		Unread:        s.notifications.UnreadCount(),
	}
	// a failed hydrate shows inline, the view itself still renders
	if err := s.notifications.Err(); err != nil {
		v.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, s.notifications.MarkRead)
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, s.notifications.Remove)
}

func (s *Server) mutate(w http.ResponseWriter, r *http.Request, op func(context.Context, int64) error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := op(r.Context(), id); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) admin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"view": "admin"})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, api.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, api.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrStaleResponse):
		return http.StatusConflict
	case errors.Is(err, api.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
