// Package api is the REST client for the marketplace API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/artmarket/session-sync/internal/domain/model"
)

const maxErrorBody = 4 << 10

// TokenSource yields the bearer token of the resident session ("" when anonymous).
type TokenSource interface {
	Token() string
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration

	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
	// BreakerFailures is the number of consecutive failures that opens the breaker.
	BreakerFailures uint32
}

// Client performs authenticated REST calls guarded by a circuit breaker.
type Client struct {
	base    *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	tracer  trace.Tracer
	tokens  TokenSource
	logger  *slog.Logger

	mu             sync.RWMutex
	onUnauthorized []func()
}

func NewClient(opts Options, tokens TokenSource, tp trace.TracerProvider, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api: base url %q must be absolute", opts.BaseURL)
	}

	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: opts.Timeout},
		tracer: tp.Tracer("github.com/artmarket/session-sync/infra/client/api"),
		tokens: tokens,
		logger: logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "marketplace-api",
		MaxRequests: opts.BreakerMaxRequests,
		Interval:    opts.BreakerInterval,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// client-side mistakes and cancellations say nothing about API health
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var apiErr *Error
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("API_BREAKER_STATE_CHANGED",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return c, nil
}

// OnUnauthorized registers fn to run whenever an authenticated call gets a 401.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = append(c.onUnauthorized, fn)
}

// Login exchanges credentials for a token and identity.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out loginWire
	err := c.do(ctx, "login", http.MethodPost, "/api/users/login", credentials{Email: email, Password: password}, &out, false)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: out.Token, User: out.User.toModel()}, nil
}

// Register creates an account and returns its identifiers and token.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	var out RegisterResult
	if err := c.do(ctx, "register", http.MethodPost, "/api/users/register", req, &out, false); err != nil {
		return RegisterResult{}, err
	}
	return out, nil
}

// Me fetches the current user with the nested artist/employer profile.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var out userWire
	if err := c.do(ctx, "me", http.MethodGet, "/api/users/me", nil, &out, true); err != nil {
		return model.User{}, err
	}
	return out.toModel(), nil
}

// Notifications lists the user's notifications in server order. Records whose
// payload cannot be resolved to exactly one variant are dropped.
func (c *Client) Notifications(ctx context.Context, userID int64) ([]model.Notification, error) {
	var raw []json.RawMessage
	path := "/api/notifications/" + strconv.FormatInt(userID, 10)
	if err := c.do(ctx, "notifications.list", http.MethodGet, path, nil, &raw, true); err != nil {
		return nil, err
	}

	out := make([]model.Notification, 0, len(raw))
	for _, r := range raw {
		var n model.Notification
		if err := json.Unmarshal(r, &n); err != nil {
			c.logger.Warn("NOTIFICATION_DECODE_FAILED", "err", err)
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkNotificationRead marks one notification read; the request has no body.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	path := "/api/notifications/" + strconv.FormatInt(id, 10)
	return c.do(ctx, "notifications.read", http.MethodPut, path, nil, nil, true)
}

// DeleteNotification deletes one notification.
func (c *Client) DeleteNotification(ctx context.Context, id int64) error {
	path := "/api/notifications/" + strconv.FormatInt(id, 10)
	return c.do(ctx, "notifications.delete", http.MethodDelete, path, nil, nil, true)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any, auth bool) error {
	ctx, span := c.tracer.Start(ctx, "api."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	))
	defer span.End()

	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, op, method, path, body, out, auth)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("API_CALL_FAILED",
			"op", op,
			"err", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if auth && errors.Is(err, ErrUnauthorized) {
			c.notifyUnauthorized()
		}
		return err
	}

	c.logger.Debug("API_CALL_COMPLETED", "op", op, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body, out any, auth bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api %s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), reader)
	if err != nil {
		return fmt.Errorf("api %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &Error{Op: op, Status: resp.StatusCode}
		var eb errorBody
		if data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); len(data) > 0 {
			if json.Unmarshal(data, &eb) == nil {
				apiErr.Message = eb.text()
			}
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api %s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) notifyUnauthorized() {
	c.mu.RLock()
	hooks := append([]func(){}, c.onUnauthorized...)
	c.mu.RUnlock()

	for _, fn := range hooks {
		fn()
	}
}
