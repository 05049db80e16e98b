// Package ws dials the marketplace push endpoint over gorilla/websocket.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/artmarket/session-sync/internal/domain/channel"
)

const writeWait = 10 * time.Second

var ErrRejected = errors.New("ws: handshake rejected")

// TokenSource yields the bearer token sent with the handshake.
type TokenSource interface {
	Token() string
}

type Options struct {
	URL              string
	HandshakeTimeout time.Duration
	MaxRetries       uint
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
}

// Dialer opens sockets with exponential backoff. A 401/403 handshake is not retried.
type Dialer struct {
	opts   Options
	ws     *websocket.Dialer
	tokens TokenSource
	logger *slog.Logger
}

var _ channel.Dialer = (*Dialer)(nil)

func NewDialer(opts Options, tokens TokenSource, logger *slog.Logger) *Dialer {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 1
	}
	return &Dialer{
		opts: opts,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		tokens: tokens,
		logger: logger,
	}
}

func (d *Dialer) Dial(ctx context.Context) (channel.Conn, error) {
	eb := backoff.NewExponentialBackOff()
	if d.opts.InitialBackoff > 0 {
		eb.InitialInterval = d.opts.InitialBackoff
	}
	if d.opts.MaxBackoff > 0 {
		eb.MaxInterval = d.opts.MaxBackoff
	}

	attempt := 0
	sock, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
		attempt++
		return d.dialOnce(ctx)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(d.opts.MaxRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			d.logger.Warn("REALTIME_DIAL_RETRY",
				"attempt", attempt,
				"next_in", next,
				"err", err,
			)
		}),
	)
	if err != nil {
		// an explicit nil keeps the interface value nil
		return nil, err
	}
	return &conn{Conn: sock}, nil
}

func (d *Dialer) dialOnce(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if tok := d.tokens.Token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}

	sock, resp, err := d.ws.DialContext(ctx, d.opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		return sock, nil
	}
	if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode))
	}
	if ctx.Err() != nil {
		return nil, backoff.Permanent(ctx.Err())
	}
	return nil, err
}

// conn bounds every write with a deadline.
type conn struct {
	*websocket.Conn
}

func (c *conn) WriteJSON(v any) error {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.Conn.WriteJSON(v)
}
