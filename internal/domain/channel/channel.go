/*
Package channel maintains the single push connection of the client.

Key properties:
  - At most one live connection exists, and only while a user is logged in.
  - A user change always closes the previous connection completely (read loop
    exited, socket closed) before a fresh one is dialed. Connections are never
    reused across users.
  - Every socket announces its user with an add_user frame right after opening.
  - Inbound new_notification frames are handed to a single Handler.
*/
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/artmarket/session-sync/internal/domain/model"
)

var ErrClosed = errors.New("channel: closed")

// State of the connection lifecycle.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Handler receives pushed notifications. It runs on the read loop and must
// not call back into Switch or Close.
type Handler func(ctx context.Context, n model.Notification)

type Channel struct {
	dialer     Dialer
	logger     *slog.Logger
	maxRedials int
	handler    Handler

	// hnd overrides handler once SetHandler has been called.
	hnd atomic.Pointer[Handler]

	// [TRANSITIONS] serialises Switch and Close so close-before-open holds
	mu      sync.Mutex
	current *connect
	closed  bool

	// [STATE] written by transitions and by the read loop of the active connect
	stateMu sync.Mutex
	state   State
	active  *connect

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

func New(dialer Dialer, opts ...Option) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		dialer:     dialer,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxRedials: 3,
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetHandler replaces the notification handler.
func (c *Channel) SetHandler(h Handler) {
	c.hnd.Store(&h)
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// UserID returns the user the channel is currently bound to.
func (c *Channel) UserID() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return 0, false
	}
	return c.current.userID, true
}

// Switch binds the channel to userID. A nil userID disconnects. Switching to
// the user already connected is a no-op; any other change closes the existing
// connection before dialing a new one.
func (c *Channel) Switch(ctx context.Context, userID *int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if cur := c.current; cur != nil && userID != nil && cur.userID == *userID {
		select {
		case <-cur.done:
			// gave up redialing; start over below
		default:
			return nil
		}
	}

	c.teardown()

	if userID == nil {
		return nil
	}
	return c.open(ctx, *userID)
}

// Close disconnects and rejects further transitions. Safe to call repeatedly.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.teardown()
	c.baseCancel()
}

// teardown closes the current connect and waits for its loop to exit.
// Caller holds c.mu.
func (c *Channel) teardown() {
	cur := c.current
	if cur == nil {
		return
	}

	c.setActive(nil, Disconnected)
	cur.Close()
	<-cur.done
	c.current = nil

	c.logger.Info("REALTIME_CLOSED",
		"user_id", cur.userID,
		"conn_id", cur.id,
	)
}

// open dials and announces. Caller holds c.mu.
func (c *Channel) open(ctx context.Context, userID int64) error {
	c.setActive(nil, Connecting)

	sock, err := c.dialer.Dial(ctx)
	if err != nil {
		c.setActive(nil, Disconnected)
		c.logger.Warn("REALTIME_DIAL_FAILED", "user_id", userID, "err", err)
		return fmt.Errorf("channel: dial: %w", err)
	}

	cn := newConnect(c.baseCtx, userID, sock)
	if err := cn.announce(); err != nil {
		cn.Close()
		c.setActive(nil, Disconnected)
		return fmt.Errorf("channel: announce: %w", err)
	}

	c.current = cn
	c.setActive(cn, Connected)
	go cn.run(c)

	c.logger.Info("REALTIME_CONNECTED", "user_id", userID, "conn_id", cn.id)
	return nil
}

func (c *Channel) setActive(cn *connect, s State) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.active = cn
	c.state = s
}

// setStateFor lets a read loop report transitions only while it is still the
// active connect.
func (c *Channel) setStateFor(cn *connect, s State) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.active == cn && cn.ctx.Err() == nil {
		c.state = s
	}
}

func (c *Channel) dispatch(cn *connect, env Envelope) {
	switch env.Event {
	case EventNewNotification:
		var n model.Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			c.logger.Warn("REALTIME_DECODE_FAILED", "event", env.Event, "err", err)
			return
		}
		if h := c.currentHandler(); h != nil {
			h(cn.ctx, n)
		}
	default:
		c.logger.Debug("REALTIME_EVENT_IGNORED", "event", env.Event)
	}
}

func (c *Channel) currentHandler() Handler {
	if p := c.hnd.Load(); p != nil {
		return *p
	}
	return c.handler
}
