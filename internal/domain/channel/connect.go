package channel

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conn is a live socket. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Dialer opens sockets. Retry and backoff live behind this interface.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// connect is one logical connection: a single user for its whole life,
// possibly backed by several sockets over redials.
type connect struct {
	id        uuid.UUID
	userID    int64
	createdAt time.Time

	ctx      context.Context
	cancelFn context.CancelFunc

	// [SOCKET] guarded by mu; swapped on redial
	mu   sync.Mutex
	sock Conn

	// done is closed when the read loop has fully exited.
	done      chan struct{}
	closeOnce sync.Once
}

func newConnect(parent context.Context, userID int64, sock Conn) *connect {
	ctx, cancel := context.WithCancel(parent)
	return &connect{
		id:        uuid.New(),
		userID:    userID,
		createdAt: time.Now(),
		ctx:       ctx,
		cancelFn:  cancel,
		sock:      sock,
		done:      make(chan struct{}),
	}
}

func (c *connect) socket() Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock
}

// announce registers this socket as belonging to userID on the server.
func (c *connect) announce() error {
	frame, err := addUserFrame(c.userID)
	if err != nil {
		return err
	}
	return c.socket().WriteJSON(frame)
}

// replace installs a redialed socket. It reports false, closing s, when the
// connect was closed in the meantime.
func (c *connect) replace(s Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		_ = s.Close()
		return false
	}
	c.sock = s
	return true
}

// Close cancels the loop and closes the socket, which unblocks any pending read.
func (c *connect) Close() {
	// [IDEMPOTENCY_SHIELD]
	c.closeOnce.Do(func() {
		c.cancelFn()

		c.mu.Lock()
		s := c.sock
		c.mu.Unlock()

		if s != nil {
			_ = s.Close()
		}
	})
}

// run pumps frames until closed, redialing dropped sockets for the same user.
func (c *connect) run(ch *Channel) {
	defer close(c.done)

	redials := 0
	for {
		frames, err := c.pump(ch)
		if c.ctx.Err() != nil {
			return
		}
		if frames > 0 {
			redials = 0
		}

		ch.logger.Warn("REALTIME_CONNECTION_LOST",
			"user_id", c.userID,
			"conn_id", c.id,
			"err", err,
		)

		if redials >= ch.maxRedials {
			ch.setStateFor(c, Disconnected)
			ch.logger.Error("REALTIME_REDIAL_EXHAUSTED", "user_id", c.userID, "conn_id", c.id)
			return
		}
		redials++

		ch.setStateFor(c, Connecting)
		sock, err := ch.dialer.Dial(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				ch.setStateFor(c, Disconnected)
				ch.logger.Error("REALTIME_REDIAL_FAILED", "user_id", c.userID, "err", err)
			}
			return
		}
		if !c.replace(sock) {
			return
		}
		if err := c.announce(); err != nil {
			// the next read on this socket fails and drives another redial
			continue
		}
		ch.setStateFor(c, Connected)
		ch.logger.Info("REALTIME_RECONNECTED", "user_id", c.userID, "conn_id", c.id)
	}
}

func (c *connect) pump(ch *Channel) (int, error) {
	sock := c.socket()
	frames := 0
	for {
		var env Envelope
		if err := sock.ReadJSON(&env); err != nil {
			return frames, err
		}
		frames++
		ch.dispatch(c, env)
	}
}
