package channel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artmarket/session-sync/internal/domain/model"
)

// fakeConn is an in-memory socket. Reads block until a frame is pushed or
// the conn is closed.
type fakeConn struct {
	mu      sync.Mutex
	written []Envelope
	inbox   chan Envelope
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbox:  make(chan Envelope, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) WriteJSON(v any) error {
	select {
	case <-f.closed:
		return errors.New("closed")
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, v.(Envelope))
	return nil
}

func (f *fakeConn) ReadJSON(v any) error {
	select {
	case env := <-f.inbox:
		*(v.(*Envelope)) = env
		return nil
	case <-f.closed:
		return io.EOF
	}
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) frames() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Envelope(nil), f.written...)
}

// fakeDialer hands out fresh fakeConns and tracks how many are open at once.
type fakeDialer struct {
	mu      sync.Mutex
	conns   []*fakeConn
	maxOpen int
	fail    error
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	open := 0
	for _, c := range d.conns {
		if !c.isClosed() {
			open++
		}
	}
	if open+1 > d.maxOpen {
		d.maxOpen = open + 1
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) all() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

func userFrom(t *testing.T, env Envelope) int64 {
	t.Helper()
	require.Equal(t, EventAddUser, env.Event)
	var id int64
	require.NoError(t, json.Unmarshal(env.Data, &id))
	return id
}

func TestSwitch_AnnouncesUser(t *testing.T) {
	d := &fakeDialer{}
	ch := New(d)
	defer ch.Close()

	require.NoError(t, ch.Switch(context.Background(), model.ID(7)))

	conns := d.all()
	require.Len(t, conns, 1)
	frames := conns[0].frames()
	require.Len(t, frames, 1)
	assert.Equal(t, int64(7), userFrom(t, frames[0]))
	assert.JSONEq(t, `{"event":"add_user","data":7}`, mustJSON(t, frames[0]))
	assert.Equal(t, Connected, ch.State())
}

func TestSwitch_NilClosesConnection(t *testing.T) {
	d := &fakeDialer{}
	ch := New(d)
	defer ch.Close()

	require.NoError(t, ch.Switch(context.Background(), model.ID(7)))
	require.NoError(t, ch.Switch(context.Background(), nil))

	assert.True(t, d.all()[0].isClosed())
	assert.Equal(t, Disconnected, ch.State())
	_, ok := ch.UserID()
	assert.False(t, ok)
}

func TestSwitch_UserChangeClosesBeforeOpening(t *testing.T) {
	d := &fakeDialer{}
	ch := New(d)
	defer ch.Close()

	require.NoError(t, ch.Switch(context.Background(), model.ID(7)))
	require.NoError(t, ch.Switch(context.Background(), model.ID(9)))

	conns := d.all()
	require.Len(t, conns, 2)
	assert.True(t, conns[0].isClosed())
	assert.False(t, conns[1].isClosed())
	assert.Equal(t, int64(9), userFrom(t, conns[1].frames()[0]))
	assert.Equal(t, 1, d.maxOpen, "two sockets were open at the same time")
}

func TestSwitch_SameUserIsNoop(t *testing.T) {
	d := &fakeDialer{}
	ch := New(d)
	defer ch.Close()

	require.NoError(t, ch.Switch(context.Background(), model.ID(7)))
	require.NoError(t, ch.Switch(context.Background(), model.ID(7)))

	assert.Len(t, d.all(), 1)
}

func TestSwitch_DialFailure(t *testing.T) {
	d := &fakeDialer{fail: errors.New("refused")}
	ch := New(d)
	defer ch.Close()

	err := ch.Switch(context.Background(), model.ID(7))
	require.Error(t, err)
	assert.Equal(t, Disconnected, ch.State())
}

func TestPushIsDispatched(t *testing.T) {
	d := &fakeDialer{}
	got := make(chan model.Notification, 1)
	ch := New(d, WithHandler(func(_ context.Context, n model.Notification) {
		got <- n
	}))
	defer ch.Close()

	require.NoError(t, ch.Switch(context.Background(), model.ID(7)))

	conn := d.all()[0]
	conn.inbox <- Envelope{Event: "typing", Data: json.RawMessage(`{}`)}
	conn.inbox <- Envelope{
		Event: EventNewNotification,
		Data:  json.RawMessage(`{"notification_id":5,"read_status":false,"created_at":"2024-05-01T10:00:00Z","message":"hello"}`),
	}

	select {
	case n := <-got:
		assert.Equal(t, int64(5), n.ID)
		assert.Equal(t, "hello", n.Text(nil))
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not dispatched")
	}
}

func TestDroppedSocketIsRedialedForSameUser(t *testing.T) {
	d := &fakeDialer{}
	ch := New(d, WithMaxRedials(2))
	defer ch.Close()

	require.NoError(t, ch.Switch(context.Background(), model.ID(7)))
	_ = d.all()[0].Close()

	assert.Eventually(t, func() bool {
		conns := d.all()
		return len(conns) == 2 && len(conns[1].frames()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(7), userFrom(t, d.all()[1].frames()[0]))
	assert.Eventually(t, func() bool { return ch.State() == Connected }, time.Second, 10*time.Millisecond)
}

func TestClose_IsIdempotentAndFinal(t *testing.T) {
	d := &fakeDialer{}
	ch := New(d)

	require.NoError(t, ch.Switch(context.Background(), model.ID(7)))
	ch.Close()
	ch.Close()

	assert.True(t, d.all()[0].isClosed())
	assert.ErrorIs(t, ch.Switch(context.Background(), model.ID(9)), ErrClosed)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
