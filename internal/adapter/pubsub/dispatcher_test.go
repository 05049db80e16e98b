package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artmarket/session-sync/internal/domain/event"
	"github.com/artmarket/session-sync/internal/domain/model"
)

func TestDispatcher_PublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gc := NewGoChannel(watermill.NopLogger{})
	t.Cleanup(func() { _ = gc.Close() })
	d := NewEventDispatcher(gc, gc)

	msgs, err := d.Subscribe(ctx, event.TopicSession)
	require.NoError(t, err)

	ev := event.NewSessionChanged(model.Session{}, model.Session{UserID: model.ID(7), AuthToken: "tok"}, 1)
	require.NoError(t, d.Publish(ctx, ev))

	select {
	case msg := <-msgs:
		got, err := Decode[event.SessionChangedEvent](msg)
		require.NoError(t, err)
		assert.Equal(t, ev.GetID(), got.GetID())
		assert.Equal(t, uint64(1), got.Epoch)
		require.NotNil(t, got.Current.UserID)
		assert.Equal(t, int64(7), *got.Current.UserID)
		assert.Empty(t, got.Current.AuthToken, "tokens never travel on the bus")
		assert.True(t, got.UserChanged())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestDispatcher_RejectsNil(t *testing.T) {
	gc := NewGoChannel(watermill.NopLogger{})
	t.Cleanup(func() { _ = gc.Close() })

	err := NewEventDispatcher(gc, gc).Publish(context.Background(), nil)
	assert.Error(t, err)
}
