package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/artmarket/session-sync/internal/domain/event"
)

// EventDispatcher is the observer bus: state owners publish, views and the
// sync layer subscribe. Delivery order across messages is not guaranteed, so
// subscribers treat events as change signals and re-read the owner's state.
type EventDispatcher interface {
	Publish(ctx context.Context, ev event.Eventer) error
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

type eventDispatcher struct {
	publisher  message.Publisher
	subscriber message.Subscriber
}

// NewEventDispatcher returns the interface instead of the pointer to the struct.
func NewEventDispatcher(pub message.Publisher, sub message.Subscriber) EventDispatcher {
	return &eventDispatcher{
		publisher:  pub,
		subscriber: sub,
	}
}

func (d *eventDispatcher) Publish(ctx context.Context, ev event.Eventer) error {
	if ev == nil {
		return fmt.Errorf("event dispatcher: cannot publish nil event")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("event dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(ev.GetID(), payload)
	msg.Metadata.Set("kind", ev.GetKind().String())
	msg.SetContext(ctx)

	if err := d.publisher.Publish(ev.GetTopic(), msg); err != nil {
		return fmt.Errorf("event dispatcher: failed to publish to topic %s: %w", ev.GetTopic(), err)
	}
	return nil
}

func (d *eventDispatcher) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch, err := d.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("event dispatcher: subscribe %s: %w", topic, err)
	}
	return ch, nil
}

// Decode unmarshals the payload into T and acks the message. Undecodable
// messages are acked as well; redelivery would not fix them.
func Decode[T any](msg *message.Message) (*T, error) {
	defer msg.Ack()

	out := new(T)
	if err := json.Unmarshal(msg.Payload, out); err != nil {
		return nil, fmt.Errorf("event dispatcher: decode %s: %w", msg.UUID, err)
	}
	return out, nil
}
