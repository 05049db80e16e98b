package wsmarshaller

import (
	"encoding/json"

	"github.com/artmarket/session-sync/internal/domain/event"
	"github.com/artmarket/session-sync/internal/handler/marshaller"
)

// WSEvent is a generic wrapper for WebSocket messages to provide consistent structure
type WSEvent struct {
	Event   string `json:"event"` // e.g., "notifications_changed", "snapshot"
	ID      string `json:"id"`
	SentAt  int64  `json:"sent_at"`
	Payload any    `json:"payload"`
}

// ChangePayload pairs a change with the collection it produced.
type ChangePayload struct {
	Reason         event.Reason                  `json:"reason"`
	NotificationID int64                         `json:"notification_id,omitempty"`
	Unread         int                           `json:"unread"`
	Notifications  []marshaller.NotificationView `json:"notifications"`
}

// MarshallChange prepares a store change for WebSocket transmission.
func MarshallChange(ev *event.NotificationsChangedEvent, views []marshaller.NotificationView) ([]byte, error) {
	return json.Marshal(&WSEvent{
		Event:  "notifications_changed",
		ID:     ev.GetID(),
		SentAt: ev.GetOccurredAt(),
		Payload: ChangePayload{
			Reason:         ev.Reason,
			NotificationID: ev.NotificationID,
			Unread:         ev.Unread,
			Notifications:  views,
		},
	})
}

// MarshallSnapshot is the first frame of every stream.
func MarshallSnapshot(id string, sentAt int64, unread int, views []marshaller.NotificationView) ([]byte, error) {
	return json.Marshal(&WSEvent{
		Event:  "snapshot",
		ID:     id,
		SentAt: sentAt,
		Payload: ChangePayload{
			Unread:        unread,
			Notifications: views,
		},
	})
}
