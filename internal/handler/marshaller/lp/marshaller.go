package lpmarshaller

import (
	"encoding/json"

	"github.com/artmarket/session-sync/internal/domain/event"
)

// LPEvent represents a single event structured for long-polling consumers.
type LPEvent struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Payload any    `json:"payload"`
}

type changePayload struct {
	Reason         event.Reason `json:"reason"`
	NotificationID int64        `json:"notification_id,omitempty"`
	Total          int          `json:"total"`
	Unread         int          `json:"unread"`
}

// Response defines the top-level JSON array to support event batching.
type Response struct {
	Events []LPEvent `json:"events"`
}

// MarshallEvents converts a batch of store changes into a single JSON document.
func MarshallEvents(events []*event.NotificationsChangedEvent) ([]byte, error) {
	res := Response{
		Events: make([]LPEvent, 0, len(events)),
	}

	for _, ev := range events {
		res.Events = append(res.Events, LPEvent{
			Type: "notifications_" + string(ev.Reason),
			ID:   ev.GetID(),
			Payload: changePayload{
				Reason:         ev.Reason,
				NotificationID: ev.NotificationID,
				Total:          ev.Total,
				Unread:         ev.Unread,
			},
		})
	}

	return json.Marshal(res)
}
