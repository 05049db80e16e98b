package event

import (
	"time"

	"github.com/google/uuid"
)

type EventKind int16

const (
	SessionChanged       EventKind = iota + 1 // [IDENTITY]
	NotificationsChanged                      // [COLLECTION]
)

func (k EventKind) String() string {
	switch k {
	case SessionChanged:
		return "SessionChanged"
	case NotificationsChanged:
		return "NotificationsChanged"
	default:
		return "Unknown"
	}
}

// Topics on the in-process bus.
const (
	TopicSession       = "session.changed"
	TopicNotifications = "notifications.changed"
)

// Eventer defines the contract for every state-change signal published on the bus.
type Eventer interface {
	GetID() string
	GetKind() EventKind
	GetTopic() string
	GetOccurredAt() int64
}

// header is embedded by concrete events.
type header struct {
	ID         string `json:"id"`
	OccurredAt int64  `json:"occurred_at"`
}

func newHeader() header {
	return header{
		ID:         uuid.NewString(),
		OccurredAt: time.Now().UnixMilli(),
	}
}

func (h header) GetID() string        { return h.ID }
func (h header) GetOccurredAt() int64 { return h.OccurredAt }
