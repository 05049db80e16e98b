package event

var _ Eventer = (*NotificationsChangedEvent)(nil)

// Reason names the store operation that produced a NotificationsChangedEvent.
type Reason string

const (
	ReasonHydrated Reason = "hydrated"
	ReasonPushed   Reason = "pushed"
	ReasonRead     Reason = "read"
	ReasonRemoved  Reason = "removed"
	ReasonReset    Reason = "reset"
	ReasonFailed   Reason = "failed"
)

// NotificationsChangedEvent is published on every mutation of the notification store.
type NotificationsChangedEvent struct {
	header
	Reason Reason `json:"reason"`
	// NotificationID is set for single-record reasons (pushed, read, removed).
	NotificationID int64 `json:"notification_id,omitempty"`
	Total          int   `json:"total"`
	Unread         int   `json:"unread"`
}

func NewNotificationsChanged(reason Reason, id int64, total, unread int) *NotificationsChangedEvent {
	return &NotificationsChangedEvent{
		header:         newHeader(),
		Reason:         reason,
		NotificationID: id,
		Total:          total,
		Unread:         unread,
	}
}

func (e *NotificationsChangedEvent) GetKind() EventKind { return NotificationsChanged }
func (e *NotificationsChangedEvent) GetTopic() string   { return TopicNotifications }
