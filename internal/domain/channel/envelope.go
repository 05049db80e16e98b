package channel

import (
	"encoding/json"
	"fmt"
)

// Wire event names.
const (
	EventAddUser         = "add_user"
	EventNewNotification = "new_notification"
)

// Envelope is a single frame on the push connection.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func addUserFrame(userID int64) (Envelope, error) {
	data, err := json.Marshal(userID)
	if err != nil {
		return Envelope{}, fmt.Errorf("channel: encode add_user: %w", err)
	}
	return Envelope{Event: EventAddUser, Data: data}, nil
}
