package event

import "github.com/artmarket/session-sync/internal/domain/model"

var _ Eventer = (*SessionChangedEvent)(nil)

// SessionChangedEvent is published on every mutation of the session container.
// Tokens never travel on the bus; only identity fields do.
type SessionChangedEvent struct {
	header
	Previous model.Session `json:"previous"`
	Current  model.Session `json:"current"`
	// Epoch is the identity generation after the change.
	Epoch uint64 `json:"epoch"`
}

func NewSessionChanged(prev, curr model.Session, epoch uint64) *SessionChangedEvent {
	return &SessionChangedEvent{
		header:   newHeader(),
		Previous: prev.Clone(),
		Current:  curr.Clone(),
		Epoch:    epoch,
	}
}

func (e *SessionChangedEvent) GetKind() EventKind { return SessionChanged }
func (e *SessionChangedEvent) GetTopic() string   { return TopicSession }

// UserChanged reports whether the change moved the session to a different user
// (including login from and logout to the anonymous state).
func (e *SessionChangedEvent) UserChanged() bool {
	p, c := e.Previous.UserID, e.Current.UserID
	if p == nil || c == nil {
		return (p == nil) != (c == nil)
	}
	return *p != *c
}
