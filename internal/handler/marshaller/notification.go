// Package marshaller maps domain state to the JSON views served locally.
package marshaller

import (
	"time"

	"github.com/artmarket/session-sync/internal/domain/model"
)

// Payload kinds.
const (
	KindLegacy     = "legacy"
	KindStructured = "structured"
)

// NotificationView is a rendered notification. Rendering happens here once so
// consumers never inspect the raw payload variant.
type NotificationView struct {
	ID        int64             `json:"id"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"created_at"`
	Kind      string            `json:"kind"`
	Text      string            `json:"text"`
	Key       string            `json:"key,omitempty"`
	Links     map[string]string `json:"links,omitempty"`
}

func MarshalNotification(n model.Notification, c model.Catalog) NotificationView {
	v := NotificationView{
		ID:        n.ID,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
		Text:      n.Text(c),
	}
	switch p := n.Payload.(type) {
	case model.StructuredPayload:
		v.Kind = KindStructured
		v.Key = p.Key
		if links := p.Links(); len(links) > 0 {
			v.Links = links
		}
	default:
		v.Kind = KindLegacy
	}
	return v
}

func MarshalNotifications(list []model.Notification, c model.Catalog) []NotificationView {
	out := make([]NotificationView, 0, len(list))
	for _, n := range list {
		out = append(out, MarshalNotification(n, c))
	}
	return out
}

// SessionView is the public part of a session. The token is never exposed.
type SessionView struct {
	Authenticated bool       `json:"authenticated"`
	UserID        *int64     `json:"user_id,omitempty"`
	Role          model.Role `json:"role,omitempty"`
	ArtistID      *int64     `json:"artist_id,omitempty"`
	EmployerID    *int64     `json:"employer_id,omitempty"`
	Fullname      string     `json:"fullname,omitempty"`
}

func MarshalSession(s model.Session) SessionView {
	return SessionView{
		Authenticated: s.Authenticated(),
		UserID:        s.UserID,
		Role:          s.Role,
		ArtistID:      s.ArtistID,
		EmployerID:    s.EmployerID,
		Fullname:      s.Fullname,
	}
}
