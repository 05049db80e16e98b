package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrPayloadMissing   = errors.New("notification: neither message nor message_key set")
	ErrPayloadAmbiguous = errors.New("notification: both message and message_key set")
)

// Payload is the body of a notification. It has exactly two variants,
// LegacyPayload and StructuredPayload; the set is closed.
type Payload interface {
	// Text renders the payload into display text.
	Text(c Catalog) string
	isPayload()
}

// Interface guards
var (
	_ Payload = LegacyPayload{}
	_ Payload = StructuredPayload{}
)

// LegacyPayload carries a server pre-rendered message.
type LegacyPayload struct {
	Message string
}

func (LegacyPayload) isPayload() {}

func (p LegacyPayload) Text(Catalog) string { return p.Message }

// StructuredPayload carries a format key plus named substitutions.
type StructuredPayload struct {
	Key    string
	Params map[string]Param
}

func (StructuredPayload) isPayload() {}

// Text resolves Key through the catalog and substitutes {name} placeholders.
// Without a catalog entry the key itself is used as the template.
func (p StructuredPayload) Text(c Catalog) string {
	tmpl := p.Key
	if c != nil {
		if t, ok := c.Lookup(p.Key); ok {
			tmpl = t
		}
	}
	if len(p.Params) == 0 {
		return tmpl
	}

	pairs := make([]string, 0, len(p.Params)*2)
	for _, name := range p.paramNames() {
		pairs = append(pairs, "{"+name+"}", p.Params[name].Text)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Links returns the navigable targets among the params, keyed by param name.
func (p StructuredPayload) Links() map[string]string {
	links := make(map[string]string)
	for name, v := range p.Params {
		if v.Link != "" {
			links[name] = v.Link
		}
	}
	return links
}

func (p StructuredPayload) paramNames() []string {
	names := make([]string, 0, len(p.Params))
	for name := range p.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Param is one substitution value. Link is set when the value points at a view.
type Param struct {
	Text string
	Link string
}

type paramObject struct {
	Text string `json:"text"`
	Link string `json:"link,omitempty"`
}

func (p *Param) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*p = Param{}
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Param{Text: s}
	case data[0] == '{':
		var obj paramObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*p = Param{Text: obj.Text, Link: obj.Link}
	default:
		// numbers and booleans are rendered verbatim
		*p = Param{Text: string(data)}
	}
	return nil
}

func (p Param) MarshalJSON() ([]byte, error) {
	if p.Link == "" {
		return json.Marshal(p.Text)
	}
	return json.Marshal(paramObject{Text: p.Text, Link: p.Link})
}

// Catalog resolves message keys to format strings.
type Catalog interface {
	Lookup(key string) (string, bool)
}

// MapCatalog is a Catalog backed by a plain map.
type MapCatalog map[string]string

func (m MapCatalog) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Notification is a single server-originated event for the current user.
type Notification struct {
	ID        int64
	Read      bool
	CreatedAt time.Time
	Payload   Payload
}

// Text renders the payload; a notification without payload renders empty.
func (n Notification) Text(c Catalog) string {
	if n.Payload == nil {
		return ""
	}
	return n.Payload.Text(c)
}

// notificationWire is the API representation.
type notificationWire struct {
	ID            int64            `json:"notification_id"`
	ReadStatus    bool             `json:"read_status"`
	CreatedAt     time.Time        `json:"created_at"`
	Message       *string          `json:"message,omitempty"`
	MessageKey    *string          `json:"message_key,omitempty"`
	MessageParams map[string]Param `json:"message_params,omitempty"`
}

// UnmarshalJSON resolves the payload variant once, at decode time.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var w notificationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var payload Payload
	switch {
	case w.Message != nil && w.MessageKey != nil:
		return fmt.Errorf("notification %d: %w", w.ID, ErrPayloadAmbiguous)
	case w.MessageKey != nil:
		payload = StructuredPayload{Key: *w.MessageKey, Params: w.MessageParams}
	case w.Message != nil:
		payload = LegacyPayload{Message: *w.Message}
	default:
		return fmt.Errorf("notification %d: %w", w.ID, ErrPayloadMissing)
	}

	*n = Notification{
		ID:        w.ID,
		Read:      w.ReadStatus,
		CreatedAt: w.CreatedAt,
		Payload:   payload,
	}
	return nil
}

func (n Notification) MarshalJSON() ([]byte, error) {
	w := notificationWire{
		ID:         n.ID,
		ReadStatus: n.Read,
		CreatedAt:  n.CreatedAt,
	}
	switch p := n.Payload.(type) {
	case LegacyPayload:
		w.Message = &p.Message
	case StructuredPayload:
		w.MessageKey = &p.Key
		w.MessageParams = p.Params
	default:
		return nil, fmt.Errorf("notification %d: %w", n.ID, ErrPayloadMissing)
	}
	return json.Marshal(w)
}
