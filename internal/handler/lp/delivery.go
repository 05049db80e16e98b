package lp

import (
	"net/http"
	"time"

	"github.com/artmarket/session-sync/internal/adapter/pubsub"
	"github.com/artmarket/session-sync/internal/domain/event"
	lpmarshaller "github.com/artmarket/session-sync/internal/handler/marshaller/lp"
)

const (
	defaultTimeout = 30 * time.Second
	maxBatch       = 16
)

type LPHandler struct {
	bus     pubsub.EventDispatcher
	timeout time.Duration
}

func NewLPHandler(bus pubsub.EventDispatcher, timeout time.Duration) *LPHandler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &LPHandler{
		bus:     bus,
		timeout: timeout,
	}
}

// Poll holds the request until the notification store changes or the
// timeout elapses.
func (h *LPHandler) Poll(w http.ResponseWriter, r *http.Request) {
	// 1. Temporary subscription that lives only for this request.
	msgs, err := h.bus.Subscribe(r.Context(), event.TopicNotifications)
	if err != nil {
		http.Error(w, "failed to subscribe", http.StatusInternalServerError)
		return
	}

	var events []*event.NotificationsChangedEvent

	// 2. Wait for data or timeout.
	select {
	case <-r.Context().Done():
		// Client disconnected.
		return

	case <-time.After(h.timeout):
		w.WriteHeader(http.StatusNoContent)
		return

	case msg, ok := <-msgs:
		if !ok {
			return
		}
		if ev, err := pubsub.Decode[event.NotificationsChangedEvent](msg); err == nil {
			events = append(events, ev)
		}

		// [OPTIONAL] Drain what is already buffered to batch the response.
	drainLoop:
		for len(events) < maxBatch {
			select {
			case next, ok := <-msgs:
				if !ok {
					break drainLoop
				}
				if ev, err := pubsub.Decode[event.NotificationsChangedEvent](next); err == nil {
					events = append(events, ev)
				}
			default:
				break drainLoop
			}
		}
	}

	// 3. Final transmission.
	data, err := lpmarshaller.MarshallEvents(events)
	if err != nil {
		http.Error(w, "marshal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
