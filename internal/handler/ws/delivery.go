package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/artmarket/session-sync/internal/adapter/pubsub"
	"github.com/artmarket/session-sync/internal/domain/event"
	"github.com/artmarket/session-sync/internal/domain/model"
	"github.com/artmarket/session-sync/internal/handler/marshaller"
	wsmarshaller "github.com/artmarket/session-sync/internal/handler/marshaller/ws"
)

const writeWait = 10 * time.Second

// Lister is the read side of the notification store.
type Lister interface {
	List() []model.Notification
	UnreadCount() int
}

// WSHandler streams the notification collection to a local view: a snapshot
// first, then one frame per store change.
type WSHandler struct {
	logger   *slog.Logger
	bus      pubsub.EventDispatcher
	store    Lister
	catalog  model.Catalog
	upgrader websocket.Upgrader
}

func NewWSHandler(logger *slog.Logger, bus pubsub.EventDispatcher, store Lister, catalog model.Catalog) *WSHandler {
	return &WSHandler{
		logger:  logger,
		bus:     bus,
		store:   store,
		catalog: catalog,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. UPGRADE TO WEBSOCKET
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("VIEW_WS_UPGRADE_FAILED", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. SUBSCRIBE BEFORE THE SNAPSHOT SO NO CHANGE FALLS BETWEEN
	msgs, err := h.bus.Subscribe(ctx, event.TopicNotifications)
	if err != nil {
		h.logger.Error("VIEW_WS_SUBSCRIBE_FAILED", "err", err)
		return
	}

	connID := uuid.NewString()
	h.logger.Info("VIEW_WS_OPENED", "conn_id", connID)
	defer h.logger.Info("VIEW_WS_CLOSED", "conn_id", connID)

	// [READ_PUMP] hijacked connections outlive r.Context; a failed read means the peer left
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	snapshot, err := wsmarshaller.MarshallSnapshot(connID, time.Now().UnixMilli(), h.store.UnreadCount(), h.views())
	if err != nil || h.write(conn, snapshot) != nil {
		return
	}

	// 3. MAIN WS PUMP LOOP
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			ev, err := pubsub.Decode[event.NotificationsChangedEvent](msg)
			if err != nil {
				h.logger.Warn("VIEW_WS_DECODE_FAILED", "err", err)
				continue
			}

			data, err := wsmarshaller.MarshallChange(ev, h.views())
			if err != nil {
				h.logger.Error("VIEW_WS_MARSHAL_FAILED", "err", err)
				continue
			}
			if err := h.write(conn, data); err != nil {
				h.logger.Warn("VIEW_WS_SEND_FAILED", "conn_id", connID, "err", err)
				return
			}
		}
	}
}

func (h *WSHandler) views() []marshaller.NotificationView {
	return marshaller.MarshalNotifications(h.store.List(), h.catalog)
}

func (h *WSHandler) write(conn *websocket.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
