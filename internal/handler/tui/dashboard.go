// Package tui renders a live terminal dashboard of the session and its
// notifications.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/artmarket/session-sync/internal/adapter/pubsub"
	"github.com/artmarket/session-sync/internal/domain/channel"
	"github.com/artmarket/session-sync/internal/domain/event"
	"github.com/artmarket/session-sync/internal/domain/model"
	"github.com/artmarket/session-sync/internal/handler/marshaller"
)

const headerHeight = 5

type Sessions interface {
	Snapshot() model.Session
}

type Notifications interface {
	List() []model.Notification
	UnreadCount() int
	Err() error
	MarkRead(ctx context.Context, id int64) error
	Remove(ctx context.Context, id int64) error
}

type ChannelState interface {
	State() channel.State
}

type Dashboard struct {
	sessions Sessions
	store    Notifications
	channel  ChannelState
	bus      pubsub.EventDispatcher
	catalog  model.Catalog
	logger   *slog.Logger

	header *widgets.Paragraph
	list   *widgets.List
	views  []marshaller.NotificationView
	status string
}

func NewDashboard(s Sessions, n Notifications, ch ChannelState, bus pubsub.EventDispatcher, catalog model.Catalog, logger *slog.Logger) *Dashboard {
	return &Dashboard{
		sessions: s,
		store:    n,
		channel:  ch,
		bus:      bus,
		catalog:  catalog,
		logger:   logger,
	}
}

// Run takes over the terminal until q or ctx ends.
// Keys: j/k move, r marks read, d deletes, q quits.
func (d *Dashboard) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessionEvents, err := d.bus.Subscribe(ctx, event.TopicSession)
	if err != nil {
		return err
	}
	storeEvents, err := d.bus.Subscribe(ctx, event.TopicNotifications)
	if err != nil {
		return err
	}

	if err := ui.Init(); err != nil {
		return fmt.Errorf("tui: init terminal: %w", err)
	}
	defer ui.Close()

	d.header = widgets.NewParagraph()
	d.header.Title = "session"
	d.list = widgets.NewList()
	d.list.Title = "notifications"
	d.list.SelectedRowStyle = ui.NewStyle(ui.ColorYellow)
	d.list.WrapText = false

	d.layout()
	d.refresh()

	keys := ui.PollEvents()
	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-sessionEvents:
			if !ok {
				return nil
			}
			msg.Ack()
			d.refresh()

		case msg, ok := <-storeEvents:
			if !ok {
				return nil
			}
			msg.Ack()
			d.refresh()

		case e := <-keys:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "j", "<Down>":
				d.list.ScrollDown()
			case "k", "<Up>":
				d.list.ScrollUp()
			case "r":
				d.act(ctx, "read", d.store.MarkRead)
			case "d":
				d.act(ctx, "delete", d.store.Remove)
			case "<Resize>":
				d.layout()
			}
			d.render()
		}
	}
}

func (d *Dashboard) act(ctx context.Context, name string, op func(context.Context, int64) error) {
	if d.list.SelectedRow < 0 || d.list.SelectedRow >= len(d.views) {
		return
	}
	id := d.views[d.list.SelectedRow].ID
	if err := op(ctx, id); err != nil {
		d.status = fmt.Sprintf("%s %d failed: %v", name, id, err)
		d.logger.Warn("TUI_ACTION_FAILED", "action", name, "notification_id", id, "err", err)
	} else {
		d.status = fmt.Sprintf("%s %d ok", name, id)
	}
	d.refresh()
}

func (d *Dashboard) layout() {
	w, h := ui.TerminalDimensions()
	d.header.SetRect(0, 0, w, headerHeight)
	d.list.SetRect(0, headerHeight, w, h)
}

func (d *Dashboard) refresh() {
	d.views = marshaller.MarshalNotifications(d.store.List(), d.catalog)
	d.list.Rows = Rows(d.views)
	if d.list.SelectedRow >= len(d.list.Rows) {
		d.list.SelectedRow = max(len(d.list.Rows)-1, 0)
	}
	d.header.Text = Header(d.sessions.Snapshot(), d.channel.State(), d.store.UnreadCount(), d.store.Err(), d.status)
	d.render()
}

func (d *Dashboard) render() {
	ui.Render(d.header, d.list)
}

// Header summarises the session, channel and store state.
func Header(s model.Session, st channel.State, unread int, hydrateErr error, status string) string {
	var b strings.Builder
	if s.Authenticated() {
		fmt.Fprintf(&b, "user %d", *s.UserID)
		if s.Fullname != "" {
			fmt.Fprintf(&b, " (%s)", s.Fullname)
		}
		if s.Role != model.RoleNone {
			fmt.Fprintf(&b, " [%s]", s.Role)
		}
	} else {
		b.WriteString("anonymous")
	}
	fmt.Fprintf(&b, "\nchannel: %s  unread: %d", st, unread)
	if hydrateErr != nil {
		fmt.Fprintf(&b, "\n[notifications unavailable: %v](fg:red)", hydrateErr)
	} else if status != "" {
		fmt.Fprintf(&b, "\n%s", status)
	}
	return b.String()
}

// Rows formats one list row per notification; unread rows are marked.
func Rows(views []marshaller.NotificationView) []string {
	rows := make([]string, 0, len(views))
	for _, v := range views {
		mark := " "
		if !v.Read {
			mark = "*"
		}
		ts := ""
		if !v.CreatedAt.IsZero() {
			ts = v.CreatedAt.Local().Format("2006-01-02 15:04") + "  "
		}
		rows = append(rows, fmt.Sprintf("%s #%d  %s%s", mark, v.ID, ts, v.Text))
	}
	return rows
}
