package session

import (
	"context"
	"log/slog"
	"time"
)

// NotificationKind says which session event a notification reports.
type NotificationKind string

const (
	KindIdleWarning    NotificationKind = "idle_warning"
	KindSessionExpired NotificationKind = "session_expired"
	KindLoggedOut      NotificationKind = "logged_out"
)

// Severity is how prominently a notification should be shown.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
)

// Notification is a user-visible message about the session.
type Notification struct {
	Kind     NotificationKind
	Severity Severity
	Message  string
	// Deadline is set for idle warnings: the session ends then unless extended.
	Deadline time.Time
}

// Notifier receives notifications. Notify must not block; delivery is
// fire-and-forget.
type Notifier interface {
	Notify(Notification)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(msg Notification) {
	level := slog.LevelInfo
	if msg.Severity == SeverityWarning {
		level = slog.LevelWarn
	}
	attrs := []any{"kind", msg.Kind, "severity", msg.Severity}
	if !msg.Deadline.IsZero() {
		attrs = append(attrs, "deadline", msg.Deadline)
	}
	n.Logger.Log(context.Background(), level, msg.Message, attrs...)
}

// ChannelNotifier forwards notifications to C, dropping them when C is full.
type ChannelNotifier struct {
	C chan Notification
}

// NewChannelNotifier creates a ChannelNotifier with the given buffer size.
func NewChannelNotifier(size int) *ChannelNotifier {
	return &ChannelNotifier{C: make(chan Notification, size)}
}

func (n *ChannelNotifier) Notify(msg Notification) {
	select {
	case n.C <- msg:
	default:
	}
}

// MultiNotifier fans a notification out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(msg Notification) {
	for _, n := range m {
		if n != nil {
			n.Notify(msg)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}
