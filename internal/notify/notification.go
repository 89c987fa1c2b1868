// Package notify fans event summaries out to users over push, the SSE stream and email.
// Delivery is best effort: failures are logged and never reach the caller.
package notify

import (
	"context"
	"time"
)

type Kind string

const (
	KindTaskAssigned      Kind = "task_assigned"
	KindTaskUpdated       Kind = "task_updated"
	KindTicketCreated     Kind = "ticket_created"
	KindTicketCommented   Kind = "ticket_commented"
	KindAttendanceDecided Kind = "attendance_decided"
	KindProjectJoined     Kind = "project_joined"
	KindProjectUpdate     Kind = "project_update"
	KindAnnouncement      Kind = "announcement"
)

// Notification is what services hand to the Dispatcher.
type Notification struct {
	Kind         Kind
	ActorID      uint64
	RecipientIDs []uint64
	// Data fills the message templates.
	Data map[string]any
	// Refs travels with the message so clients can deep link (task_id, project_id, ...).
	Refs map[string]string
}

type Recipient struct {
	ID    uint64
	Email string
	Name  string
}

// Message is the localised notification handed to every channel.
type Message struct {
	Kind       Kind
	Title      string
	Body       string
	Refs       map[string]string
	Recipients []Recipient
	CreatedAt  time.Time
}

// RecipientIDs returns the user ids of the recipients.
func (m Message) RecipientIDs() []uint64 {
	ids := make([]uint64, len(m.Recipients))
	for i, r := range m.Recipients {
		ids[i] = r.ID
	}
	return ids
}

// Channel delivers a message over one transport.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

type localeKey struct{}

// WithLocale returns a context carrying the requester's locale or Accept-Language value.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey{}, locale)
}

// LocaleFromContext returns the locale set by WithLocale, or "".
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(localeKey{}).(string); ok {
		return v
	}
	return ""
}
