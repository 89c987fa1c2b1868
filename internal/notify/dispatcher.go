package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yukikurage/circuit/internal/logger"
	"github.com/yukikurage/circuit/internal/models"
)

// UserLookup resolves notification recipients.
type UserLookup interface {
	FindByIDs(ctx context.Context, ids []uint64) ([]models.User, error)
}

const defaultDeliveryTimeout = 15 * time.Second

// Dispatcher delivers notifications in the background. Dispatch never blocks on a channel
// and never returns an error, so a failing transport cannot fail the originating request.
type Dispatcher struct {
	users    UserLookup
	catalog  *Catalog
	log      *logger.Logger
	channels []Channel
	timeout  time.Duration
	now      func() time.Time

	wg sync.WaitGroup
}

func NewDispatcher(users UserLookup, catalog *Catalog, log *logger.Logger, timeout time.Duration, channels ...Channel) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	return &Dispatcher{
		users:    users,
		catalog:  catalog,
		log:      log,
		channels: channels,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Dispatch queues n for delivery. The actor is never notified of their own action.
// A nil Dispatcher drops everything.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) {
	if d == nil {
		return
	}
	ids := recipientIDs(n.RecipientIDs, n.ActorID)
	if len(ids) == 0 || len(d.channels) == 0 {
		return
	}
	n.RecipientIDs = ids
	locale := LocaleFromContext(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		d.deliver(dctx, locale, n)
	}()
}

// Wait blocks until every queued delivery has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, locale string, n Notification) {
	users, err := d.users.FindByIDs(ctx, n.RecipientIDs)
	if err != nil {
		d.logError(fmt.Sprintf("notify: load recipients for %s: %v", n.Kind, err))
		return
	}

	recipients := make([]Recipient, 0, len(users))
	for _, u := range users {
		if !u.IsActive() {
			continue
		}
		recipients = append(recipients, Recipient{ID: u.ID, Email: u.Email, Name: u.Name})
	}
	if len(recipients) == 0 {
		return
	}

	title, body := d.render(locale, n)
	msg := Message{
		Kind:       n.Kind,
		Title:      title,
		Body:       body,
		Refs:       n.Refs,
		Recipients: recipients,
		CreatedAt:  d.now(),
	}

	for _, ch := range d.channels {
		if err := d.safeDeliver(ctx, ch, msg); err != nil {
			d.logError(fmt.Sprintf("notify: %s delivery of %s failed: %v", ch.Name(), n.Kind, err))
		}
	}
}

func (d *Dispatcher) safeDeliver(ctx context.Context, ch Channel, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return ch.Deliver(ctx, msg)
}

func (d *Dispatcher) render(locale string, n Notification) (string, string) {
	if d.catalog == nil {
		return string(n.Kind), ""
	}
	return d.catalog.Render(locale, n.Kind, n.Data)
}

func (d *Dispatcher) logError(msg string) {
	if d.log != nil {
		d.log.Error(msg)
	}
}

// recipientIDs drops duplicates and the actor, keeping first-seen order.
func recipientIDs(ids []uint64, actorID uint64) []uint64 {
	seen := make(map[uint64]bool, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || id == actorID || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
