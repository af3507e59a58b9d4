// Package services holds the business operations behind the HTTP API. Each
// service writes through storage, drops the owner's cached month snapshots and
// announces the change on the event bus.
package services

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"kakeibo/internal/amqp"
	"kakeibo/internal/log"
)

// EventPublisher announces stored changes. *amqp.Client satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, event *amqp.ChangeEvent) error
}

// notifier stamps events with an increasing version and never fails the
// caller: the write has already been committed when it runs.
type notifier struct {
	events  EventPublisher
	logger  *log.Logger
	version atomic.Int64
}

func newNotifier(events EventPublisher, logger *log.Logger) *notifier {
	n := &notifier{events: events, logger: logger}
	n.version.Store(time.Now().UnixNano())
	return n
}

func (n *notifier) publish(ctx context.Context, kind, action, id, userID string, before any) {
	if n == nil || n.events == nil {
		return
	}
	ev := amqp.NewChangeEvent(kind, action, id, userID, n.version.Add(1))
	if before != nil {
		if b, err := json.Marshal(before); err == nil {
			ev.Before = b
		}
	}
	if err := n.events.Publish(ctx, ev); err != nil {
		n.logger.WarnContext(ctx, "Failed to publish change event",
			log.FieldError, err,
			log.FieldResource, kind,
			log.FieldResourceID, id,
			log.FieldEventAction, action)
	}
}
