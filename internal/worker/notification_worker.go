package worker

import (
	"context"

	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
)

// StartNotificationWorker subscribes the notification service to lifecycle
// events and wakes the outbox relay whenever a ticket closes, so the closure
// event leaves without waiting for the next poll.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, relay *OutboxRelay) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if dispatcher == nil || relay == nil {
		return
	}
	dispatcher.Subscribe(events.EventTicketClosed, func(context.Context, events.Event) error {
		relay.Nudge()
		return nil
	})
}
