package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
)

// NotificationService observes in-process lifecycle events. Notification
// content is owned downstream; here events are logged and counted.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger.Named("notifications"),
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleLifecycleEvent)
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleLifecycleEvent)
	n.dispatcher.Subscribe(events.EventTicketDerived, n.handleLifecycleEvent)
	n.dispatcher.Subscribe(events.EventTicketReturned, n.handleLifecycleEvent)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
}

func (n *NotificationService) handleLifecycleEvent(_ context.Context, event events.Event) error {
	n.metrics.RecordEvent(string(event.Type))
	n.logger.Info(string(event.Type), n.fields(event)...)
	return nil
}

func (n *NotificationService) handleTicketClosed(_ context.Context, event events.Event) error {
	n.metrics.RecordEvent(string(event.Type))
	// The durable closure signal travels through the outbox; this is only the
	// audit line.
	n.logger.Info("ticket closed", n.fields(event)...)
	return nil
}

func (n *NotificationService) fields(event events.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.Int64("ticket_id", event.TicketID),
	}
	if payload, ok := event.Payload.(events.TransitionPayload); ok {
		fields = append(fields,
			zap.String("previous_state", string(payload.PreviousState)),
			zap.String("new_state", string(payload.NewState)),
		)
		if payload.HolderID != nil {
			fields = append(fields, zap.Int64("holder_id", *payload.HolderID))
		}
		if payload.AreaID != nil {
			fields = append(fields, zap.Int64("area_id", *payload.AreaID))
		}
	}
	return fields
}
