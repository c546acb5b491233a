package events

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket_created"
	EventTicketEscalated EventType = "ticket_escalated"
	EventTicketDerived   EventType = "ticket_derived"
	EventTicketReturned  EventType = "ticket_returned"
	EventTicketClosed    EventType = "ticket_closed"
)

// OutboxTicketClosed is the outbox event type consumed by the survey and
// notification pipeline.
const OutboxTicketClosed = "ticket.closed"

// Event represents a lifecycle change, dispatched in-process after commit.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	ActorID   int64       `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TransitionPayload accompanies every state-changing event.
type TransitionPayload struct {
	PreviousState domain.TicketState `json:"previous_state,omitempty"`
	NewState      domain.TicketState `json:"new_state"`
	HolderID      *int64             `json:"holder_id,omitempty"`
	AreaID        *int64             `json:"area_id,omitempty"`
	Note          string             `json:"note,omitempty"`
}

// ClosedEvent is the durable record of a ticket closure. LastHolderID is the
// most recent individual holder and receives the satisfaction survey.
type ClosedEvent struct {
	TicketID     int64     `json:"ticket_id"`
	CustomerID   int64     `json:"customer_id"`
	LastHolderID int64     `json:"last_holder_id"`
	ClosedBy     int64     `json:"closed_by"`
	ClosedAt     time.Time `json:"closed_at"`
	SurveyID     int64     `json:"survey_id"`
}
