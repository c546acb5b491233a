package domain

import (
	"errors"
	"strings"
	"time"
)

// TicketType classifies a case at creation time. It never changes afterwards.
type TicketType string

const (
	TicketTypeConsultation TicketType = "CONSULTATION"
	TicketTypeComplaint    TicketType = "COMPLAINT"
	TicketTypeClaim        TicketType = "CLAIM"
	TicketTypeRequest      TicketType = "REQUEST"
)

// Valid reports whether t is one of the known ticket types.
func (t TicketType) Valid() bool {
	switch t {
	case TicketTypeConsultation, TicketTypeComplaint, TicketTypeClaim, TicketTypeRequest:
		return true
	}
	return false
}

// Channel is the contact channel a ticket was opened through.
type Channel string

const (
	ChannelPhone    Channel = "PHONE"
	ChannelInPerson Channel = "IN_PERSON"
	ChannelEmail    Channel = "EMAIL"
	ChannelWeb      Channel = "WEB"
)

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelPhone, ChannelInPerson, ChannelEmail, ChannelWeb:
		return true
	}
	return false
}

// TicketState enumerates lifecycle states for tickets.
type TicketState string

const (
	TicketStateOpen      TicketState = "OPEN"
	TicketStateEscalated TicketState = "ESCALATED"
	TicketStateDerived   TicketState = "DERIVED"
	TicketStateClosed    TicketState = "CLOSED"
)

// AllTicketStates lists every state in lifecycle order.
var AllTicketStates = []TicketState{
	TicketStateOpen,
	TicketStateEscalated,
	TicketStateDerived,
	TicketStateClosed,
}

// Valid reports whether s is a known state.
func (s TicketState) Valid() bool {
	switch s {
	case TicketStateOpen, TicketStateEscalated, TicketStateDerived, TicketStateClosed:
		return true
	}
	return false
}

// Ticket is the aggregate for customer-service cases. Rows are never deleted;
// CLOSED is terminal.
type Ticket struct {
	ID          int64
	Type        TicketType
	Channel     Channel
	State       TicketState
	Subject     string
	Description string
	CustomerID  int64
	MotiveID    *int64
	CreatedAt   time.Time
	ClosedAt    *time.Time
	ClosedBy    *int64
}

var (
	ErrClosedAtWithoutClosedState = errors.New("closed_at set on a ticket that is not CLOSED")
	ErrClosedStateWithoutClosedAt = errors.New("CLOSED ticket without closed_at")
)

// CheckInvariants verifies the closedAt <-> CLOSED biconditional.
func (t *Ticket) CheckInvariants() error {
	if t.State == TicketStateClosed && t.ClosedAt == nil {
		return ErrClosedStateWithoutClosedAt
	}
	if t.State != TicketStateClosed && t.ClosedAt != nil {
		return ErrClosedAtWithoutClosedState
	}
	return nil
}

// NormalizeText trims free text fields before persistence.
func (t *Ticket) NormalizeText() {
	t.Subject = strings.TrimSpace(t.Subject)
	t.Description = strings.TrimSpace(t.Description)
}
