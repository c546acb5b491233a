package dto

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// CreateTicketRequest payload. The requester is the authenticated employee.
type CreateTicketRequest struct {
	Type        domain.TicketType `json:"type"`
	Channel     domain.Channel    `json:"channel"`
	Subject     string            `json:"subject"`
	Description string            `json:"description"`
	CustomerID  int64             `json:"customer_id"`
	MotiveID    *int64            `json:"motive_id"`
}

// EscalateRequest payload. A missing area selects from every backoffice handler.
type EscalateRequest struct {
	AreaID *int64 `json:"area_id"`
}

// DeriveRequest payload.
type DeriveRequest struct {
	AreaID int64 `json:"area_id"`
}

// ReturnRequest payload.
type ReturnRequest struct {
	ReceivingHolderID int64  `json:"receiving_holder_id"`
	Reason            string `json:"reason"`
}

// TicketResponse describes a ticket and its current custodian.
type TicketResponse struct {
	ID          int64               `json:"id"`
	Type        domain.TicketType   `json:"type"`
	Channel     domain.Channel      `json:"channel"`
	State       domain.TicketState  `json:"state"`
	Subject     string              `json:"subject"`
	Description string              `json:"description,omitempty"`
	CustomerID  int64               `json:"customer_id"`
	MotiveID    *int64              `json:"motive_id,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	ClosedAt    *time.Time          `json:"closed_at"`
	ClosedBy    *int64              `json:"closed_by,omitempty"`
	Custodian   *AssignmentResponse `json:"custodian,omitempty"`
}

// AssignmentResponse is one custody record.
type AssignmentResponse struct {
	ID        int64      `json:"id"`
	HolderID  *int64     `json:"holder_id,omitempty"`
	AreaID    *int64     `json:"area_id,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	ParentID  *int64     `json:"parent_id"`
	Note      string     `json:"note,omitempty"`
	Digest    string     `json:"digest"`
}

// CustodyChainResponse lists a ticket's custody records newest first.
type CustodyChainResponse struct {
	TicketID    int64                `json:"ticket_id"`
	Verified    bool                 `json:"verified"`
	Assignments []AssignmentResponse `json:"assignments"`
}
