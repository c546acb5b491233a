package domain

import "time"

// Survey is the satisfaction survey record created when a ticket closes.
// There is at most one per ticket.
type Survey struct {
	ID         int64
	TicketID   int64
	HandlerID  int64
	CustomerID int64
	CreatedAt  time.Time
}
