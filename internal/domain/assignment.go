package domain

import (
	"errors"
	"time"
)

// Assignment is one custody record of a ticket. Exactly one of HolderID and
// AreaID is set. Only EndedAt is ever written after insert, and only once.
type Assignment struct {
	ID        int64
	TicketID  int64
	HolderID  *int64
	AreaID    *int64
	StartedAt time.Time
	EndedAt   *time.Time
	ParentID  *int64
	Note      string
	Digest    []byte
}

// Active reports whether this record currently holds the ticket.
func (a *Assignment) Active() bool {
	return a.EndedAt == nil
}

// Custodian names who receives a ticket: an individual employee or an area.
type Custodian struct {
	HolderID *int64
	AreaID   *int64
}

// HolderCustodian builds a custodian for an individual employee.
func HolderCustodian(employeeID int64) Custodian {
	return Custodian{HolderID: &employeeID}
}

// AreaCustodian builds a custodian for a department.
func AreaCustodian(areaID int64) Custodian {
	return Custodian{AreaID: &areaID}
}

var ErrCustodianExclusive = errors.New("assignment needs exactly one of holder or area")

// Validate enforces the holder XOR area rule.
func (c Custodian) Validate() error {
	if (c.HolderID == nil) == (c.AreaID == nil) {
		return ErrCustodianExclusive
	}
	return nil
}

// Area is a department a ticket can be routed to.
type Area struct {
	ID       int64
	Name     string
	External bool
}
