package domain

import (
	"slices"
	"time"
)

// EmployeeRole is the closed set of employee variants.
type EmployeeRole string

const (
	RoleFrontline  EmployeeRole = "FRONTLINE"
	RoleBackoffice EmployeeRole = "BACKOFFICE"
	RoleOversight  EmployeeRole = "OVERSIGHT"
)

// Valid reports whether r is a known role.
func (r EmployeeRole) Valid() bool {
	switch r {
	case RoleFrontline, RoleBackoffice, RoleOversight:
		return true
	}
	return false
}

// Employee models a frontline handler, a backoffice handler or an oversight
// user. Role specific fields are only meaningful for their role: Channel for
// frontline, AreaIDs and Capacity for backoffice.
type Employee struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         EmployeeRole
	Channel      *Channel
	AreaIDs      []int64
	Capacity     int
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BoundChannel returns the channel a frontline handler is bound to.
func (e *Employee) BoundChannel() (Channel, bool) {
	switch e.Role {
	case RoleFrontline:
		if e.Channel == nil {
			return "", false
		}
		return *e.Channel, true
	case RoleBackoffice, RoleOversight:
		return "", false
	}
	return "", false
}

// ServesArea reports whether a backoffice handler belongs to the candidate
// pool of areaID. A nil area is the global pool.
func (e *Employee) ServesArea(areaID *int64) bool {
	switch e.Role {
	case RoleBackoffice:
		if areaID == nil {
			return true
		}
		return slices.Contains(e.AreaIDs, *areaID)
	case RoleFrontline, RoleOversight:
		return false
	}
	return false
}

// CanHold reports whether the employee may appear as a holder in a custody chain.
func (e *Employee) CanHold() bool {
	switch e.Role {
	case RoleFrontline, RoleBackoffice:
		return e.Active
	case RoleOversight:
		return false
	}
	return false
}

// HasCapacityFor reports whether a handler with the given open load can take
// one more ticket. Capacity 0 means unbounded; only backoffice is capacity bound.
func (e *Employee) HasCapacityFor(openLoad int) bool {
	switch e.Role {
	case RoleBackoffice:
		return e.Capacity <= 0 || openLoad < e.Capacity
	case RoleFrontline:
		return true
	case RoleOversight:
		return false
	}
	return false
}

// EmployeeLoad is the derived open-assignment count of a handler.
type EmployeeLoad struct {
	Employee Employee
	Open     int
}

// Busy reports whether the handler currently holds at least one ticket.
func (l EmployeeLoad) Busy() bool {
	return l.Open > 0
}
