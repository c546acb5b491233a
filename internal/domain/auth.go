package domain

import "time"

// Token represents issued authentication tokens metadata.
type Token struct {
	ID         string
	EmployeeID int64
	Role       EmployeeRole
	ExpiresAt  time.Time
	IssuedAt   time.Time
}
