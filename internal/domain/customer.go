package domain

import "time"

// Customer is the person a ticket is opened for. Profiles are owned by an
// external directory; only the identity is kept here.
type Customer struct {
	ID        int64
	Name      string
	Email     string
	CreatedAt time.Time
}
