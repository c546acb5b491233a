package domain

import "time"

// OutboxMessage is an event row written in the same transaction as the state
// change it describes, drained later by the relay.
type OutboxMessage struct {
	ID          string
	EventType   string
	AggregateID int64
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
	Attempts    int
	LastError   string
}
