package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrStaleWrite is returned when a conditional write matched no row
	// because another writer changed it first.
	ErrStaleWrite = errors.New("stale write")
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories groups every repository bound to one connection or transaction.
type Repositories interface {
	Tickets() TicketRepository
	Assignments() AssignmentRepository
	Employees() EmployeeRepository
	Areas() AreaRepository
	Customers() CustomerRepository
	Surveys() SurveyRepository
	Outbox() OutboxRepository
}

// Store is the persistence boundary. WithinTx runs fn atomically: either
// every write made through tx is committed or none is.
type Store interface {
	Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
}
