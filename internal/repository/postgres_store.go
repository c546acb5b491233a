package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation = "23505"

	activeAssignmentIndex = "assignments_one_active_per_ticket"
	rootAssignmentIndex   = "assignments_one_root_per_ticket"
	parentAssignmentKey   = "assignments_parent_id_key"
)

type postgresStore struct {
	pool *pgxpool.Pool
	postgresRepositories
}

type postgresRepositories struct {
	db DBTX
}

// NewPostgresStore builds the pgx backed store.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool, postgresRepositories: postgresRepositories{db: pool}}
}

func (s *postgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, postgresRepositories{db: tx})
	})
}

func (r postgresRepositories) Tickets() TicketRepository         { return &ticketRepository{db: r.db} }
func (r postgresRepositories) Assignments() AssignmentRepository { return &assignmentRepository{db: r.db} }
func (r postgresRepositories) Employees() EmployeeRepository     { return &employeeRepository{db: r.db} }
func (r postgresRepositories) Areas() AreaRepository             { return &areaRepository{db: r.db} }
func (r postgresRepositories) Customers() CustomerRepository     { return &customerRepository{db: r.db} }
func (r postgresRepositories) Surveys() SurveyRepository         { return &surveyRepository{db: r.db} }
func (r postgresRepositories) Outbox() OutboxRepository          { return &outboxRepository{db: r.db} }

func isConstraintViolation(err error, code, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == code && (constraint == "" || pgErr.ConstraintName == constraint)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
