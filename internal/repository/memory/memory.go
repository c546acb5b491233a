package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

// Store is an in-process repository.Store. Transactions hold a single lock,
// work on a copy of the data and swap it in on success.
type Store struct {
	mu sync.Mutex
	st *state
	views
}

var _ repository.Store = &Store{}

type state struct {
	tickets     map[int64]domain.Ticket
	assignments map[int64]domain.Assignment
	employees   map[int64]domain.Employee
	areas       map[int64]domain.Area
	customers   map[int64]domain.Customer
	surveys     map[int64]domain.Survey // keyed by ticket id
	outbox      []domain.OutboxMessage
	seq         sequences
}

type sequences struct {
	ticket, assignment, employee, area, customer, survey int64
}

func newState() *state {
	return &state{
		tickets:     make(map[int64]domain.Ticket),
		assignments: make(map[int64]domain.Assignment),
		employees:   make(map[int64]domain.Employee),
		areas:       make(map[int64]domain.Area),
		customers:   make(map[int64]domain.Customer),
		surveys:     make(map[int64]domain.Survey),
	}
}

// clone copies every table. Stored values are replaced wholesale on update and
// never mutated through their pointers, so a shallow copy per row is enough.
func (s *state) clone() *state {
	return &state{
		tickets:     maps.Clone(s.tickets),
		assignments: maps.Clone(s.assignments),
		employees:   maps.Clone(s.employees),
		areas:       maps.Clone(s.areas),
		customers:   maps.Clone(s.customers),
		surveys:     maps.Clone(s.surveys),
		outbox:      slices.Clone(s.outbox),
		seq:         s.seq,
	}
}

// New returns an empty store.
func New() *Store {
	s := &Store{st: newState()}
	s.views = views{db: func() *state { return s.st }, mu: &s.mu}
	return s
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	draft := s.st.clone()
	tx := views{db: func() *state { return draft }, mu: noopLocker{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.st = draft
	return nil
}

// views binds repositories to a state source and the lock guarding it.
type views struct {
	db func() *state
	mu sync.Locker
}

func (v views) Tickets() repository.TicketRepository         { return &ticketRepository{v} }
func (v views) Assignments() repository.AssignmentRepository { return &assignmentRepository{v} }
func (v views) Employees() repository.EmployeeRepository     { return &employeeRepository{v} }
func (v views) Areas() repository.AreaRepository             { return &areaRepository{v} }
func (v views) Customers() repository.CustomerRepository     { return &customerRepository{v} }
func (v views) Surveys() repository.SurveyRepository         { return &surveyRepository{v} }
func (v views) Outbox() repository.OutboxRepository          { return &outboxRepository{v} }

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}
