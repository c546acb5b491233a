package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/repository/memory"
)

func seedTicket(t *testing.T, store *memory.Store) *domain.Ticket {
	t.Helper()
	ctx := context.Background()

	customer := &domain.Customer{Name: "Ana", Email: "ana@example.com"}
	gt.NoError(t, store.Customers().Create(ctx, customer)).Required()

	ticket := &domain.Ticket{
		Type:       domain.TicketTypeClaim,
		Channel:    domain.ChannelPhone,
		State:      domain.TicketStateOpen,
		Subject:    "billing",
		CustomerID: customer.ID,
	}
	gt.NoError(t, store.Tickets().Create(ctx, ticket)).Required()
	return ticket
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	ticket := seedTicket(t, store)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		updated := *ticket
		updated.State = domain.TicketStateEscalated
		gt.NoError(t, tx.Tickets().UpdateState(ctx, &updated, domain.TicketStateOpen)).Required()

		inside, err := tx.Tickets().GetByID(ctx, ticket.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, inside.State).Equal(domain.TicketStateEscalated)
		return boom
	})
	gt.Error(t, err).Is(boom)

	stored, err := store.Tickets().GetByID(ctx, ticket.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, stored.State).Equal(domain.TicketStateOpen)
}

func TestWithinTx_Commits(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	ticket := seedTicket(t, store)

	err := store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		updated := *ticket
		updated.State = domain.TicketStateEscalated
		return tx.Tickets().UpdateState(ctx, &updated, domain.TicketStateOpen)
	})
	gt.NoError(t, err).Required()

	stored, err := store.Tickets().GetByID(ctx, ticket.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, stored.State).Equal(domain.TicketStateEscalated)
}

func TestTickets_UpdateStateIsConditional(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	ticket := seedTicket(t, store)

	updated := *ticket
	updated.State = domain.TicketStateEscalated
	gt.Error(t, store.Tickets().UpdateState(ctx, &updated, domain.TicketStateDerived)).Is(repository.ErrStaleWrite)
	gt.NoError(t, store.Tickets().UpdateState(ctx, &updated, domain.TicketStateOpen))
	gt.Error(t, store.Tickets().UpdateState(ctx, &updated, domain.TicketStateOpen)).Is(repository.ErrStaleWrite)
}

func TestAssignments_ChainConstraints(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	ticket := seedTicket(t, store)
	repo := store.Assignments()
	holder := int64(7)
	now := time.Now().UTC()

	root := &domain.Assignment{TicketID: ticket.ID, HolderID: &holder, StartedAt: now}
	gt.NoError(t, repo.Insert(ctx, root)).Required()

	t.Run("second active record is rejected", func(t *testing.T) {
		dup := &domain.Assignment{TicketID: ticket.ID, HolderID: &holder, StartedAt: now, ParentID: &root.ID}
		gt.Error(t, repo.Insert(ctx, dup)).Is(repository.ErrStaleWrite)
	})

	t.Run("end is one-shot", func(t *testing.T) {
		gt.NoError(t, repo.End(ctx, root.ID, now)).Required()
		gt.Error(t, repo.End(ctx, root.ID, now)).Is(repository.ErrStaleWrite)
	})

	t.Run("parent has a single child", func(t *testing.T) {
		child := &domain.Assignment{TicketID: ticket.ID, HolderID: &holder, StartedAt: now, ParentID: &root.ID}
		gt.NoError(t, repo.Insert(ctx, child)).Required()
		gt.NoError(t, repo.End(ctx, child.ID, now)).Required()

		sibling := &domain.Assignment{TicketID: ticket.ID, HolderID: &holder, StartedAt: now, ParentID: &root.ID}
		gt.Error(t, repo.Insert(ctx, sibling)).Is(repository.ErrStaleWrite)
	})

	history, err := repo.ListByTicket(ctx, ticket.ID)
	gt.NoError(t, err).Required()
	gt.Array(t, history).Length(2)
}

func TestAssignments_CandidateLoads(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	ticket := seedTicket(t, store)

	area := &domain.Area{Name: "Claims"}
	gt.NoError(t, store.Areas().Create(ctx, area)).Required()

	inArea := &domain.Employee{Name: "B1", Email: "b1@example.com", Role: domain.RoleBackoffice, AreaIDs: []int64{area.ID}, Active: true}
	global := &domain.Employee{Name: "B2", Email: "b2@example.com", Role: domain.RoleBackoffice, Active: true}
	inactive := &domain.Employee{Name: "B3", Email: "b3@example.com", Role: domain.RoleBackoffice, AreaIDs: []int64{area.ID}}
	for _, e := range []*domain.Employee{inArea, global, inactive} {
		gt.NoError(t, store.Employees().Create(ctx, e)).Required()
	}

	gt.NoError(t, store.Assignments().Insert(ctx, &domain.Assignment{
		TicketID: ticket.ID, HolderID: &inArea.ID, StartedAt: time.Now().UTC(),
	})).Required()

	loads, err := store.Assignments().CandidateLoads(ctx, &area.ID)
	gt.NoError(t, err).Required()
	gt.Array(t, loads).Length(1)
	gt.Value(t, loads[0].Employee.ID).Equal(inArea.ID)
	gt.Number(t, loads[0].Open).Equal(1)

	all, err := store.Assignments().CandidateLoads(ctx, nil)
	gt.NoError(t, err).Required()
	gt.Array(t, all).Length(2)
}

func TestSurveys_CreateIsIdempotent(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	first, created, err := store.Surveys().CreateForTicket(ctx, 1, 2, 3)
	gt.NoError(t, err).Required()
	gt.Bool(t, created).True()

	second, created, err := store.Surveys().CreateForTicket(ctx, 1, 9, 3)
	gt.NoError(t, err).Required()
	gt.Bool(t, created).False()
	gt.Value(t, second.ID).Equal(first.ID)
	gt.Value(t, second.HandlerID).Equal(int64(2))
}

func TestOutbox_PendingLifecycle(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	repo := store.Outbox()

	gt.NoError(t, repo.Insert(ctx, &domain.OutboxMessage{ID: "a", EventType: "ticket.closed", AggregateID: 1})).Required()
	gt.NoError(t, repo.Insert(ctx, &domain.OutboxMessage{ID: "b", EventType: "ticket.closed", AggregateID: 2})).Required()

	gt.NoError(t, repo.MarkFailed(ctx, "a", "broker down")).Required()
	gt.NoError(t, repo.MarkPublished(ctx, "b", time.Now())).Required()
	gt.Error(t, repo.MarkPublished(ctx, "b", time.Now())).Is(repository.ErrNotFound)

	pending, err := repo.ListPending(ctx, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, pending).Length(1)
	gt.Value(t, pending[0].ID).Equal("a")
	gt.Number(t, pending[0].Attempts).Equal(1)
	gt.Value(t, pending[0].LastError).Equal("broker down")
}
