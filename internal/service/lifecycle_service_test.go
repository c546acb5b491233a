package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/repository/memory"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

type fixture struct {
	store     *memory.Store
	svc       *service.LifecycleService
	metrics   *observability.Metrics
	events    *eventLog
	customer  *domain.Customer
	front     *domain.Employee
	h1        *domain.Employee
	h2        *domain.Employee
	h3        *domain.Employee
	oversight *domain.Employee
	areaX     *domain.Area
	external  *domain.Area
	empty     *domain.Area
}

type eventLog struct {
	mu  sync.Mutex
	got []events.Event
}

func (l *eventLog) handle(_ context.Context, ev events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, ev)
	return nil
}

func (l *eventLog) types() []events.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.EventType
	for _, ev := range l.got {
		out = append(out, ev.Type)
	}
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	f := &fixture{store: store, metrics: observability.NewMetrics(), events: &eventLog{}}

	f.areaX = &domain.Area{Name: "billing"}
	f.external = &domain.Area{Name: "carrier", External: true}
	f.empty = &domain.Area{Name: "legal"}
	for _, a := range []*domain.Area{f.areaX, f.external, f.empty} {
		gt.NoError(t, store.Areas().Create(ctx, a)).Required()
	}

	f.customer = &domain.Customer{Name: "Ana", Email: "ana@example.com"}
	gt.NoError(t, store.Customers().Create(ctx, f.customer)).Required()

	phone := domain.ChannelPhone
	f.front = &domain.Employee{Name: "L1", Email: "l1@example.com", Role: domain.RoleFrontline, Channel: &phone, Active: true}
	f.h1 = &domain.Employee{Name: "H1", Email: "h1@example.com", Role: domain.RoleBackoffice, AreaIDs: []int64{f.areaX.ID}, Active: true}
	f.h2 = &domain.Employee{Name: "H2", Email: "h2@example.com", Role: domain.RoleBackoffice, AreaIDs: []int64{f.areaX.ID}, Active: true}
	f.h3 = &domain.Employee{Name: "H3", Email: "h3@example.com", Role: domain.RoleBackoffice, AreaIDs: []int64{f.areaX.ID}, Active: true}
	f.oversight = &domain.Employee{Name: "Boss", Email: "boss@example.com", Role: domain.RoleOversight, Active: true}
	for _, e := range []*domain.Employee{f.front, f.h1, f.h2, f.h3, f.oversight} {
		gt.NoError(t, store.Employees().Create(ctx, e)).Required()
	}

	dispatcher := events.NewInMemoryDispatcher()
	for _, et := range []events.EventType{
		events.EventTicketCreated, events.EventTicketEscalated, events.EventTicketDerived,
		events.EventTicketReturned, events.EventTicketClosed,
	} {
		dispatcher.Subscribe(et, f.events.handle)
	}
	f.svc = service.NewLifecycleService(service.LifecycleDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Metrics:    f.metrics,
	})
	return f
}

func (f *fixture) open(t *testing.T) int64 {
	t.Helper()
	res, err := f.svc.Create(context.Background(), service.CreateTicketInput{
		Type:        domain.TicketTypeRequest,
		Channel:     domain.ChannelPhone,
		Subject:     "  router keeps rebooting ",
		RequesterID: f.front.ID,
		CustomerID:  f.customer.ID,
	})
	gt.NoError(t, err).Required()
	gt.Value(t, res.State).Equal(domain.TicketStateOpen)
	return res.TicketID
}

// snapshot captures everything a rejected operation must leave untouched.
type snapshot struct {
	ticket  domain.Ticket
	history []domain.Assignment
	outbox  []domain.OutboxMessage
}

func (f *fixture) snapshot(t *testing.T, ticketID int64) snapshot {
	t.Helper()
	ctx := context.Background()
	ticket, err := f.store.Tickets().GetByID(ctx, ticketID)
	gt.NoError(t, err).Required()
	history, err := f.svc.History(ctx, ticketID)
	gt.NoError(t, err).Required()
	outbox, err := f.store.Outbox().ListPending(ctx, 100)
	gt.NoError(t, err).Required()
	return snapshot{ticket: *ticket, history: history, outbox: outbox}
}

func hasCode(t *testing.T, err error, code string) {
	t.Helper()
	gt.Value(t, apperrors.ToDomainError(err).Code).Equal(code)
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.open(t)
	details, err := f.svc.Get(ctx, id)
	gt.NoError(t, err).Required()
	gt.Value(t, details.Ticket.State).Equal(domain.TicketStateOpen)
	gt.Value(t, details.Ticket.Subject).Equal("router keeps rebooting")
	gt.Value(t, details.Ticket.ClosedAt).Nil()
	gt.Value(t, *details.Active.HolderID).Equal(f.front.ID)
	gt.Value(t, details.Active.ParentID).Nil()

	gt.Value(t, f.events.types()).Equal([]events.EventType{events.EventTicketCreated})
	gt.Value(t, f.events.got[0].ActorID).Equal(f.front.ID)

	t.Run("channel mismatch persists nothing", func(t *testing.T) {
		_, err := f.svc.Create(ctx, service.CreateTicketInput{
			Type:        domain.TicketTypeRequest,
			Channel:     domain.ChannelInPerson,
			Subject:     "walk-in",
			RequesterID: f.front.ID,
			CustomerID:  f.customer.ID,
		})
		hasCode(t, err, apperrors.CodeChannelMismatch)

		tickets, err := f.svc.List(ctx, repository.TicketFilter{})
		gt.NoError(t, err).Required()
		gt.Array(t, tickets).Length(1)
	})

	t.Run("backoffice cannot open tickets", func(t *testing.T) {
		_, err := f.svc.Create(ctx, service.CreateTicketInput{
			Type: domain.TicketTypeClaim, Channel: domain.ChannelPhone, Subject: "x",
			RequesterID: f.h1.ID, CustomerID: f.customer.ID,
		})
		hasCode(t, err, apperrors.CodeChannelMismatch)
	})

	t.Run("unknown customer", func(t *testing.T) {
		_, err := f.svc.Create(ctx, service.CreateTicketInput{
			Type: domain.TicketTypeClaim, Channel: domain.ChannelPhone, Subject: "x",
			RequesterID: f.front.ID, CustomerID: 999,
		})
		hasCode(t, err, apperrors.CodeNotFound)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := f.svc.Create(ctx, service.CreateTicketInput{Type: "BOGUS", Channel: domain.ChannelPhone})
		hasCode(t, err, apperrors.CodeValidation)
	})
}

func TestEscalate_PicksLeastLoadedHandler(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	area := f.areaX.ID

	for _, want := range []int64{f.h1.ID, f.h2.ID} {
		id := f.open(t)
		_, err := f.svc.Escalate(ctx, id, &area)
		gt.NoError(t, err).Required()
		details, err := f.svc.Get(ctx, id)
		gt.NoError(t, err).Required()
		gt.Value(t, *details.Active.HolderID).Equal(want)
	}

	id := f.open(t)
	before, err := f.svc.Get(ctx, id)
	gt.NoError(t, err).Required()

	res, err := f.svc.Escalate(ctx, id, &area)
	gt.NoError(t, err).Required()
	gt.Value(t, res).Equal(service.TransitionResult{
		TicketID:      id,
		PreviousState: domain.TicketStateOpen,
		NewState:      domain.TicketStateEscalated,
	})

	history, err := f.svc.History(ctx, id)
	gt.NoError(t, err).Required()
	gt.Array(t, history).Length(2).Required()
	gt.Value(t, *history[0].HolderID).Equal(f.h3.ID)
	gt.Value(t, *history[0].ParentID).Equal(before.Active.ID)
	gt.Value(t, history[0].EndedAt).Nil()
	gt.Value(t, history[1].ID).Equal(before.Active.ID)
	gt.Value(t, history[1].EndedAt).NotNil()
	gt.Value(t, *history[1].EndedAt).Equal(history[0].StartedAt)

	t.Run("only OPEN tickets escalate", func(t *testing.T) {
		_, err := f.svc.Escalate(ctx, id, &area)
		hasCode(t, err, apperrors.CodeInvalidTransition)
	})
}

func TestClose_IsTerminalAndCreatesOneSurvey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	area := f.areaX.ID

	id := f.open(t)
	_, err := f.svc.Escalate(ctx, id, &area)
	gt.NoError(t, err).Required()
	_, err = f.svc.Derive(ctx, id, f.external.ID)
	gt.NoError(t, err).Required()

	res, err := f.svc.Close(ctx, id, f.h1.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, res.PreviousState).Equal(domain.TicketStateDerived)
	gt.Value(t, res.NewState).Equal(domain.TicketStateClosed)

	details, err := f.svc.Get(ctx, id)
	gt.NoError(t, err).Required()
	gt.Value(t, details.Active).Nil()
	gt.Value(t, details.Ticket.ClosedAt).NotNil()
	gt.Value(t, *details.Ticket.ClosedBy).Equal(f.h1.ID)

	history, err := f.svc.VerifyHistory(ctx, id)
	gt.NoError(t, err).Required()
	gt.Value(t, *history[0].EndedAt).Equal(*details.Ticket.ClosedAt)

	survey, err := f.store.Surveys().GetByTicket(ctx, id)
	gt.NoError(t, err).Required()
	gt.Value(t, survey.HandlerID).Equal(f.h1.ID)
	gt.Value(t, survey.CustomerID).Equal(f.customer.ID)

	pending, err := f.store.Outbox().ListPending(ctx, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, pending).Length(1).Required()
	closed, err := events.DecodeClosedEvent(pending[0])
	gt.NoError(t, err).Required()
	gt.Value(t, closed.SurveyID).Equal(survey.ID)
	gt.Value(t, closed.LastHolderID).Equal(f.h1.ID)

	t.Run("closing again is rejected", func(t *testing.T) {
		_, err := f.svc.Close(ctx, id, f.h1.ID)
		hasCode(t, err, apperrors.CodeInvalidTransition)

		pending, err := f.store.Outbox().ListPending(ctx, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, pending).Length(1)
	})

	t.Run("redelivery does not create a second survey", func(t *testing.T) {
		pub := service.NewSurveyConfirmingPublisher(f.store.Surveys(), events.NewLogPublisher(nil))
		gt.NoError(t, pub.Publish(ctx, pending[0])).Required()
		gt.NoError(t, pub.Publish(ctx, pending[0])).Required()

		again, created, err := f.store.Surveys().CreateForTicket(ctx, id, f.h1.ID, f.customer.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, created).False()
		gt.Value(t, again.ID).Equal(survey.ID)
	})
}

func TestReturn_StepsBackOneLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	area := f.areaX.ID

	id := f.open(t)

	t.Run("OPEN has nowhere to go", func(t *testing.T) {
		_, err := f.svc.Return(ctx, id, f.front.ID, "wrong queue")
		hasCode(t, err, apperrors.CodeInvalidTransition)
	})

	_, err := f.svc.Escalate(ctx, id, &area)
	gt.NoError(t, err).Required()
	_, err = f.svc.Derive(ctx, id, f.external.ID)
	gt.NoError(t, err).Required()

	t.Run("DERIVED needs a backoffice receiver", func(t *testing.T) {
		_, err := f.svc.Return(ctx, id, f.front.ID, "not ours")
		hasCode(t, err, apperrors.CodeValidation)
	})

	t.Run("reason is required", func(t *testing.T) {
		_, err := f.svc.Return(ctx, id, f.h2.ID, "  ")
		hasCode(t, err, apperrors.CodeValidation)
	})

	res, err := f.svc.Return(ctx, id, f.h2.ID, "not ours")
	gt.NoError(t, err).Required()
	gt.Value(t, res.NewState).Equal(domain.TicketStateEscalated)

	history, err := f.svc.History(ctx, id)
	gt.NoError(t, err).Required()
	gt.Value(t, *history[0].HolderID).Equal(f.h2.ID)
	gt.Value(t, history[0].Note).Equal("not ours")

	res, err = f.svc.Return(ctx, id, f.front.ID, "customer must call back")
	gt.NoError(t, err).Required()
	gt.Value(t, res.NewState).Equal(domain.TicketStateOpen)

	gt.Value(t, f.events.types()).Equal([]events.EventType{
		events.EventTicketCreated,
		events.EventTicketEscalated,
		events.EventTicketDerived,
		events.EventTicketReturned,
		events.EventTicketReturned,
	})
}

func TestRejectedOperationsChangeNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.open(t)
	empty := f.empty.ID
	missing := int64(404)

	before := f.snapshot(t, id)

	_, err := f.svc.Escalate(ctx, id, &empty)
	hasCode(t, err, apperrors.CodeNoAvailableHandler)
	_, err = f.svc.Escalate(ctx, id, &missing)
	hasCode(t, err, apperrors.CodeNotFound)
	_, err = f.svc.Derive(ctx, id, f.external.ID)
	hasCode(t, err, apperrors.CodeInvalidTransition)
	_, err = f.svc.Close(ctx, id, f.oversight.ID)
	hasCode(t, err, apperrors.CodeValidation)
	_, err = f.svc.Close(ctx, 999, f.front.ID)
	hasCode(t, err, apperrors.CodeNotFound)

	gt.Value(t, f.snapshot(t, id)).Equal(before)

	snap := f.metrics.Snapshot()
	gt.Value(t, snap.Operations["escalate|"+apperrors.CodeNoAvailableHandler]).Equal(int64(1))
	gt.Value(t, snap.Operations["create|ok"]).Equal(int64(1))
}

func TestRejectedOperationsChangeNothing_PastOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	area := f.areaX.ID

	escalated := f.open(t)
	_, err := f.svc.Escalate(ctx, escalated, &area)
	gt.NoError(t, err).Required()

	derived := f.open(t)
	_, err = f.svc.Escalate(ctx, derived, &area)
	gt.NoError(t, err).Required()
	_, err = f.svc.Derive(ctx, derived, f.external.ID)
	gt.NoError(t, err).Required()

	closed := f.open(t)
	_, err = f.svc.Close(ctx, closed, f.front.ID)
	gt.NoError(t, err).Required()

	testCases := []struct {
		name     string
		ticketID int64
		run      func(id int64) error
		code     string
	}{
		{"escalate ESCALATED", escalated, func(id int64) error {
			_, err := f.svc.Escalate(ctx, id, &area)
			return err
		}, apperrors.CodeInvalidTransition},
		{"derive ESCALATED to internal area", escalated, func(id int64) error {
			_, err := f.svc.Derive(ctx, id, f.areaX.ID)
			return err
		}, apperrors.CodeValidation},
		{"return ESCALATED to backoffice", escalated, func(id int64) error {
			_, err := f.svc.Return(ctx, id, f.h1.ID, "wrong level")
			return err
		}, apperrors.CodeValidation},
		{"close ESCALATED by oversight", escalated, func(id int64) error {
			_, err := f.svc.Close(ctx, id, f.oversight.ID)
			return err
		}, apperrors.CodeValidation},
		{"escalate DERIVED", derived, func(id int64) error {
			_, err := f.svc.Escalate(ctx, id, nil)
			return err
		}, apperrors.CodeInvalidTransition},
		{"derive DERIVED", derived, func(id int64) error {
			_, err := f.svc.Derive(ctx, id, f.external.ID)
			return err
		}, apperrors.CodeInvalidTransition},
		{"return DERIVED to frontline", derived, func(id int64) error {
			_, err := f.svc.Return(ctx, id, f.front.ID, "wrong level")
			return err
		}, apperrors.CodeValidation},
		{"escalate CLOSED", closed, func(id int64) error {
			_, err := f.svc.Escalate(ctx, id, &area)
			return err
		}, apperrors.CodeInvalidTransition},
		{"derive CLOSED", closed, func(id int64) error {
			_, err := f.svc.Derive(ctx, id, f.external.ID)
			return err
		}, apperrors.CodeInvalidTransition},
		{"return CLOSED", closed, func(id int64) error {
			_, err := f.svc.Return(ctx, id, f.front.ID, "reopen")
			return err
		}, apperrors.CodeInvalidTransition},
		{"close CLOSED", closed, func(id int64) error {
			_, err := f.svc.Close(ctx, id, f.front.ID)
			return err
		}, apperrors.CodeInvalidTransition},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			before := f.snapshot(t, tc.ticketID)
			published := len(f.events.types())

			hasCode(t, tc.run(tc.ticketID), tc.code)

			gt.Value(t, f.snapshot(t, tc.ticketID)).Equal(before)
			gt.Array(t, f.events.types()).Length(published)
		})
	}
}

func TestReturn_RespectsReceiverCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	area := f.areaX.ID

	narrow := &domain.Area{Name: "claims"}
	gt.NoError(t, f.store.Areas().Create(ctx, narrow)).Required()
	capped := &domain.Employee{
		Name: "Capped", Email: "capped@example.com", Role: domain.RoleBackoffice,
		AreaIDs: []int64{narrow.ID}, Capacity: 1, Active: true,
	}
	gt.NoError(t, f.store.Employees().Create(ctx, capped)).Required()

	held := f.open(t)
	_, err := f.svc.Escalate(ctx, held, &narrow.ID)
	gt.NoError(t, err).Required()

	id := f.open(t)
	_, err = f.svc.Escalate(ctx, id, &area)
	gt.NoError(t, err).Required()
	_, err = f.svc.Derive(ctx, id, f.external.ID)
	gt.NoError(t, err).Required()

	before := f.snapshot(t, id)
	_, err = f.svc.Return(ctx, id, capped.ID, "back to claims")
	hasCode(t, err, apperrors.CodeNoAvailableHandler)
	gt.Value(t, f.snapshot(t, id)).Equal(before)

	open, err := f.store.Assignments().OpenCount(ctx, capped.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, open).Equal(1)

	t.Run("accepted once the handler has room", func(t *testing.T) {
		_, err := f.svc.Close(ctx, held, capped.ID)
		gt.NoError(t, err).Required()

		res, err := f.svc.Return(ctx, id, capped.ID, "back to claims")
		gt.NoError(t, err).Required()
		gt.Value(t, res.NewState).Equal(domain.TicketStateEscalated)
	})
}

func TestEvents_CarryTheActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	area := f.areaX.ID
	id := f.open(t)

	_, err := f.svc.Escalate(service.WithActor(ctx, f.front.ID), id, &area)
	gt.NoError(t, err).Required()
	_, err = f.svc.Derive(service.WithActor(ctx, f.h2.ID), id, f.external.ID)
	gt.NoError(t, err).Required()
	_, err = f.svc.Close(ctx, id, f.h3.ID)
	gt.NoError(t, err).Required()

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	gt.Array(t, f.events.got).Length(4).Required()
	gt.Value(t, f.events.got[1].ActorID).Equal(f.front.ID)
	gt.Value(t, f.events.got[2].ActorID).Equal(f.h2.ID)
	// Close falls back to the closing holder.
	gt.Value(t, f.events.got[3].ActorID).Equal(f.h3.ID)
}

// racingStore lets another writer commit between the snapshot read and the
// transaction of the operation under test.
type racingStore struct {
	*memory.Store
	once      sync.Once
	interfere func()
}

func (s *racingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) error {
	s.once.Do(s.interfere)
	return s.Store.WithinTx(ctx, fn)
}

func TestEscalate_ConcurrentWriterWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	area := f.areaX.ID
	id := f.open(t)

	racing := &racingStore{Store: f.store, interfere: func() {
		_, err := f.svc.Escalate(ctx, id, &area)
		gt.NoError(t, err).Required()
	}}
	loser := service.NewLifecycleService(service.LifecycleDependencies{Store: racing})

	_, err := loser.Escalate(ctx, id, &area)
	hasCode(t, err, apperrors.CodeConcurrency)

	history, err := f.svc.VerifyHistory(ctx, id)
	gt.NoError(t, err).Required()
	gt.Array(t, history).Length(2)
}

func TestConcurrentTransitionsKeepOneActiveRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	area := f.areaX.ID
	id := f.open(t)

	const workers = 8
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		escalations int
	)
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.svc.Escalate(ctx, id, &area)
				if err == nil {
					mu.Lock()
					escalations++
					mu.Unlock()
				}
			} else {
				_, err = f.svc.Close(ctx, id, f.front.ID)
			}
			if err == nil {
				return
			}
			code := apperrors.ToDomainError(err).Code
			if code != apperrors.CodeConcurrency && code != apperrors.CodeInvalidTransition {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	history, err := f.svc.VerifyHistory(ctx, id)
	gt.NoError(t, err).Required()
	gt.Bool(t, escalations <= 1).True()
	gt.Array(t, history).Length(escalations + 1)

	ticket, err := f.store.Tickets().GetByID(ctx, id)
	gt.NoError(t, err).Required()
	want := 1
	if ticket.State == domain.TicketStateClosed {
		want = 0
	}
	gt.Number(t, countActive(history)).Equal(want)
}

func countActive(history []domain.Assignment) int {
	n := 0
	for _, a := range history {
		if a.Active() {
			n++
		}
	}
	return n
}

func TestSingleActiveRecordAcrossSequences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	area := f.areaX.ID

	type step func(id int64) error
	escalate := func(id int64) error { _, err := f.svc.Escalate(ctx, id, &area); return err }
	escalateGlobal := func(id int64) error { _, err := f.svc.Escalate(ctx, id, nil); return err }
	derive := func(id int64) error { _, err := f.svc.Derive(ctx, id, f.external.ID); return err }
	toBackoffice := func(id int64) error { _, err := f.svc.Return(ctx, id, f.h2.ID, "back"); return err }
	toFrontline := func(id int64) error { _, err := f.svc.Return(ctx, id, f.front.ID, "back"); return err }
	closeBy := func(id int64) error { _, err := f.svc.Close(ctx, id, f.front.ID); return err }

	sequences := map[string][]step{
		"escalate close":             {escalate, closeBy},
		"full round trip":            {escalate, derive, toBackoffice, toFrontline, escalateGlobal},
		"derive and close":           {escalateGlobal, derive, closeBy},
		"bounce twice":               {escalate, toFrontline, escalate, toFrontline},
		"derive return derive close": {escalate, derive, toBackoffice, derive, closeBy},
	}
	for name, steps := range sequences {
		t.Run(name, func(t *testing.T) {
			id := f.open(t)
			records := 1
			for _, s := range steps {
				gt.NoError(t, s(id)).Required()

				ticket, err := f.store.Tickets().GetByID(ctx, id)
				gt.NoError(t, err).Required()
				gt.NoError(t, ticket.CheckInvariants())
				want := 1
				if ticket.State == domain.TicketStateClosed {
					want = 0
				} else {
					records++
				}

				history, err := f.svc.VerifyHistory(ctx, id)
				gt.NoError(t, err).Required()
				gt.Array(t, history).Length(records)
				gt.Number(t, countActive(history)).Equal(want)
			}
		})
	}
}

type tamperedStore struct {
	*memory.Store
}

func (s tamperedStore) Assignments() repository.AssignmentRepository {
	return tamperedAssignments{s.Store.Assignments()}
}

type tamperedAssignments struct {
	repository.AssignmentRepository
}

func (r tamperedAssignments) ListByTicket(ctx context.Context, ticketID int64) ([]domain.Assignment, error) {
	records, err := r.AssignmentRepository.ListByTicket(ctx, ticketID)
	if len(records) > 0 {
		records[0].Note = "rewritten"
	}
	return records, err
}

func TestVerifyHistory_DetectsRewrittenRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.open(t)
	_, err := f.svc.Escalate(ctx, id, nil)
	gt.NoError(t, err).Required()

	_, err = f.svc.VerifyHistory(ctx, id)
	gt.NoError(t, err).Required()

	audited := service.NewLifecycleService(service.LifecycleDependencies{Store: tamperedStore{f.store}})
	_, err = audited.VerifyHistory(ctx, id)
	hasCode(t, err, apperrors.CodeChainCorrupted)

	t.Run("plain history still reads", func(t *testing.T) {
		history, err := audited.History(ctx, id)
		gt.NoError(t, err).Required()
		gt.Array(t, history).Length(2)
	})
}
