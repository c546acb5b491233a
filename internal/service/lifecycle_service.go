package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// LifecycleService coordinates ticket state changes with the custody chain.
// Each mutating operation is one transaction: validation and selection
// failures leave no rows behind.
type LifecycleService struct {
	store      repository.Store
	selector   Selector
	chain      *AssignmentChain
	notifier   *ClosureNotifier
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	Store      repository.Store
	Selector   Selector
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Type        domain.TicketType
	Channel     domain.Channel
	Subject     string
	Description string
	RequesterID int64
	CustomerID  int64
	MotiveID    *int64
}

// CreateResult is returned by Create.
type CreateResult struct {
	TicketID int64              `json:"ticket_id"`
	State    domain.TicketState `json:"state"`
}

// TransitionResult is returned by every operation on an existing ticket.
type TransitionResult struct {
	TicketID      int64              `json:"ticket_id"`
	PreviousState domain.TicketState `json:"previous_state"`
	NewState      domain.TicketState `json:"new_state"`
}

type actorKey struct{}

// WithActor records the employee performing an operation. Lifecycle events
// published under ctx carry it as their ActorID.
func WithActor(ctx context.Context, employeeID int64) context.Context {
	return context.WithValue(ctx, actorKey{}, employeeID)
}

func actorFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(actorKey{}).(int64)
	return id
}

// TicketDetails is a ticket with its current custodian, if any.
type TicketDetails struct {
	Ticket domain.Ticket
	Active *domain.Assignment
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	selector := deps.Selector
	if selector == nil {
		selector = NewLeastLoadedSelector()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	chain := NewAssignmentChain(clock)
	return &LifecycleService{
		store:      deps.Store,
		selector:   selector,
		chain:      chain,
		notifier:   NewClosureNotifier(chain),
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clock,
	}
}

// Create opens a ticket held by its frontline requester.
func (s *LifecycleService) Create(ctx context.Context, input CreateTicketInput) (result CreateResult, err error) {
	defer func() { s.record("create", err) }()

	if err := validateCreate(input); err != nil {
		return CreateResult{}, err
	}
	requester, err := s.employee(ctx, input.RequesterID)
	if err != nil {
		return CreateResult{}, err
	}
	bound, ok := requester.BoundChannel()
	if !ok || bound != input.Channel {
		return CreateResult{}, apperrors.NewChannelMismatch(
			fmt.Sprintf("requester %d is not bound to channel %s", requester.ID, input.Channel),
			map[string]any{"requester_id": requester.ID, "channel": input.Channel, "bound_channel": bound},
		)
	}
	if !requester.CanHold() {
		return CreateResult{}, apperrors.NewValidationError("requester is inactive", map[string]any{"requester_id": requester.ID})
	}
	if _, err := s.store.Customers().GetByID(ctx, input.CustomerID); err != nil {
		return CreateResult{}, notFoundAs(err, "customer", map[string]any{"customer_id": input.CustomerID})
	}

	ticket := &domain.Ticket{
		Type:        input.Type,
		Channel:     input.Channel,
		State:       domain.TicketStateOpen,
		Subject:     input.Subject,
		Description: input.Description,
		CustomerID:  input.CustomerID,
		MotiveID:    input.MotiveID,
		CreatedAt:   s.now().UTC().Truncate(time.Microsecond),
	}
	ticket.NormalizeText()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		if err := tx.Tickets().Create(ctx, ticket); err != nil {
			return apperrors.MapError(err)
		}
		_, err := s.chain.OpenInitial(ctx, tx.Assignments(), ticket.ID, requester.ID)
		return err
	})
	if err != nil {
		return CreateResult{}, err
	}

	s.publish(ctx, events.EventTicketCreated, ticket.ID, requester.ID, events.TransitionPayload{
		NewState: domain.TicketStateOpen,
		HolderID: &requester.ID,
	})
	return CreateResult{TicketID: ticket.ID, State: domain.TicketStateOpen}, nil
}

// Escalate hands an OPEN ticket to the backoffice handler chosen by the
// selector for targetAreaID (nil selects from every backoffice handler).
func (s *LifecycleService) Escalate(ctx context.Context, ticketID int64, targetAreaID *int64) (result TransitionResult, err error) {
	defer func() { s.record("escalate", err) }()

	var holderID int64
	return s.transition(ctx, transitionPlan{
		ticketID: ticketID,
		event:    events.EventTicketEscalated,
		target: func(current domain.TicketState) (domain.TicketState, bool) {
			return domain.TicketStateEscalated, domain.CanEscalate(current)
		},
		validate: func(ctx context.Context, _ *domain.Ticket) error {
			if targetAreaID == nil {
				return nil
			}
			_, err := s.area(ctx, *targetAreaID)
			return err
		},
		apply: func(ctx context.Context, tx repository.Repositories, ticket *domain.Ticket, activeID int64) error {
			assignments := tx.Assignments()
			if err := assignments.LockSelection(ctx); err != nil {
				return apperrors.MapError(err)
			}
			selected, err := s.selector.SelectResponsible(ctx, assignments, targetAreaID)
			if err != nil {
				return apperrors.MapError(err)
			}
			holderID = selected
			_, err = s.chain.Supersede(ctx, assignments, ticket.ID, activeID, domain.HolderCustodian(selected), "")
			return err
		},
		payload: func(p *events.TransitionPayload) { p.HolderID = &holderID },
	})
}

// Derive hands an ESCALATED ticket to an external area.
func (s *LifecycleService) Derive(ctx context.Context, ticketID, areaID int64) (result TransitionResult, err error) {
	defer func() { s.record("derive", err) }()

	return s.transition(ctx, transitionPlan{
		ticketID: ticketID,
		event:    events.EventTicketDerived,
		target: func(current domain.TicketState) (domain.TicketState, bool) {
			return domain.TicketStateDerived, domain.CanDerive(current)
		},
		validate: func(ctx context.Context, _ *domain.Ticket) error {
			area, err := s.area(ctx, areaID)
			if err != nil {
				return err
			}
			if !area.External {
				return apperrors.NewValidationError("tickets can only be derived to an external area", map[string]any{"area_id": areaID})
			}
			return nil
		},
		apply: func(ctx context.Context, tx repository.Repositories, ticket *domain.Ticket, activeID int64) error {
			_, err := s.chain.Supersede(ctx, tx.Assignments(), ticket.ID, activeID, domain.AreaCustodian(areaID), "")
			return err
		},
		payload: func(p *events.TransitionPayload) { p.AreaID = &areaID },
	})
}

// Return steps a ticket exactly one level back down the escalation path and
// hands it to receivingHolderID.
func (s *LifecycleService) Return(ctx context.Context, ticketID, receivingHolderID int64, reason string) (result TransitionResult, err error) {
	defer func() { s.record("return", err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return TransitionResult{}, apperrors.NewValidationError("reason is required", nil)
	}
	var holder *domain.Employee
	return s.transition(ctx, transitionPlan{
		ticketID: ticketID,
		event:    events.EventTicketReturned,
		target:   domain.ReturnTarget,
		validate: func(ctx context.Context, ticket *domain.Ticket) error {
			var err error
			if holder, err = s.employee(ctx, receivingHolderID); err != nil {
				return err
			}
			target, _ := domain.ReturnTarget(ticket.State)
			return checkReceivingHolder(holder, target)
		},
		apply: func(ctx context.Context, tx repository.Repositories, ticket *domain.Ticket, activeID int64) error {
			assignments := tx.Assignments()
			if holder.Role == domain.RoleBackoffice {
				if err := checkReceiverCapacity(ctx, assignments, holder); err != nil {
					return err
				}
			}
			_, err := s.chain.Supersede(ctx, assignments, ticket.ID, activeID, domain.HolderCustodian(receivingHolderID), reason)
			return err
		},
		payload: func(p *events.TransitionPayload) {
			p.HolderID = &receivingHolderID
			p.Note = reason
		},
	})
}

// Close ends custody of a ticket and stages the closure notification in the
// same transaction.
func (s *LifecycleService) Close(ctx context.Context, ticketID, closingHolderID int64) (result TransitionResult, err error) {
	defer func() { s.record("close", err) }()

	return s.transition(ctx, transitionPlan{
		ticketID: ticketID,
		event:    events.EventTicketClosed,
		target: func(current domain.TicketState) (domain.TicketState, bool) {
			return domain.TicketStateClosed, domain.CanClose(current)
		},
		validate: func(ctx context.Context, _ *domain.Ticket) error {
			holder, err := s.employee(ctx, closingHolderID)
			if err != nil {
				return err
			}
			if !holder.CanHold() {
				return apperrors.NewValidationError("closing employee cannot hold tickets", map[string]any{"employee_id": closingHolderID})
			}
			return nil
		},
		apply: func(ctx context.Context, tx repository.Repositories, ticket *domain.Ticket, activeID int64) error {
			closed, err := s.chain.Close(ctx, tx.Assignments(), ticket.ID, activeID)
			if err != nil {
				return err
			}
			ticket.ClosedAt = closed.EndedAt
			ticket.ClosedBy = &closingHolderID
			return nil
		},
		afterUpdate: func(ctx context.Context, tx repository.Repositories, ticket *domain.Ticket) error {
			_, err := s.notifier.Stage(ctx, tx, ticket)
			return err
		},
		payload: func(p *events.TransitionPayload) { p.HolderID = &closingHolderID },
		actorID: closingHolderID,
	})
}

type transitionPlan struct {
	ticketID int64
	event    events.EventType
	// target returns the state to move to and whether the guard allows it.
	target      func(current domain.TicketState) (domain.TicketState, bool)
	validate    func(ctx context.Context, ticket *domain.Ticket) error
	apply       func(ctx context.Context, tx repository.Repositories, ticket *domain.Ticket, activeID int64) error
	afterUpdate func(ctx context.Context, tx repository.Repositories, ticket *domain.Ticket) error
	payload     func(p *events.TransitionPayload)
	// actorID is used when ctx carries no actor.
	actorID int64
}

// transition reads the version signature (state + active assignment id),
// validates outside the transaction and commits only if neither changed.
func (s *LifecycleService) transition(ctx context.Context, plan transitionPlan) (TransitionResult, error) {
	ticket, activeID, err := s.snapshot(ctx, plan.ticketID)
	if err != nil {
		return TransitionResult{}, err
	}
	previous := ticket.State
	next, ok := plan.target(previous)
	if !ok {
		return TransitionResult{}, invalidTransition(previous, next)
	}
	if plan.validate != nil {
		if err := plan.validate(ctx, ticket); err != nil {
			return TransitionResult{}, err
		}
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		working := *ticket
		if err := plan.apply(ctx, tx, &working, activeID); err != nil {
			return err
		}
		working.State = next
		if err := working.CheckInvariants(); err != nil {
			return apperrors.NewInternalError(err)
		}
		if err := tx.Tickets().UpdateState(ctx, &working, previous); err != nil {
			if errors.Is(err, repository.ErrStaleWrite) {
				return apperrors.NewConcurrencyConflict(map[string]any{"ticket_id": ticket.ID, "expected_state": previous})
			}
			return apperrors.MapError(err)
		}
		if plan.afterUpdate != nil {
			return plan.afterUpdate(ctx, tx, &working)
		}
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}

	payload := events.TransitionPayload{PreviousState: previous, NewState: next}
	if plan.payload != nil {
		plan.payload(&payload)
	}
	actor := actorFrom(ctx)
	if actor == 0 {
		actor = plan.actorID
	}
	s.publish(ctx, plan.event, ticket.ID, actor, payload)
	return TransitionResult{TicketID: ticket.ID, PreviousState: previous, NewState: next}, nil
}

// snapshot loads a ticket and the id of its active assignment (0 once closed).
func (s *LifecycleService) snapshot(ctx context.Context, ticketID int64) (*domain.Ticket, int64, error) {
	ticket, err := s.store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, 0, notFoundAs(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if ticket.State == domain.TicketStateClosed {
		return ticket, 0, nil
	}
	active, err := s.store.Assignments().GetActive(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, 0, apperrors.NewNoActiveAssignment(ticketID)
	}
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	return ticket, active.ID, nil
}

// Get returns a ticket and its current custodian.
func (s *LifecycleService) Get(ctx context.Context, ticketID int64) (*TicketDetails, error) {
	ticket, err := s.store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFoundAs(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	details := &TicketDetails{Ticket: *ticket}
	active, err := s.store.Assignments().GetActive(ctx, ticketID)
	switch {
	case err == nil:
		details.Active = active
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.MapError(err)
	}
	return details, nil
}

// List returns tickets matching filter, newest first.
func (s *LifecycleService) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.store.Tickets().List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// History returns the custody chain of a ticket, newest first.
func (s *LifecycleService) History(ctx context.Context, ticketID int64) ([]domain.Assignment, error) {
	if _, err := s.store.Tickets().GetByID(ctx, ticketID); err != nil {
		return nil, notFoundAs(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	return s.chain.History(ctx, s.store.Assignments(), ticketID)
}

// VerifyHistory returns the custody chain after checking its digests.
func (s *LifecycleService) VerifyHistory(ctx context.Context, ticketID int64) ([]domain.Assignment, error) {
	history, err := s.History(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.chain.Verify(ticketID, history); err != nil {
		return history, err
	}
	return history, nil
}

func (s *LifecycleService) employee(ctx context.Context, id int64) (*domain.Employee, error) {
	employee, err := s.store.Employees().GetByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "employee", map[string]any{"employee_id": id})
	}
	return employee, nil
}

func (s *LifecycleService) area(ctx context.Context, id int64) (*domain.Area, error) {
	area, err := s.store.Areas().GetByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "area", map[string]any{"area_id": id})
	}
	return area, nil
}

func (s *LifecycleService) publish(ctx context.Context, eventType events.EventType, ticketID, actorID int64, payload events.TransitionPayload) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		ActorID:   actorID,
		Timestamp: s.now().UTC(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("lifecycle event handler failed",
			zap.String("event_type", string(eventType)),
			zap.Int64("ticket_id", ticketID),
			zap.Error(err))
	}
}

func (s *LifecycleService) record(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperrors.ToDomainError(err).Code
	}
	s.metrics.RecordOperation(operation, outcome)
}

func validateCreate(input CreateTicketInput) error {
	problems := map[string]any{}
	if !input.Type.Valid() {
		problems["type"] = fmt.Sprintf("unknown ticket type %q", input.Type)
	}
	if !input.Channel.Valid() {
		problems["channel"] = fmt.Sprintf("unknown channel %q", input.Channel)
	}
	if strings.TrimSpace(input.Subject) == "" {
		problems["subject"] = "required"
	}
	if input.RequesterID <= 0 {
		problems["requester_id"] = "required"
	}
	if input.CustomerID <= 0 {
		problems["customer_id"] = "required"
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError("invalid ticket", problems)
	}
	return nil
}

// checkReceivingHolder ensures a returned ticket lands with a handler of the
// level it steps back to.
func checkReceivingHolder(holder *domain.Employee, target domain.TicketState) error {
	if !holder.CanHold() {
		return apperrors.NewValidationError("receiving employee cannot hold tickets", map[string]any{"employee_id": holder.ID})
	}
	want := domain.RoleFrontline
	if target == domain.TicketStateEscalated {
		want = domain.RoleBackoffice
	}
	if holder.Role != want {
		return apperrors.NewValidationError(
			fmt.Sprintf("a %s ticket must be returned to a %s handler", target, want),
			map[string]any{"employee_id": holder.ID, "role": holder.Role},
		)
	}
	return nil
}

// checkReceiverCapacity keeps a return from pushing a backoffice handler past
// the capacity selection enforces. The load read is serialized with selection.
func checkReceiverCapacity(ctx context.Context, assignments repository.AssignmentRepository, holder *domain.Employee) error {
	if err := assignments.LockSelection(ctx); err != nil {
		return apperrors.MapError(err)
	}
	open, err := assignments.OpenCount(ctx, holder.ID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !holder.HasCapacityFor(open) {
		return apperrors.NewNoAvailableHandler(map[string]any{
			"employee_id": holder.ID,
			"capacity":    holder.Capacity,
			"open":        open,
		})
	}
	return nil
}

func invalidTransition(current, target domain.TicketState) error {
	if target == "" {
		return apperrors.NewInvalidTransition(string(current), "RETURN",
			fmt.Sprintf("cannot return a ticket in state %s: only ESCALATED and DERIVED step back one level", current))
	}
	return apperrors.NewInvalidTransition(string(current), string(target), domain.TransitionErrorMessage(current, target))
}

func notFoundAs(err error, resource string, details map[string]any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, details)
	}
	return apperrors.MapError(err)
}
