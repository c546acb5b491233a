package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// ClosureNotifier reacts to a ticket closing: it creates the satisfaction
// survey for the last individual holder and stages a durable ClosedEvent in
// the outbox, both inside the closing transaction.
type ClosureNotifier struct {
	chain *AssignmentChain
	newID func() string
}

func NewClosureNotifier(chain *AssignmentChain) *ClosureNotifier {
	return &ClosureNotifier{chain: chain, newID: uuid.NewString}
}

// Stage must run in the same transaction that marks the ticket CLOSED.
func (n *ClosureNotifier) Stage(ctx context.Context, tx repository.Repositories, ticket *domain.Ticket) (*events.ClosedEvent, error) {
	history, err := n.chain.History(ctx, tx.Assignments(), ticket.ID)
	if err != nil {
		return nil, err
	}
	handlerID, ok := lastHolder(history)
	if !ok {
		return nil, corrupted(ticket.ID, "no individual holder in custody chain")
	}

	survey, _, err := tx.Surveys().CreateForTicket(ctx, ticket.ID, handlerID, ticket.CustomerID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	ev := &events.ClosedEvent{
		TicketID:     ticket.ID,
		CustomerID:   ticket.CustomerID,
		LastHolderID: handlerID,
		SurveyID:     survey.ID,
	}
	if ticket.ClosedBy != nil {
		ev.ClosedBy = *ticket.ClosedBy
	}
	if ticket.ClosedAt != nil {
		ev.ClosedAt = *ticket.ClosedAt
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	msg := &domain.OutboxMessage{
		ID:          n.newID(),
		EventType:   events.OutboxTicketClosed,
		AggregateID: ticket.ID,
		Payload:     payload,
		CreatedAt:   ev.ClosedAt,
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if err := tx.Outbox().Insert(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ev, nil
}

// SurveyConfirmingPublisher stands in for the downstream survey consumer on
// local runs: it re-applies survey creation for each delivered closure, which
// is a no-op on redelivery, before handing the message to next.
type SurveyConfirmingPublisher struct {
	surveys repository.SurveyRepository
	next    events.Publisher
}

func NewSurveyConfirmingPublisher(surveys repository.SurveyRepository, next events.Publisher) *SurveyConfirmingPublisher {
	return &SurveyConfirmingPublisher{surveys: surveys, next: next}
}

func (p *SurveyConfirmingPublisher) Name() string { return p.next.Name() }

func (p *SurveyConfirmingPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.EventType == events.OutboxTicketClosed {
		ev, err := events.DecodeClosedEvent(msg)
		if err != nil {
			return err
		}
		if _, _, err := p.surveys.CreateForTicket(ctx, ev.TicketID, ev.LastHolderID, ev.CustomerID); err != nil {
			return err
		}
	}
	return p.next.Publish(ctx, msg)
}
