package repository

import (
	"context"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// SurveyRepository creates closure surveys. Creation is idempotent on the
// ticket id so redelivered closure events never produce a second survey.
type SurveyRepository interface {
	// CreateForTicket returns the survey for ticketID, creating it if absent.
	// created reports whether this call inserted the row.
	CreateForTicket(ctx context.Context, ticketID, handlerID, customerID int64) (survey *domain.Survey, created bool, err error)
	GetByTicket(ctx context.Context, ticketID int64) (*domain.Survey, error)
}

type surveyRepository struct {
	db DBTX
}

func (r *surveyRepository) CreateForTicket(ctx context.Context, ticketID, handlerID, customerID int64) (*domain.Survey, bool, error) {
	const query = `
        INSERT INTO surveys (ticket_id, handler_id, customer_id)
        VALUES ($1,$2,$3)
        ON CONFLICT (ticket_id) DO NOTHING
        RETURNING id, ticket_id, handler_id, customer_id, created_at`
	var survey domain.Survey
	err := r.db.QueryRow(ctx, query, ticketID, handlerID, customerID).Scan(
		&survey.ID,
		&survey.TicketID,
		&survey.HandlerID,
		&survey.CustomerID,
		&survey.CreatedAt,
	)
	if err == nil {
		return &survey, true, nil
	}
	if notFound(err) != ErrNotFound {
		return nil, false, err
	}
	existing, err := r.GetByTicket(ctx, ticketID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *surveyRepository) GetByTicket(ctx context.Context, ticketID int64) (*domain.Survey, error) {
	const query = `SELECT id, ticket_id, handler_id, customer_id, created_at FROM surveys WHERE ticket_id=$1`
	var survey domain.Survey
	if err := r.db.QueryRow(ctx, query, ticketID).Scan(
		&survey.ID,
		&survey.TicketID,
		&survey.HandlerID,
		&survey.CustomerID,
		&survey.CreatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &survey, nil
}
