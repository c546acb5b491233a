package memory

import (
	"context"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

type surveyRepository struct {
	v views
}

func (r *surveyRepository) CreateForTicket(ctx context.Context, ticketID, handlerID, customerID int64) (*domain.Survey, bool, error) {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()
	st := r.v.db()

	if existing, ok := st.surveys[ticketID]; ok {
		return &existing, false, nil
	}
	st.seq.survey++
	survey := domain.Survey{
		ID:         st.seq.survey,
		TicketID:   ticketID,
		HandlerID:  handlerID,
		CustomerID: customerID,
		CreatedAt:  time.Now().UTC(),
	}
	st.surveys[ticketID] = survey
	return &survey, true, nil
}

func (r *surveyRepository) GetByTicket(ctx context.Context, ticketID int64) (*domain.Survey, error) {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()

	survey, ok := r.v.db().surveys[ticketID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &survey, nil
}
