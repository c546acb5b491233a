package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

type ticketRepository struct {
	v views
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()
	st := r.v.db()

	if _, ok := st.customers[ticket.CustomerID]; !ok {
		return repository.ErrNotFound
	}
	st.seq.ticket++
	ticket.ID = st.seq.ticket
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	st.tickets[ticket.ID] = *ticket
	return nil
}

func (r *ticketRepository) UpdateState(ctx context.Context, ticket *domain.Ticket, expected domain.TicketState) error {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()
	st := r.v.db()

	stored, ok := st.tickets[ticket.ID]
	if !ok || stored.State != expected {
		return repository.ErrStaleWrite
	}
	stored.State = ticket.State
	stored.ClosedAt = ticket.ClosedAt
	stored.ClosedBy = ticket.ClosedBy
	st.tickets[ticket.ID] = stored
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()

	ticket, ok := r.v.db().tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()

	var matched []domain.Ticket
	for _, ticket := range r.v.db().tickets {
		if matchTicket(ticket, filter) {
			matched = append(matched, ticket)
		}
	}
	slices.SortFunc(matched, func(a, b domain.Ticket) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	limit, offset := filter.NormalizedPage()
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func matchTicket(t domain.Ticket, f repository.TicketFilter) bool {
	if len(f.States) > 0 && !slices.Contains(f.States, t.State) {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, t.Type) {
		return false
	}
	if f.Channel != nil && t.Channel != *f.Channel {
		return false
	}
	if f.CustomerID != nil && t.CustomerID != *f.CustomerID {
		return false
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if term != "" &&
			!strings.Contains(strings.ToLower(t.Subject), term) &&
			!strings.Contains(strings.ToLower(t.Description), term) {
			return false
		}
	}
	return true
}
