package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

type assignmentRepository struct {
	v views
}

func (r *assignmentRepository) Insert(ctx context.Context, a *domain.Assignment) error {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()
	st := r.v.db()

	if _, ok := st.tickets[a.TicketID]; !ok {
		return repository.ErrNotFound
	}
	for _, existing := range st.assignments {
		if existing.TicketID != a.TicketID {
			continue
		}
		switch {
		case a.EndedAt == nil && existing.EndedAt == nil:
			return repository.ErrStaleWrite
		case a.ParentID == nil && existing.ParentID == nil:
			return repository.ErrStaleWrite
		case a.ParentID != nil && existing.ParentID != nil && *a.ParentID == *existing.ParentID:
			return repository.ErrStaleWrite
		}
	}

	st.seq.assignment++
	a.ID = st.seq.assignment
	st.assignments[a.ID] = *a
	return nil
}

func (r *assignmentRepository) End(ctx context.Context, assignmentID int64, endedAt time.Time) error {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()
	st := r.v.db()

	a, ok := st.assignments[assignmentID]
	if !ok || a.EndedAt != nil {
		return repository.ErrStaleWrite
	}
	a.EndedAt = &endedAt
	st.assignments[assignmentID] = a
	return nil
}

func (r *assignmentRepository) GetActive(ctx context.Context, ticketID int64) (*domain.Assignment, error) {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()

	for _, a := range r.v.db().assignments {
		if a.TicketID == ticketID && a.EndedAt == nil {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *assignmentRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.Assignment, error) {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()

	var result []domain.Assignment
	for _, a := range r.v.db().assignments {
		if a.TicketID == ticketID {
			result = append(result, a)
		}
	}
	slices.SortFunc(result, func(x, y domain.Assignment) int { return cmp.Compare(x.ID, y.ID) })
	return result, nil
}

// LockSelection is a no-op: transactions on this store are already serialized.
func (r *assignmentRepository) LockSelection(ctx context.Context) error {
	return ctx.Err()
}

func (r *assignmentRepository) CandidateLoads(ctx context.Context, areaID *int64) ([]domain.EmployeeLoad, error) {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()
	st := r.v.db()

	open := openCounts(st)
	var result []domain.EmployeeLoad
	for _, e := range st.employees {
		if e.Role != domain.RoleBackoffice || !e.Active || !e.ServesArea(areaID) {
			continue
		}
		result = append(result, domain.EmployeeLoad{Employee: e, Open: open[e.ID]})
	}
	slices.SortFunc(result, func(x, y domain.EmployeeLoad) int { return cmp.Compare(x.Employee.ID, y.Employee.ID) })
	return result, nil
}

func (r *assignmentRepository) OpenCount(ctx context.Context, employeeID int64) (int, error) {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()

	return openCounts(r.v.db())[employeeID], nil
}

func openCounts(st *state) map[int64]int {
	counts := make(map[int64]int)
	for _, a := range st.assignments {
		if a.EndedAt == nil && a.HolderID != nil {
			counts[*a.HolderID]++
		}
	}
	return counts
}
