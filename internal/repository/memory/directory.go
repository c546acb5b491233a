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

type employeeRepository struct {
	v views
}

func (r *employeeRepository) Create(ctx context.Context, employee *domain.Employee) error {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()
	st := r.v.db()

	for _, areaID := range employee.AreaIDs {
		if _, ok := st.areas[areaID]; !ok {
			return repository.ErrNotFound
		}
	}
	now := time.Now().UTC()
	st.seq.employee++
	employee.ID = st.seq.employee
	employee.CreatedAt = now
	employee.UpdatedAt = now
	areaIDs := append([]int64(nil), employee.AreaIDs...)
	slices.Sort(areaIDs)
	employee.AreaIDs = areaIDs
	st.employees[employee.ID] = *employee
	return nil
}

func (r *employeeRepository) GetByID(ctx context.Context, id int64) (*domain.Employee, error) {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()

	employee, ok := r.v.db().employees[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &employee, nil
}

func (r *employeeRepository) GetByEmail(ctx context.Context, email string) (*domain.Employee, error) {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()

	for _, employee := range r.v.db().employees {
		if strings.EqualFold(employee.Email, email) {
			return &employee, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *employeeRepository) List(ctx context.Context, filter repository.EmployeeFilter) ([]domain.Employee, error) {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()

	var result []domain.Employee
	for _, e := range r.v.db().employees {
		if filter.Role != nil && e.Role != *filter.Role {
			continue
		}
		if filter.AreaID != nil && !slices.Contains(e.AreaIDs, *filter.AreaID) {
			continue
		}
		if filter.Active != nil && e.Active != *filter.Active {
			continue
		}
		result = append(result, e)
	}
	slices.SortFunc(result, func(a, b domain.Employee) int { return cmp.Compare(a.ID, b.ID) })

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := max(filter.Offset, 0)
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type areaRepository struct {
	v views
}

func (r *areaRepository) Create(ctx context.Context, area *domain.Area) error {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()
	st := r.v.db()

	st.seq.area++
	area.ID = st.seq.area
	st.areas[area.ID] = *area
	return nil
}

func (r *areaRepository) GetByID(ctx context.Context, id int64) (*domain.Area, error) {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()

	area, ok := r.v.db().areas[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &area, nil
}

type customerRepository struct {
	v views
}

func (r *customerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()
	st := r.v.db()

	st.seq.customer++
	customer.ID = st.seq.customer
	customer.CreatedAt = time.Now().UTC()
	st.customers[customer.ID] = *customer
	return nil
}

func (r *customerRepository) GetByID(ctx context.Context, id int64) (*domain.Customer, error) {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()

	customer, ok := r.v.db().customers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &customer, nil
}
