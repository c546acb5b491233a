package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// EmployeeRepository handles persistence for employees. It backs the
// employee directory consumed by the lifecycle service.
type EmployeeRepository interface {
	Create(ctx context.Context, employee *domain.Employee) error
	GetByID(ctx context.Context, id int64) (*domain.Employee, error)
	GetByEmail(ctx context.Context, email string) (*domain.Employee, error)
	List(ctx context.Context, filter EmployeeFilter) ([]domain.Employee, error)
}

// EmployeeFilter defines query params for employee listing.
type EmployeeFilter struct {
	Role   *domain.EmployeeRole
	AreaID *int64
	Active *bool
	Limit  int
	Offset int
}

type employeeRepository struct {
	db DBTX
}

const employeeSelect = `
        SELECT e.id, e.name, e.email, e.password_hash, e.role, e.channel, e.capacity, e.active_flag, e.created_at, e.updated_at,
               COALESCE(ARRAY(SELECT ea.area_id FROM employee_areas ea WHERE ea.employee_id = e.id ORDER BY ea.area_id), '{}')
        FROM employees e`

func (r *employeeRepository) Create(ctx context.Context, employee *domain.Employee) error {
	const query = `
        INSERT INTO employees (name, email, password_hash, role, channel, capacity, active_flag)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`

	if err := r.db.QueryRow(ctx, query,
		employee.Name,
		employee.Email,
		employee.PasswordHash,
		employee.Role,
		employee.Channel,
		employee.Capacity,
		employee.Active,
	).Scan(&employee.ID, &employee.CreatedAt, &employee.UpdatedAt); err != nil {
		return err
	}

	for _, areaID := range employee.AreaIDs {
		if _, err := r.db.Exec(ctx,
			`INSERT INTO employee_areas (employee_id, area_id) VALUES ($1,$2)`, employee.ID, areaID); err != nil {
			return fmt.Errorf("bind employee %d to area %d: %w", employee.ID, areaID, err)
		}
	}
	return nil
}

func (r *employeeRepository) GetByID(ctx context.Context, id int64) (*domain.Employee, error) {
	employee, err := scanEmployee(r.db.QueryRow(ctx, employeeSelect+` WHERE e.id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return employee, nil
}

func (r *employeeRepository) GetByEmail(ctx context.Context, email string) (*domain.Employee, error) {
	employee, err := scanEmployee(r.db.QueryRow(ctx, employeeSelect+` WHERE e.email=$1`, email))
	if err != nil {
		return nil, notFound(err)
	}
	return employee, nil
}

func (r *employeeRepository) List(ctx context.Context, filter EmployeeFilter) ([]domain.Employee, error) {
	query := employeeSelect
	args := []any{}
	clauses := []string{}

	if filter.Role != nil {
		args = append(args, *filter.Role)
		clauses = append(clauses, fmt.Sprintf("e.role=$%d", len(args)))
	}
	if filter.AreaID != nil {
		args = append(args, *filter.AreaID)
		clauses = append(clauses, fmt.Sprintf("EXISTS (SELECT 1 FROM employee_areas ea WHERE ea.employee_id = e.id AND ea.area_id=$%d)", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("e.active_flag=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	query += " ORDER BY e.id ASC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Employee
	for rows.Next() {
		employee, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *employee)
	}
	return result, rows.Err()
}

func scanEmployee(row pgx.Row) (*domain.Employee, error) {
	var employee domain.Employee
	if err := row.Scan(
		&employee.ID,
		&employee.Name,
		&employee.Email,
		&employee.PasswordHash,
		&employee.Role,
		&employee.Channel,
		&employee.Capacity,
		&employee.Active,
		&employee.CreatedAt,
		&employee.UpdatedAt,
		&employee.AreaIDs,
	); err != nil {
		return nil, err
	}
	return &employee, nil
}
