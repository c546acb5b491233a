package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// LoadReader derives handler load from open assignment rows.
type LoadReader interface {
	// CandidateLoads returns every active backoffice handler serving areaID
	// (all of them for a nil area) with its open assignment count, ordered
	// by employee id.
	CandidateLoads(ctx context.Context, areaID *int64) ([]domain.EmployeeLoad, error)
}

// AssignmentRepository stores custody records. Rows are append-only; End is
// the only mutation.
type AssignmentRepository interface {
	LoadReader
	Insert(ctx context.Context, assignment *domain.Assignment) error
	// End sets ended_at on an active record. It returns ErrStaleWrite when the
	// record is already ended.
	End(ctx context.Context, assignmentID int64, endedAt time.Time) error
	GetActive(ctx context.Context, ticketID int64) (*domain.Assignment, error)
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.Assignment, error)
	// LockSelection serializes every load read that precedes handing a
	// ticket to a backoffice handler, until the surrounding transaction ends.
	// Candidate pools overlap, so there is one lock for all of them.
	LockSelection(ctx context.Context) error
	OpenCount(ctx context.Context, employeeID int64) (int, error)
}

type assignmentRepository struct {
	db DBTX
}

const assignmentColumns = `id, ticket_id, holder_id, area_id, started_at, ended_at, parent_id, note, digest`

func (r *assignmentRepository) Insert(ctx context.Context, a *domain.Assignment) error {
	const query = `
        INSERT INTO assignments (ticket_id, holder_id, area_id, started_at, parent_id, note, digest)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	err := r.db.QueryRow(ctx, query,
		a.TicketID,
		a.HolderID,
		a.AreaID,
		a.StartedAt,
		a.ParentID,
		a.Note,
		a.Digest,
	).Scan(&a.ID)
	// A lost race surfaces as one of the chain uniqueness constraints.
	for _, constraint := range []string{activeAssignmentIndex, rootAssignmentIndex, parentAssignmentKey} {
		if isConstraintViolation(err, pgUniqueViolation, constraint) {
			return ErrStaleWrite
		}
	}
	return err
}

func (r *assignmentRepository) End(ctx context.Context, assignmentID int64, endedAt time.Time) error {
	const query = `UPDATE assignments SET ended_at=$1 WHERE id=$2 AND ended_at IS NULL`
	cmd, err := r.db.Exec(ctx, query, endedAt, assignmentID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleWrite
	}
	return nil
}

func (r *assignmentRepository) GetActive(ctx context.Context, ticketID int64) (*domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE ticket_id=$1 AND ended_at IS NULL`
	a, err := scanAssignment(r.db.QueryRow(ctx, query, ticketID))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (r *assignmentRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE ticket_id=$1 ORDER BY id ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// selectionLockKey names the advisory lock taken by LockSelection.
const selectionLockKey = "assignment-selection"

func (r *assignmentRepository) LockSelection(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, selectionLockKey)
	return err
}

func (r *assignmentRepository) CandidateLoads(ctx context.Context, areaID *int64) ([]domain.EmployeeLoad, error) {
	const query = `
        SELECT e.id, e.name, e.email, e.role, e.channel, e.capacity, e.active_flag, e.created_at, e.updated_at,
               COALESCE(ARRAY(SELECT ea.area_id FROM employee_areas ea WHERE ea.employee_id = e.id ORDER BY ea.area_id), '{}'),
               (SELECT COUNT(*) FROM assignments a WHERE a.holder_id = e.id AND a.ended_at IS NULL)
        FROM employees e
        WHERE e.role = 'BACKOFFICE' AND e.active_flag = TRUE
          AND ($1::bigint IS NULL OR EXISTS (
                SELECT 1 FROM employee_areas ea WHERE ea.employee_id = e.id AND ea.area_id = $1))
        ORDER BY e.id ASC`
	rows, err := r.db.Query(ctx, query, areaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EmployeeLoad
	for rows.Next() {
		var load domain.EmployeeLoad
		if err := rows.Scan(
			&load.Employee.ID,
			&load.Employee.Name,
			&load.Employee.Email,
			&load.Employee.Role,
			&load.Employee.Channel,
			&load.Employee.Capacity,
			&load.Employee.Active,
			&load.Employee.CreatedAt,
			&load.Employee.UpdatedAt,
			&load.Employee.AreaIDs,
			&load.Open,
		); err != nil {
			return nil, err
		}
		result = append(result, load)
	}
	return result, rows.Err()
}

func (r *assignmentRepository) OpenCount(ctx context.Context, employeeID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM assignments WHERE holder_id=$1 AND ended_at IS NULL`, employeeID).Scan(&count)
	return count, err
}

func scanAssignment(row pgx.Row) (*domain.Assignment, error) {
	var a domain.Assignment
	if err := row.Scan(
		&a.ID,
		&a.TicketID,
		&a.HolderID,
		&a.AreaID,
		&a.StartedAt,
		&a.EndedAt,
		&a.ParentID,
		&a.Note,
		&a.Digest,
	); err != nil {
		return nil, err
	}
	return &a, nil
}
