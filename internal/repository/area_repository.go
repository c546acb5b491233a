package repository

import (
	"context"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// AreaRepository manages department persistence.
type AreaRepository interface {
	Create(ctx context.Context, area *domain.Area) error
	GetByID(ctx context.Context, id int64) (*domain.Area, error)
}

type areaRepository struct {
	db DBTX
}

func (r *areaRepository) Create(ctx context.Context, area *domain.Area) error {
	const query = `
        INSERT INTO areas (name, external)
        VALUES ($1,$2)
        RETURNING id`
	return r.db.QueryRow(ctx, query, area.Name, area.External).Scan(&area.ID)
}

func (r *areaRepository) GetByID(ctx context.Context, id int64) (*domain.Area, error) {
	const query = `SELECT id, name, external FROM areas WHERE id=$1`
	var area domain.Area
	if err := r.db.QueryRow(ctx, query, id).Scan(&area.ID, &area.Name, &area.External); err != nil {
		return nil, notFound(err)
	}
	return &area, nil
}
