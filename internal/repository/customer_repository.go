package repository

import (
	"context"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// CustomerRepository backs the customer directory lookup.
type CustomerRepository interface {
	Create(ctx context.Context, customer *domain.Customer) error
	GetByID(ctx context.Context, id int64) (*domain.Customer, error)
}

type customerRepository struct {
	db DBTX
}

func (r *customerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	const query = `
        INSERT INTO customers (name, email)
        VALUES ($1,$2)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query, customer.Name, customer.Email).Scan(&customer.ID, &customer.CreatedAt)
}

func (r *customerRepository) GetByID(ctx context.Context, id int64) (*domain.Customer, error) {
	const query = `SELECT id, name, email, created_at FROM customers WHERE id=$1`
	var customer domain.Customer
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&customer.ID,
		&customer.Name,
		&customer.Email,
		&customer.CreatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &customer, nil
}
