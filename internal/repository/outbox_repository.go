package repository

import (
	"context"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// OutboxRepository persists events awaiting delivery.
type OutboxRepository interface {
	Insert(ctx context.Context, msg *domain.OutboxMessage) error
	// ListPending returns undelivered messages, oldest first.
	ListPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

type outboxRepository struct {
	db DBTX
}

func (r *outboxRepository) Insert(ctx context.Context, msg *domain.OutboxMessage) error {
	const query = `
        INSERT INTO outbox_events (id, event_type, aggregate_id, payload, created_at)
        VALUES ($1,$2,$3,$4,$5)`
	_, err := r.db.Exec(ctx, query, msg.ID, msg.EventType, msg.AggregateID, msg.Payload, msg.CreatedAt)
	return err
}

func (r *outboxRepository) ListPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT id, event_type, aggregate_id, payload, created_at, published_at, attempts, last_error
        FROM outbox_events WHERE published_at IS NULL
        ORDER BY created_at ASC LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.OutboxMessage
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.EventType,
			&msg.AggregateID,
			&msg.Payload,
			&msg.CreatedAt,
			&msg.PublishedAt,
			&msg.Attempts,
			&msg.LastError,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id string, at time.Time) error {
	cmd, err := r.db.Exec(ctx,
		`UPDATE outbox_events SET published_at=$1, attempts=attempts+1, last_error='' WHERE id=$2`, at, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	cmd, err := r.db.Exec(ctx,
		`UPDATE outbox_events SET attempts=attempts+1, last_error=$1 WHERE id=$2 AND published_at IS NULL`, reason, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
