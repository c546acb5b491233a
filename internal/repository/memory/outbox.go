package memory

import (
	"context"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

type outboxRepository struct {
	v views
}

func (r *outboxRepository) Insert(ctx context.Context, msg *domain.OutboxMessage) error {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()
	st := r.v.db()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	st.outbox = append(st.outbox, *msg)
	return nil
}

func (r *outboxRepository) ListPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	var result []domain.OutboxMessage
	for _, msg := range r.v.db().outbox {
		if msg.PublishedAt != nil {
			continue
		}
		result = append(result, msg)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id string, at time.Time) error {
	return r.update(id, func(msg *domain.OutboxMessage) {
		msg.PublishedAt = &at
		msg.Attempts++
		msg.LastError = ""
	})
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.update(id, func(msg *domain.OutboxMessage) {
		msg.Attempts++
		msg.LastError = reason
	})
}

func (r *outboxRepository) update(id string, fn func(*domain.OutboxMessage)) error {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()
	st := r.v.db()

	for i := range st.outbox {
		if st.outbox[i].ID == id && st.outbox[i].PublishedAt == nil {
			fn(&st.outbox[i])
			return nil
		}
	}
	return repository.ErrNotFound
}
