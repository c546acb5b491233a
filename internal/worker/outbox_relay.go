package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

// OutboxRelay drains undelivered outbox rows to a Publisher. A failed delivery
// is recorded on the row and retried on a later pass; it never reaches the
// operation that wrote the row.
type OutboxRelay struct {
	outbox    repository.OutboxRepository
	publisher events.Publisher
	logger    *zap.Logger
	metrics   *observability.Metrics
	interval  time.Duration
	batchSize int
	wake      chan struct{}
	now       func() time.Time
}

// OutboxRelayDependencies bundles relay collaborators.
type OutboxRelayDependencies struct {
	Outbox    repository.OutboxRepository
	Publisher events.Publisher
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Interval  time.Duration
	BatchSize int
}

func NewOutboxRelay(deps OutboxRelayDependencies) *OutboxRelay {
	interval := deps.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = 50
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxRelay{
		outbox:    deps.Outbox,
		publisher: deps.Publisher,
		logger:    logger.Named("outbox_relay"),
		metrics:   deps.Metrics,
		interval:  interval,
		batchSize: batch,
		wake:      make(chan struct{}, 1),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Nudge asks the relay to run a pass without waiting for the next tick.
func (r *OutboxRelay) Nudge() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started",
		zap.String("bus", r.publisher.Name()),
		zap.Duration("interval", r.interval))
	for {
		if _, err := r.DrainOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("outbox pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// DrainOnce publishes one batch of pending messages and returns how many
// were delivered.
func (r *OutboxRelay) DrainOnce(ctx context.Context) (int, error) {
	pending, err := r.outbox.ListPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, msg := range pending {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := r.publisher.Publish(ctx, msg); err != nil {
			r.metrics.RecordDelivery(r.publisher.Name(), false)
			r.logger.Warn("outbox delivery failed",
				zap.String("event_id", msg.ID),
				zap.String("event_type", msg.EventType),
				zap.Int("attempts", msg.Attempts+1),
				zap.Error(err))
			if markErr := r.outbox.MarkFailed(ctx, msg.ID, err.Error()); markErr != nil {
				r.logger.Error("record delivery failure", zap.String("event_id", msg.ID), zap.Error(markErr))
			}
			continue
		}
		r.metrics.RecordDelivery(r.publisher.Name(), true)
		if err := r.outbox.MarkPublished(ctx, msg.ID, r.now()); err != nil {
			r.logger.Error("mark published", zap.String("event_id", msg.ID), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered, nil
}
