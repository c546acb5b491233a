package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/integrity"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// AssignmentChain maintains the custody ledger of a ticket. Every method
// takes the repository to write through so callers control the transaction.
type AssignmentChain struct {
	now func() time.Time
}

// NewAssignmentChain builds a chain using now as its clock; nil means time.Now.
func NewAssignmentChain(now func() time.Time) *AssignmentChain {
	if now == nil {
		now = time.Now
	}
	return &AssignmentChain{now: now}
}

// stamp returns the current time at storage precision, strictly after prev.
func (c *AssignmentChain) stamp(prev time.Time) time.Time {
	t := c.now().UTC().Truncate(time.Microsecond)
	if !prev.IsZero() && !t.After(prev) {
		t = prev.Add(time.Microsecond)
	}
	return t
}

// OpenInitial writes the root record of a new ticket.
func (c *AssignmentChain) OpenInitial(ctx context.Context, repo repository.AssignmentRepository, ticketID, holderID int64) (*domain.Assignment, error) {
	a := &domain.Assignment{
		TicketID:  ticketID,
		HolderID:  &holderID,
		StartedAt: c.stamp(time.Time{}),
	}
	if err := c.insert(ctx, repo, a, nil); err != nil {
		return nil, err
	}
	return a, nil
}

// Supersede ends the active record and appends its successor for to. The
// active record must still be expectedActiveID.
func (c *AssignmentChain) Supersede(ctx context.Context, repo repository.AssignmentRepository, ticketID, expectedActiveID int64, to domain.Custodian, note string) (*domain.Assignment, error) {
	if err := to.Validate(); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}
	active, err := c.endActive(ctx, repo, ticketID, expectedActiveID)
	if err != nil {
		return nil, err
	}

	next := &domain.Assignment{
		TicketID:  ticketID,
		HolderID:  to.HolderID,
		AreaID:    to.AreaID,
		StartedAt: *active.EndedAt,
		ParentID:  &active.ID,
		Note:      note,
	}
	if err := c.insert(ctx, repo, next, active.Digest); err != nil {
		return nil, err
	}
	return next, nil
}

// Close ends the active record without a successor.
func (c *AssignmentChain) Close(ctx context.Context, repo repository.AssignmentRepository, ticketID, expectedActiveID int64) (*domain.Assignment, error) {
	return c.endActive(ctx, repo, ticketID, expectedActiveID)
}

func (c *AssignmentChain) endActive(ctx context.Context, repo repository.AssignmentRepository, ticketID, expectedActiveID int64) (*domain.Assignment, error) {
	active, err := repo.GetActive(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNoActiveAssignment(ticketID)
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if active.ID != expectedActiveID {
		return nil, apperrors.NewConcurrencyConflict(map[string]any{
			"ticket_id":          ticketID,
			"expected_active_id": expectedActiveID,
			"active_id":          active.ID,
		})
	}

	endedAt := c.stamp(active.StartedAt)
	if err := repo.End(ctx, active.ID, endedAt); err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			return nil, apperrors.NewConcurrencyConflict(map[string]any{"ticket_id": ticketID, "assignment_id": active.ID})
		}
		return nil, apperrors.MapError(err)
	}
	active.EndedAt = &endedAt
	return active, nil
}

func (c *AssignmentChain) insert(ctx context.Context, repo repository.AssignmentRepository, a *domain.Assignment, parentDigest []byte) error {
	digest, err := integrity.Digest(a, parentDigest)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	a.Digest = digest
	if err := repo.Insert(ctx, a); err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			return apperrors.NewConcurrencyConflict(map[string]any{"ticket_id": a.TicketID})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// History returns the custody chain newest to oldest, starting from the
// active record or, once closed, from the last one.
func (c *AssignmentChain) History(ctx context.Context, repo repository.AssignmentRepository, ticketID int64) ([]domain.Assignment, error) {
	records, err := repo.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return walkChain(ticketID, records)
}

func walkChain(ticketID int64, records []domain.Assignment) ([]domain.Assignment, error) {
	byID := make(map[int64]domain.Assignment, len(records))
	referenced := make(map[int64]bool, len(records))
	for _, a := range records {
		byID[a.ID] = a
		if a.ParentID != nil {
			referenced[*a.ParentID] = true
		}
	}

	var heads []int64
	for _, a := range records {
		if a.Active() {
			heads = append(heads, a.ID)
		}
	}
	if len(heads) == 0 {
		for _, a := range records {
			if !referenced[a.ID] {
				heads = append(heads, a.ID)
			}
		}
	}
	if len(heads) != 1 {
		return nil, corrupted(ticketID, fmt.Sprintf("expected one chain head, found %d", len(heads)))
	}

	history := make([]domain.Assignment, 0, len(records))
	seen := make(map[int64]bool, len(records))
	current := byID[heads[0]]
	for {
		if seen[current.ID] {
			return nil, corrupted(ticketID, fmt.Sprintf("cycle at assignment %d", current.ID))
		}
		seen[current.ID] = true
		history = append(history, current)
		if current.ParentID == nil {
			break
		}
		parent, ok := byID[*current.ParentID]
		if !ok {
			return nil, corrupted(ticketID, fmt.Sprintf("assignment %d references missing parent %d", current.ID, *current.ParentID))
		}
		if !parent.StartedAt.Before(current.StartedAt) {
			return nil, corrupted(ticketID, fmt.Sprintf("assignment %d does not start after its parent %d", current.ID, parent.ID))
		}
		current = parent
	}
	if len(history) != len(records) {
		return nil, corrupted(ticketID, fmt.Sprintf("%d assignments are not on the chain", len(records)-len(history)))
	}
	return history, nil
}

// Verify recomputes the digest chain of a history returned by History.
func (c *AssignmentChain) Verify(ticketID int64, history []domain.Assignment) error {
	err := integrity.VerifyChain(history)
	var mismatch *integrity.Mismatch
	if errors.As(err, &mismatch) {
		return apperrors.NewChainCorrupted("custody record digest mismatch", map[string]any{
			"ticket_id":     ticketID,
			"assignment_id": mismatch.AssignmentID,
		})
	}
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return nil
}

func corrupted(ticketID int64, reason string) error {
	return apperrors.NewChainCorrupted("custody chain corrupted: "+reason, map[string]any{"ticket_id": ticketID})
}

// lastHolder returns the most recent individual holder in a newest-first history.
func lastHolder(history []domain.Assignment) (int64, bool) {
	for _, a := range history {
		if a.HolderID != nil {
			return *a.HolderID, true
		}
	}
	return 0, false
}
