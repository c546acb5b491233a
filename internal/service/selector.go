package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// Selector picks the backoffice handler that receives an escalated ticket.
// Implementations must be deterministic for a given pool and load snapshot.
type Selector interface {
	SelectResponsible(ctx context.Context, loads repository.LoadReader, areaID *int64) (int64, error)
}

// Counter hands out monotonically increasing values per key.
type Counter interface {
	Next(ctx context.Context, key string) (int64, error)
}

// LeastLoadedSelector returns the eligible handler with the fewest open
// assignments, breaking ties by lowest employee id.
type LeastLoadedSelector struct{}

func NewLeastLoadedSelector() *LeastLoadedSelector {
	return &LeastLoadedSelector{}
}

func (s *LeastLoadedSelector) SelectResponsible(ctx context.Context, loads repository.LoadReader, areaID *int64) (int64, error) {
	candidates, err := eligibleCandidates(ctx, loads, areaID)
	if err != nil {
		return 0, err
	}
	best := slices.MinFunc(candidates, func(a, b domain.EmployeeLoad) int {
		if c := cmp.Compare(a.Open, b.Open); c != 0 {
			return c
		}
		return cmp.Compare(a.Employee.ID, b.Employee.ID)
	})
	return best.Employee.ID, nil
}

// RoundRobinSelector cycles through the eligible handlers of a pool in id
// order using a shared cursor per pool.
type RoundRobinSelector struct {
	counter Counter
}

func NewRoundRobinSelector(counter Counter) *RoundRobinSelector {
	return &RoundRobinSelector{counter: counter}
}

func (s *RoundRobinSelector) SelectResponsible(ctx context.Context, loads repository.LoadReader, areaID *int64) (int64, error) {
	candidates, err := eligibleCandidates(ctx, loads, areaID)
	if err != nil {
		return 0, err
	}
	slices.SortFunc(candidates, func(a, b domain.EmployeeLoad) int {
		return cmp.Compare(a.Employee.ID, b.Employee.ID)
	})
	cursor, err := s.counter.Next(ctx, poolKey("round_robin", areaID))
	if err != nil {
		return 0, fmt.Errorf("round robin cursor: %w", err)
	}
	idx := int((cursor - 1) % int64(len(candidates)))
	if idx < 0 {
		idx += len(candidates)
	}
	return candidates[idx].Employee.ID, nil
}

func eligibleCandidates(ctx context.Context, loads repository.LoadReader, areaID *int64) ([]domain.EmployeeLoad, error) {
	all, err := loads.CandidateLoads(ctx, areaID)
	if err != nil {
		return nil, err
	}
	candidates := make([]domain.EmployeeLoad, 0, len(all))
	for _, load := range all {
		e := load.Employee
		if e.Role != domain.RoleBackoffice || !e.CanHold() || !e.ServesArea(areaID) || !e.HasCapacityFor(load.Open) {
			continue
		}
		candidates = append(candidates, load)
	}
	if len(candidates) == 0 {
		details := map[string]any{"pool": "global"}
		if areaID != nil {
			details = map[string]any{"area_id": *areaID}
		}
		return nil, apperrors.NewNoAvailableHandler(details)
	}
	return candidates, nil
}

func poolKey(prefix string, areaID *int64) string {
	if areaID == nil {
		return prefix + ":global"
	}
	return fmt.Sprintf("%s:%d", prefix, *areaID)
}

// MemoryCounter is a process-local Counter.
type MemoryCounter struct {
	mu     sync.Mutex
	values map[string]int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{values: make(map[string]int64)}
}

func (c *MemoryCounter) Next(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key]++
	return c.values[key], nil
}
