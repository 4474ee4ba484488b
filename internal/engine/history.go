package engine

import (
	"context"
	"slices"
	"strings"

	"github.com/seantiz/showcase/internal/model"
	"github.com/seantiz/showcase/internal/store"
)

// HistoryService reads the execution history.
type HistoryService struct {
	e *ProcessEngine
}

// ActivityInstances returns the nodes an instance entered, in order.
func (s *HistoryService) ActivityInstances(ctx context.Context, instanceID string) ([]*model.ActivityInstance, error) {
	return s.e.store.ListActivityInstances(ctx, instanceID)
}

// FinishedProcessInstances returns completed and terminated instances, oldest first.
func (s *HistoryService) FinishedProcessInstances(ctx context.Context) ([]*model.ProcessInstance, error) {
	completed, err := s.e.store.ListProcessInstances(ctx, store.InstanceFilter{State: model.StateCompleted})
	if err != nil {
		return nil, err
	}
	terminated, err := s.e.store.ListProcessInstances(ctx, store.InstanceFilter{State: model.StateTerminated})
	if err != nil {
		return nil, err
	}
	out := append(completed, terminated...)
	slices.SortFunc(out, func(a, b *model.ProcessInstance) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}
