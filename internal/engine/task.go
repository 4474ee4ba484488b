package engine

import (
	"context"
	"fmt"

	"github.com/seantiz/showcase/internal/events"
	"github.com/seantiz/showcase/internal/model"
	"github.com/seantiz/showcase/internal/store"
)

// TaskQuery narrows user task queries.
type TaskQuery = store.TaskFilter

// TaskService manages open user tasks.
type TaskService struct {
	e *ProcessEngine
}

// Tasks returns the open tasks matching q.
func (s *TaskService) Tasks(ctx context.Context, q TaskQuery) ([]*model.Task, error) {
	return s.e.store.ListTasks(ctx, q)
}

// Task returns the open task with the given id.
func (s *TaskService) Task(ctx context.Context, id string) (*model.Task, error) {
	return s.e.store.GetTask(ctx, id)
}

// Claim assigns a task to userID. An empty userID releases the task.
func (s *TaskService) Claim(ctx context.Context, id, userID string) error {
	return s.e.execute(ctx, func(c *command) error {
		task, err := c.tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		if userID != "" && task.Assignee != "" && task.Assignee != userID {
			return fmt.Errorf("task %s assigned to %s: %w", id, task.Assignee, ErrTaskClaimed)
		}
		return c.tx.SetTaskAssignee(ctx, id, userID)
	})
}

// Complete completes a task, stores vars on its instance and continues the
// instance until it waits again or ends.
func (s *TaskService) Complete(ctx context.Context, id string, vars model.Variables) error {
	return s.e.execute(ctx, func(c *command) error {
		task, err := c.tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		tok, err := c.loadToken(ctx, task.InstanceID)
		if err != nil {
			return err
		}
		node, ok := tok.proc.Node(task.ActivityID)
		if !ok {
			return fmt.Errorf("task %s: unknown activity %q", id, task.ActivityID)
		}

		if err := c.setVariables(ctx, tok, vars); err != nil {
			return err
		}
		if err := c.tx.DeleteTask(ctx, id); err != nil {
			return err
		}
		c.emit(events.TaskCompleted, tok.inst, node.ID, id)

		next, err := c.leave(ctx, tok, node)
		if err != nil {
			return err
		}
		return c.run(ctx, tok, next, false)
	})
}
