package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/seantiz/showcase/internal/events"
	"github.com/seantiz/showcase/internal/model"
	"github.com/seantiz/showcase/internal/store"
)

// JobQuery narrows job queries.
type JobQuery = store.JobFilter

// ManagementService inspects and operates jobs and the engine database.
type ManagementService struct {
	e *ProcessEngine
}

// EngineName returns the name of the engine.
func (s *ManagementService) EngineName() string { return s.e.name }

// Jobs returns the jobs matching q.
func (s *ManagementService) Jobs(ctx context.Context, q JobQuery) ([]*model.Job, error) {
	return s.e.store.ListJobs(ctx, q)
}

// ExecuteJob runs a job now, regardless of its due date, lock and retries.
// On failure the job loses one retry and is rescheduled.
func (s *ManagementService) ExecuteJob(ctx context.Context, id string) error {
	return s.e.executeJob(ctx, id)
}

// SetJobRetries sets the remaining retries of a job. Raising them above zero
// resolves an incident.
func (s *ManagementService) SetJobRetries(ctx context.Context, id string, retries int) error {
	if retries < 0 {
		return fmt.Errorf("%w: negative retries %d", model.ErrInvalidVariable, retries)
	}
	return s.e.execute(ctx, func(c *command) error {
		job, err := c.tx.GetJob(ctx, id)
		if err != nil {
			return err
		}
		job.Retries = retries
		return c.tx.UpdateJob(ctx, job)
	})
}

// TableCount returns the row count of every engine table.
func (s *ManagementService) TableCount(ctx context.Context) (map[string]int, error) {
	return s.e.store.TableCounts(ctx)
}

// DefinitionStats returns runtime counts per process definition.
func (s *ManagementService) DefinitionStats(ctx context.Context) ([]store.DefinitionStats, error) {
	return s.e.store.DefinitionStats(ctx)
}

// executeJob continues the instance of a job at its activity. A failure rolls
// the continuation back and is then recorded on the job.
func (e *ProcessEngine) executeJob(ctx context.Context, id string) error {
	var job *model.Job
	err := e.execute(ctx, func(c *command) error {
		var err error
		job, err = c.tx.GetJob(ctx, id)
		if err != nil {
			return err
		}
		tok, err := c.loadToken(ctx, job.InstanceID)
		if err != nil {
			return err
		}
		if err := c.tx.DeleteJob(ctx, job.ID); err != nil {
			return err
		}
		return c.run(ctx, tok, job.ActivityID, true)
	})
	if err == nil {
		jobsExecuted.Inc()
		return nil
	}
	if job == nil {
		// The job itself could not be read.
		return err
	}
	if recordErr := e.recordJobFailure(ctx, job, err); recordErr != nil {
		e.logger.Error("failed to record job failure", "job_id", job.ID, "error", recordErr)
	}
	return fmt.Errorf("job %s: %w", job.ID, err)
}

// recordJobFailure decrements the retries of a failed job, unlocks it and
// postpones its next attempt.
func (e *ProcessEngine) recordJobFailure(ctx context.Context, job *model.Job, cause error) error {
	return e.execute(ctx, func(c *command) error {
		current, err := c.tx.GetJob(ctx, job.ID)
		if err != nil {
			return err
		}
		current.Retries--
		if current.Retries < 0 {
			current.Retries = 0
		}
		current.Exception = cause.Error()
		current.LockOwner = ""
		current.LockExpiresAt = nil
		current.DueAt = time.Now().UTC().Add(jobRetryDelay)
		if err := c.tx.UpdateJob(ctx, current); err != nil {
			return err
		}

		inst := &model.ProcessInstance{ID: current.InstanceID}
		if p, err := c.tx.GetProcessInstance(ctx, current.InstanceID); err == nil {
			inst = p
		}
		c.emit(events.JobFailed, inst, current.ActivityID, cause.Error())

		e.logger.Warn("job failed",
			"job_id", current.ID,
			"process_instance_id", current.InstanceID,
			"activity_id", current.ActivityID,
			"retries_left", current.Retries,
			"error", cause,
		)
		return nil
	})
}
