package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seantiz/showcase/internal/model"
	"github.com/seantiz/showcase/internal/store"
)

// JobExecutor periodically acquires due jobs and executes them.
type JobExecutor struct {
	e      *ProcessEngine
	cfg    JobExecutorConfig
	owner  string
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

func newJobExecutor(e *ProcessEngine, cfg JobExecutorConfig) *JobExecutor {
	owner := uuid.NewString()
	return &JobExecutor{
		e:      e,
		cfg:    cfg,
		owner:  owner,
		logger: e.logger.With("lock_owner", owner),
	}
}

// LockOwner returns the identity the executor locks jobs with.
func (x *JobExecutor) LockOwner() string { return x.owner }

// Start launches the acquisition loop. Calling Start on a running executor
// has no effect.
func (x *JobExecutor) Start() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	x.cancel = cancel
	x.done = make(chan struct{})
	go x.loop(ctx, x.done)

	x.logger.Info("job executor started",
		"interval", x.cfg.AcquisitionInterval.String(),
		"max_jobs", x.cfg.MaxJobsPerAcquisition,
	)
}

// Stop ends acquisition and waits for in-flight jobs to finish.
func (x *JobExecutor) Stop() {
	x.mu.Lock()
	cancel, done := x.cancel, x.done
	x.cancel, x.done = nil, nil
	x.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	x.wg.Wait()
	x.logger.Info("job executor stopped")
}

func (x *JobExecutor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(x.cfg.AcquisitionInterval)
	defer ticker.Stop()

	for {
		x.acquireAndExecute(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// acquireAndExecute locks one batch of due jobs and runs each in its own
// goroutine. It returns the number of jobs acquired.
func (x *JobExecutor) acquireAndExecute(ctx context.Context) int {
	now := time.Now().UTC()
	var jobs []*model.Job
	err := x.e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		jobs, err = tx.AcquireJobs(ctx, x.owner, now, now.Add(x.cfg.LockTime), x.cfg.MaxJobsPerAcquisition)
		return err
	})
	if err != nil {
		if ctx.Err() == nil {
			x.logger.Error("failed to acquire jobs", "error", err)
		}
		return 0
	}

	for _, job := range jobs {
		x.wg.Go(func() {
			// Jobs run to completion even when Stop cancels acquisition.
			if err := x.e.executeJob(context.WithoutCancel(ctx), job.ID); err != nil {
				x.logger.Debug("job execution failed", "job_id", job.ID, "error", err)
			}
		})
	}
	return len(jobs)
}
