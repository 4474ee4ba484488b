package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/showcase/internal/bpmn"
	"github.com/seantiz/showcase/internal/delegate"
	"github.com/seantiz/showcase/internal/events"
	"github.com/seantiz/showcase/internal/model"
	"github.com/seantiz/showcase/internal/store"
)

var (
	// ErrInvalidConfiguration is returned by New for an unusable configuration.
	ErrInvalidConfiguration = errors.New("invalid engine configuration")

	// ErrProcessDefinitionNotFound is returned when no definition matches a key or id.
	ErrProcessDefinitionNotFound = errors.New("process definition not found")

	// ErrNoOutgoingFlow is returned when execution cannot leave a node because
	// no outgoing sequence flow is applicable.
	ErrNoOutgoingFlow = errors.New("no outgoing sequence flow applicable")

	// ErrProcessInstanceEnded is returned for commands on a completed or
	// terminated process instance.
	ErrProcessInstanceEnded = errors.New("process instance has ended")

	// ErrTaskClaimed is returned when claiming a task assigned to someone else.
	ErrTaskClaimed = errors.New("task is already claimed")
)

// ProcessEngine runs process instances on top of a store.
type ProcessEngine struct {
	name      string
	store     store.Store
	ownsStore bool
	delegates *delegate.Registry
	logger    *slog.Logger
	broker    *events.Broker
	publisher events.Publisher

	modelsMu sync.RWMutex
	models   map[string]*bpmn.Process

	jobs *JobExecutor

	repository *RepositoryService
	runtime    *RuntimeService
	tasks      *TaskService
	history    *HistoryService
	management *ManagementService

	closeOnce sync.Once
	closeErr  error
}

// New builds a process engine from cfg, deploys the configured resources and
// starts the job executor when it is activated.
func New(ctx context.Context, cfg Configuration) (*ProcessEngine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s, owns := cfg.Store, false
	if s == nil {
		opened, err := store.Open(cfg.DataSource, cfg.DatabaseSchemaUpdate)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s, owns = opened, true
	}

	e := &ProcessEngine{
		name:      cfg.ProcessEngineName,
		store:     s,
		ownsStore: owns,
		delegates: cfg.Delegates,
		logger:    cfg.Logger.With("engine", cfg.ProcessEngineName),
		broker:    cfg.Broker,
		publisher: cfg.Publisher,
		models:    make(map[string]*bpmn.Process),
	}
	e.repository = &RepositoryService{e: e}
	e.runtime = &RuntimeService{e: e}
	e.tasks = &TaskService{e: e}
	e.history = &HistoryService{e: e}
	e.management = &ManagementService{e: e}

	if err := e.deployResources(ctx, cfg); err != nil {
		if owns {
			s.Close()
		}
		return nil, err
	}

	if cfg.JobExecutorActivate {
		e.jobs = newJobExecutor(e, cfg.JobExecutor)
		e.jobs.Start()
	}

	e.logger.Info("process engine created",
		"job_executor", cfg.JobExecutorActivate,
		"schema_update", cfg.DatabaseSchemaUpdate,
		"delegates", e.delegates.Names(),
	)
	return e, nil
}

func (e *ProcessEngine) deployResources(ctx context.Context, cfg Configuration) error {
	if len(cfg.DeploymentResources) == 0 {
		return nil
	}
	b := DeploymentBuilder{
		Name:               cfg.ProcessEngineName,
		Source:             "process application",
		DuplicateFiltering: true,
	}
	for _, name := range cfg.DeploymentResources {
		content, err := cfg.ResourceLoader(name)
		if err != nil {
			return fmt.Errorf("load deployment resource: %w", err)
		}
		b.AddResource(name, content)
	}
	if _, err := e.repository.Deploy(ctx, b); err != nil {
		return fmt.Errorf("deploy resources: %w", err)
	}
	return nil
}

// Name returns the process engine name.
func (e *ProcessEngine) Name() string { return e.name }

func (e *ProcessEngine) RepositoryService() *RepositoryService { return e.repository }
func (e *ProcessEngine) RuntimeService() *RuntimeService       { return e.runtime }
func (e *ProcessEngine) TaskService() *TaskService             { return e.tasks }
func (e *ProcessEngine) HistoryService() *HistoryService       { return e.history }
func (e *ProcessEngine) ManagementService() *ManagementService { return e.management }

// Broker returns the broker engine events are published on, one topic per
// engine name.
func (e *ProcessEngine) Broker() *events.Broker { return e.broker }

// JobExecutor returns the running job executor, or nil when it is not activated.
func (e *ProcessEngine) JobExecutor() *JobExecutor { return e.jobs }

// Close stops the job executor, ends the event stream, closes the publisher
// and, when the engine opened it, the store. It is safe to call more than once.
func (e *ProcessEngine) Close() error {
	e.closeOnce.Do(func() {
		if e.jobs != nil {
			e.jobs.Stop()
		}
		e.broker.Close(e.name)

		var errs []error
		if err := e.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
		if e.ownsStore {
			if err := e.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close store: %w", err))
			}
		}
		e.closeErr = errors.Join(errs...)
		e.logger.Info("process engine closed")
	})
	return e.closeErr
}

// command is the state of one engine command: the transaction it runs in
// and the events to dispatch once it commits.
type command struct {
	e      *ProcessEngine
	tx     store.Tx
	events []events.Event
}

// execute runs fn in one transaction and dispatches its events after commit.
func (e *ProcessEngine) execute(ctx context.Context, fn func(c *command) error) error {
	c := &command{e: e}
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		c.tx = tx
		c.events = c.events[:0]
		return fn(c)
	})
	if err != nil {
		return err
	}
	e.dispatch(ctx, c.events)
	return nil
}

func (c *command) emit(typ string, inst *model.ProcessInstance, activityID, detail string) {
	c.events = append(c.events, events.Event{
		Type:                 typ,
		Engine:               c.e.name,
		ProcessInstanceID:    inst.ID,
		ProcessDefinitionKey: inst.DefinitionKey,
		ActivityID:           activityID,
		Time:                 time.Now().UTC(),
		Detail:               detail,
	})
}

// dispatch forwards committed events to the broker, the publisher and the
// engine metrics. Publishing failures are logged only.
func (e *ProcessEngine) dispatch(ctx context.Context, evs []events.Event) {
	for _, ev := range evs {
		switch ev.Type {
		case events.ProcessInstanceStarted:
			instancesStarted.Inc()
		case events.ProcessInstanceEnded:
			instancesEnded.WithLabelValues(ev.Detail).Inc()
		case events.JobFailed:
			jobsFailed.Inc()
		}

		e.broker.Publish(e.name, ev)
		if err := e.publisher.Publish(ctx, ev); err != nil {
			e.logger.Warn("failed to publish event", "type", ev.Type, "process_instance_id", ev.ProcessInstanceID, "error", err)
		}
	}
}

// processModel returns the parsed process of a definition, parsing the
// deployed resource on first use.
func (e *ProcessEngine) processModel(ctx context.Context, tx store.Tx, def *model.ProcessDefinition) (*bpmn.Process, error) {
	e.modelsMu.RLock()
	proc, ok := e.models[def.ID]
	e.modelsMu.RUnlock()
	if ok {
		return proc, nil
	}

	res, err := tx.GetResource(ctx, def.DeploymentID, def.ResourceName)
	if err != nil {
		return nil, fmt.Errorf("load resource of %s: %w", def.ID, err)
	}
	defs, err := bpmn.Parse(bytes.NewReader(res.Content))
	if err != nil {
		return nil, fmt.Errorf("parse resource of %s: %w", def.ID, err)
	}
	proc, ok = defs.Process(def.Key)
	if !ok {
		return nil, fmt.Errorf("resource %s does not define process %q: %w", def.ResourceName, def.Key, ErrProcessDefinitionNotFound)
	}

	e.modelsMu.Lock()
	e.models[def.ID] = proc
	e.modelsMu.Unlock()
	return proc, nil
}
