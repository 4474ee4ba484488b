package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/showcase/internal/events"
	"github.com/seantiz/showcase/internal/model"
	"github.com/seantiz/showcase/internal/store"
)

// ProcessInstanceQuery narrows process instance queries.
type ProcessInstanceQuery = store.InstanceFilter

// RuntimeService starts and manages process instances.
type RuntimeService struct {
	e *ProcessEngine
}

// StartProcessInstanceByKey starts the latest version of the process with the
// given key and runs it until it waits or ends. When the returned error is
// non-nil nothing of the instance was persisted.
func (r *RuntimeService) StartProcessInstanceByKey(ctx context.Context, key, businessKey string, vars model.Variables) (*model.ProcessInstance, error) {
	var inst *model.ProcessInstance
	err := r.e.execute(ctx, func(c *command) error {
		def, err := c.tx.LatestProcessDefinition(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: key %s", ErrProcessDefinitionNotFound, key)
		}
		if err != nil {
			return err
		}
		inst, err = c.start(ctx, def, businessKey, vars)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// StartProcessInstanceByID starts the process definition with the given id.
func (r *RuntimeService) StartProcessInstanceByID(ctx context.Context, definitionID, businessKey string, vars model.Variables) (*model.ProcessInstance, error) {
	var inst *model.ProcessInstance
	err := r.e.execute(ctx, func(c *command) error {
		def, err := c.tx.GetProcessDefinition(ctx, definitionID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: id %s", ErrProcessDefinitionNotFound, definitionID)
		}
		if err != nil {
			return err
		}
		inst, err = c.start(ctx, def, businessKey, vars)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func (c *command) start(ctx context.Context, def *model.ProcessDefinition, businessKey string, vars model.Variables) (*model.ProcessInstance, error) {
	proc, err := c.e.processModel(ctx, c.tx, def)
	if err != nil {
		return nil, err
	}
	startEvent := proc.StartEvent()

	inst := &model.ProcessInstance{
		ID:            model.NewID(),
		DefinitionID:  def.ID,
		DefinitionKey: def.Key,
		BusinessKey:   businessKey,
		ActivityID:    startEvent.ID,
		State:         model.StateActive,
		StartedAt:     time.Now().UTC(),
	}
	if err := c.tx.CreateProcessInstance(ctx, inst); err != nil {
		return nil, err
	}
	c.emit(events.ProcessInstanceStarted, inst, "", businessKey)

	tok := &token{inst: inst, def: def, proc: proc, vars: model.Variables{}}
	if err := c.setVariables(ctx, tok, vars); err != nil {
		return nil, err
	}
	if err := c.run(ctx, tok, startEvent.ID, false); err != nil {
		return nil, err
	}
	return inst, nil
}

// ProcessInstance returns the instance with the given id.
func (r *RuntimeService) ProcessInstance(ctx context.Context, id string) (*model.ProcessInstance, error) {
	return r.e.store.GetProcessInstance(ctx, id)
}

// ProcessInstances returns the instances matching q, oldest first.
func (r *RuntimeService) ProcessInstances(ctx context.Context, q ProcessInstanceQuery) ([]*model.ProcessInstance, error) {
	return r.e.store.ListProcessInstances(ctx, q)
}

// CountProcessInstances counts the instances matching q.
func (r *RuntimeService) CountProcessInstances(ctx context.Context, q ProcessInstanceQuery) (int, error) {
	return r.e.store.CountProcessInstances(ctx, q)
}

// Variables returns the variables of an instance.
func (r *RuntimeService) Variables(ctx context.Context, instanceID string) (model.Variables, error) {
	if _, err := r.e.store.GetProcessInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	return r.e.store.GetVariables(ctx, instanceID)
}

// SetVariables creates or replaces variables of an active instance.
func (r *RuntimeService) SetVariables(ctx context.Context, instanceID string, vars model.Variables) error {
	return r.e.execute(ctx, func(c *command) error {
		inst, err := c.tx.GetProcessInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		if inst.Ended() {
			return fmt.Errorf("process instance %s: %w", inst.ID, ErrProcessInstanceEnded)
		}
		tok := &token{inst: inst, vars: model.Variables{}}
		return c.setVariables(ctx, tok, vars)
	})
}

// DeleteProcessInstance terminates an active instance and removes its open
// tasks and jobs.
func (r *RuntimeService) DeleteProcessInstance(ctx context.Context, id, reason string) error {
	err := r.e.execute(ctx, func(c *command) error {
		inst, err := c.tx.GetProcessInstance(ctx, id)
		if err != nil {
			return err
		}
		if inst.Ended() {
			return fmt.Errorf("process instance %s: %w", inst.ID, ErrProcessInstanceEnded)
		}
		return c.terminate(ctx, inst)
	})
	if err != nil {
		return err
	}
	r.e.logger.Info("process instance deleted", "process_instance_id", id, "reason", reason)
	return nil
}
