package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/showcase/internal/bpmn"
	"github.com/seantiz/showcase/internal/events"
	"github.com/seantiz/showcase/internal/model"
	"github.com/seantiz/showcase/internal/store"
)

// token is the single path of execution of a process instance.
type token struct {
	inst *model.ProcessInstance
	def  *model.ProcessDefinition
	proc *bpmn.Process
	vars model.Variables
}

// loadToken reads an active instance with its definition, model and variables.
func (c *command) loadToken(ctx context.Context, instanceID string) (*token, error) {
	inst, err := c.tx.GetProcessInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Ended() {
		return nil, fmt.Errorf("process instance %s: %w", inst.ID, ErrProcessInstanceEnded)
	}
	def, err := c.tx.GetProcessDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return nil, err
	}
	proc, err := c.e.processModel(ctx, c.tx, def)
	if err != nil {
		return nil, err
	}
	vars, err := c.tx.GetVariables(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	return &token{inst: inst, def: def, proc: proc, vars: vars}, nil
}

// setVariables writes vars to the instance and the token.
func (c *command) setVariables(ctx context.Context, tok *token, vars model.Variables) error {
	for name, v := range vars {
		v, err := v.Normalize()
		if err != nil {
			return fmt.Errorf("variable %s: %w", name, err)
		}
		if err := c.tx.SetVariable(ctx, tok.inst.ID, name, v); err != nil {
			return err
		}
		tok.vars[name] = v
	}
	return nil
}

// run executes the token from nodeID until it reaches a wait state or ends.
// skipAsync resumes an async continuation at nodeID instead of creating
// another job for it.
func (c *command) run(ctx context.Context, tok *token, nodeID string, skipAsync bool) error {
	for {
		node, ok := tok.proc.Node(nodeID)
		if !ok {
			return fmt.Errorf("%w: unknown node %q in process %q", bpmn.ErrInvalidProcess, nodeID, tok.proc.ID)
		}

		wait, err := c.enter(ctx, tok, node, skipAsync)
		if err != nil || wait {
			return err
		}
		skipAsync = false

		nodeID, err = c.leave(ctx, tok, node)
		if err != nil {
			return err
		}
	}
}

// enter executes a node. It reports true when the token stops at the node.
func (c *command) enter(ctx context.Context, tok *token, node *bpmn.Node, skipAsync bool) (bool, error) {
	if err := c.tx.SetInstanceActivity(ctx, tok.inst.ID, node.ID); err != nil {
		return false, err
	}
	tok.inst.ActivityID = node.ID

	if node.AsyncBefore && !skipAsync {
		return true, c.createJob(ctx, tok, node)
	}

	now := time.Now().UTC()
	err := c.tx.CreateActivityInstance(ctx, &model.ActivityInstance{
		ID:           model.NewID(),
		InstanceID:   tok.inst.ID,
		ActivityID:   node.ID,
		ActivityType: node.Kind,
		StartedAt:    now,
	})
	if err != nil {
		return false, err
	}
	c.emit(events.ActivityStarted, tok.inst, node.ID, node.Kind)
	c.e.logger.Debug("activity started", "process_instance_id", tok.inst.ID, "activity_id", node.ID, "type", node.Kind)

	switch node.Kind {
	case bpmn.KindServiceTask:
		return false, c.invokeDelegate(ctx, tok, node)

	case bpmn.KindUserTask:
		task := &model.Task{
			ID:              model.NewID(),
			InstanceID:      tok.inst.ID,
			DefinitionID:    tok.def.ID,
			ActivityID:      node.ID,
			Name:            node.Name,
			Assignee:        node.Assignee,
			CandidateGroups: node.CandidateGroups,
			CreatedAt:       now,
		}
		if err := c.tx.CreateTask(ctx, task); err != nil {
			return false, err
		}
		c.emit(events.TaskCreated, tok.inst, node.ID, task.ID)
		return true, nil

	case bpmn.KindEndEvent:
		if err := c.tx.EndActivityInstance(ctx, tok.inst.ID, node.ID, now); err != nil {
			return false, err
		}
		c.emit(events.ActivityEnded, tok.inst, node.ID, node.Kind)
		return true, c.endInstance(ctx, tok.inst, model.StateCompleted, now)
	}

	// Start events and gateways pass straight through.
	return false, nil
}

// leave ends the history record of node and returns the next node id.
func (c *command) leave(ctx context.Context, tok *token, node *bpmn.Node) (string, error) {
	flow, err := selectFlow(tok, node)
	if err != nil {
		return "", err
	}
	if err := c.tx.EndActivityInstance(ctx, tok.inst.ID, node.ID, time.Now().UTC()); err != nil {
		return "", err
	}
	c.emit(events.ActivityEnded, tok.inst, node.ID, node.Kind)
	return flow.TargetRef, nil
}

// selectFlow picks the sequence flow a token takes out of node: the first
// outgoing flow in document order whose condition holds (flows without a
// condition always hold), else the gateway's default flow.
func selectFlow(tok *token, node *bpmn.Node) (*bpmn.SequenceFlow, error) {
	var values map[string]any
	var fallback *bpmn.SequenceFlow

	for _, f := range tok.proc.Outgoing(node.ID) {
		if node.Kind == bpmn.KindExclusiveGateway && f.ID == node.Default {
			fallback = f
			continue
		}
		body := f.ConditionBody()
		if body == "" {
			return f, nil
		}
		if values == nil {
			values = tok.vars.Values()
		}
		ok, err := bpmn.Eval(body, values)
		if err != nil {
			return nil, fmt.Errorf("sequence flow %s: %w", f.ID, err)
		}
		if ok {
			return f, nil
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, fmt.Errorf("%w: leaving %s %q", ErrNoOutgoingFlow, node.Kind, node.ID)
}

func (c *command) invokeDelegate(ctx context.Context, tok *token, node *bpmn.Node) error {
	name := node.DelegateName()
	d, err := c.e.delegates.Resolve(name)
	if err != nil {
		return fmt.Errorf("service task %s: %w", node.ID, err)
	}

	exec := &execution{ctx: ctx, c: c, tok: tok, activityID: node.ID}
	start := time.Now()
	err = d.Execute(ctx, exec)
	delegateDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("service task %s: %w", node.ID, err)
	}
	return nil
}

func (c *command) createJob(ctx context.Context, tok *token, node *bpmn.Node) error {
	now := time.Now().UTC()
	job := &model.Job{
		ID:         model.NewID(),
		InstanceID: tok.inst.ID,
		ActivityID: node.ID,
		Type:       model.JobAsyncContinuation,
		Retries:    model.DefaultJobRetries,
		DueAt:      now,
		CreatedAt:  now,
	}
	if err := c.tx.CreateJob(ctx, job); err != nil {
		return err
	}
	c.emit(events.JobCreated, tok.inst, node.ID, job.ID)
	return nil
}

func (c *command) endInstance(ctx context.Context, inst *model.ProcessInstance, state string, at time.Time) error {
	if err := c.tx.EndProcessInstance(ctx, inst.ID, state, at); err != nil {
		return err
	}
	inst.State = state
	inst.ActivityID = ""
	inst.EndedAt = &at
	c.emit(events.ProcessInstanceEnded, inst, "", state)
	return nil
}

// terminate ends an active instance, removing its open tasks and jobs.
func (c *command) terminate(ctx context.Context, inst *model.ProcessInstance) error {
	if err := c.tx.DeleteTasksByInstance(ctx, inst.ID); err != nil {
		return err
	}
	if err := c.tx.DeleteJobsByInstance(ctx, inst.ID); err != nil {
		return err
	}
	now := time.Now().UTC()
	if inst.ActivityID != "" {
		// An instance waiting on an async job has no open activity record.
		err := c.tx.EndActivityInstance(ctx, inst.ID, inst.ActivityID, now)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return c.endInstance(ctx, inst, model.StateTerminated, now)
}

// execution is the delegate view of a token at one service task.
type execution struct {
	ctx        context.Context
	c          *command
	tok        *token
	activityID string
}

func (x *execution) ProcessInstanceID() string    { return x.tok.inst.ID }
func (x *execution) ProcessDefinitionID() string  { return x.tok.def.ID }
func (x *execution) ProcessDefinitionKey() string { return x.tok.def.Key }
func (x *execution) ActivityID() string           { return x.activityID }
func (x *execution) BusinessKey() string          { return x.tok.inst.BusinessKey }

func (x *execution) Variable(name string) (model.TypedValue, bool) {
	v, ok := x.tok.vars[name]
	return v, ok
}

func (x *execution) Variables() model.Variables {
	out := make(model.Variables, len(x.tok.vars))
	for k, v := range x.tok.vars {
		out[k] = v
	}
	return out
}

func (x *execution) SetVariable(name string, value model.TypedValue) error {
	return x.c.setVariables(x.ctx, x.tok, model.Variables{name: value})
}
