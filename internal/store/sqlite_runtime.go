package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seantiz/showcase/internal/model"
)

const (
	instanceColumns = `id, definition_id, definition_key, business_key, activity_id, state, started_at, ended_at`
	taskColumns     = `id, instance_id, definition_id, activity_id, name, assignee, candidate_groups, created_at`
	jobColumns      = `id, instance_id, activity_id, type, retries, lock_owner, lock_expires_at, exception, due_at, created_at`
)

// where joins non-empty conditions into a WHERE clause.
type where struct {
	conds []string
	args  []any
}

func (w *where) eq(column, value string) {
	if value != "" {
		w.add(column+" = ?", value)
	}
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// CreateProcessInstance inserts a new process instance record.
func (t *sqlTx) CreateProcessInstance(ctx context.Context, p *model.ProcessInstance) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO process_instances (`+instanceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DefinitionID, p.DefinitionKey, p.BusinessKey, p.ActivityID, p.State, p.StartedAt, p.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert process instance: %w", err)
	}
	return nil
}

// GetProcessInstance retrieves a process instance by ID.
func (t *sqlTx) GetProcessInstance(ctx context.Context, id string) (*model.ProcessInstance, error) {
	p := &model.ProcessInstance{}
	err := t.q.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM process_instances WHERE id = ?`, id,
	).Scan(&p.ID, &p.DefinitionID, &p.DefinitionKey, &p.BusinessKey, &p.ActivityID, &p.State, &p.StartedAt, &p.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("process instance %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get process instance: %w", err)
	}
	return p, nil
}

// SetInstanceActivity records the node an active instance is waiting in.
func (t *sqlTx) SetInstanceActivity(ctx context.Context, id, activityID string) error {
	result, err := t.q.ExecContext(ctx,
		"UPDATE process_instances SET activity_id = ? WHERE id = ? AND state = ?",
		activityID, id, model.StateActive,
	)
	if err != nil {
		return fmt.Errorf("update process instance activity: %w", err)
	}
	return checkAffected(result, "active process instance "+id)
}

// EndProcessInstance moves an instance to a terminal state. Returns
// model.ErrInvalidTransition if the instance is not active.
func (t *sqlTx) EndProcessInstance(ctx context.Context, id, state string, endedAt time.Time) error {
	p, err := t.GetProcessInstance(ctx, id)
	if err != nil {
		return err
	}
	if !model.ValidTransition(p.State, state) {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, p.State, state)
	}

	_, err = t.q.ExecContext(ctx,
		"UPDATE process_instances SET state = ?, activity_id = '', ended_at = ? WHERE id = ?",
		state, endedAt, id,
	)
	if err != nil {
		return fmt.Errorf("end process instance: %w", err)
	}
	return nil
}

func instanceWhere(f InstanceFilter) *where {
	w := &where{}
	w.eq("definition_id", f.DefinitionID)
	w.eq("definition_key", f.DefinitionKey)
	w.eq("business_key", f.BusinessKey)
	w.eq("activity_id", f.ActivityID)
	w.eq("state", f.State)
	return w
}

// ListProcessInstances returns matching instances, oldest first.
func (t *sqlTx) ListProcessInstances(ctx context.Context, f InstanceFilter) ([]*model.ProcessInstance, error) {
	w := instanceWhere(f)
	query, args := page(`SELECT `+instanceColumns+` FROM process_instances`+w.String()+` ORDER BY id`, w.args, f.Limit, f.Offset)

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list process instances: %w", err)
	}
	defer rows.Close()

	var out []*model.ProcessInstance
	for rows.Next() {
		p := &model.ProcessInstance{}
		if err := rows.Scan(&p.ID, &p.DefinitionID, &p.DefinitionKey, &p.BusinessKey, &p.ActivityID, &p.State, &p.StartedAt, &p.EndedAt); err != nil {
			return nil, fmt.Errorf("scan process instance: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate process instances: %w", err)
	}
	return out, nil
}

// CountProcessInstances counts matching instances, ignoring Limit and Offset.
func (t *sqlTx) CountProcessInstances(ctx context.Context, f InstanceFilter) (int, error) {
	w := instanceWhere(f)
	var n int
	if err := t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM process_instances`+w.String(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count process instances: %w", err)
	}
	return n, nil
}

// SetVariable creates or replaces a variable of an instance.
func (t *sqlTx) SetVariable(ctx context.Context, instanceID, name string, v model.TypedValue) error {
	v, err := v.Normalize()
	if err != nil {
		return err
	}
	data, err := json.Marshal(v.Value)
	if err != nil {
		return fmt.Errorf("encode variable %s: %w", name, err)
	}

	_, err = t.q.ExecContext(ctx,
		`INSERT INTO variables (instance_id, name, type, value) VALUES (?, ?, ?, ?)
		ON CONFLICT (instance_id, name) DO UPDATE SET type = excluded.type, value = excluded.value`,
		instanceID, name, v.Type, string(data),
	)
	if err != nil {
		return fmt.Errorf("upsert variable: %w", err)
	}
	return nil
}

// GetVariables returns all variables of an instance.
func (t *sqlTx) GetVariables(ctx context.Context, instanceID string) (model.Variables, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT name, type, value FROM variables WHERE instance_id = ?`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list variables: %w", err)
	}
	defer rows.Close()

	vars := model.Variables{}
	for rows.Next() {
		var name, typ, raw string
		if err := rows.Scan(&name, &typ, &raw); err != nil {
			return nil, fmt.Errorf("scan variable: %w", err)
		}
		value, err := model.DecodeValue([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode variable %s: %w", name, err)
		}
		tv, err := model.TypedValue{Type: typ, Value: value}.Normalize()
		if err != nil {
			return nil, fmt.Errorf("decode variable %s: %w", name, err)
		}
		vars[name] = tv
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variables: %w", err)
	}
	return vars, nil
}

// CreateTask inserts an open user task.
func (t *sqlTx) CreateTask(ctx context.Context, task *model.Task) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.InstanceID, task.DefinitionID, task.ActivityID, task.Name,
		task.Assignee, task.CandidateGroups, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask retrieves an open task by ID.
func (t *sqlTx) GetTask(ctx context.Context, id string) (*model.Task, error) {
	task := &model.Task{}
	err := t.q.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id,
	).Scan(&task.ID, &task.InstanceID, &task.DefinitionID, &task.ActivityID, &task.Name,
		&task.Assignee, &task.CandidateGroups, &task.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks returns matching open tasks, oldest first.
func (t *sqlTx) ListTasks(ctx context.Context, f TaskFilter) ([]*model.Task, error) {
	w := &where{}
	w.eq("instance_id", f.InstanceID)
	w.eq("activity_id", f.ActivityID)
	w.eq("assignee", f.Assignee)
	if f.CandidateGroup != "" {
		w.add("(',' || REPLACE(candidate_groups, ' ', '') || ',') LIKE ?", "%,"+f.CandidateGroup+",%")
	}
	query, args := page(`SELECT `+taskColumns+` FROM tasks`+w.String()+` ORDER BY id`, w.args, f.Limit, f.Offset)

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		task := &model.Task{}
		if err := rows.Scan(&task.ID, &task.InstanceID, &task.DefinitionID, &task.ActivityID, &task.Name,
			&task.Assignee, &task.CandidateGroups, &task.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

// SetTaskAssignee updates the assignee of an open task.
func (t *sqlTx) SetTaskAssignee(ctx context.Context, id, assignee string) error {
	result, err := t.q.ExecContext(ctx, "UPDATE tasks SET assignee = ? WHERE id = ?", assignee, id)
	if err != nil {
		return fmt.Errorf("update task assignee: %w", err)
	}
	return checkAffected(result, "task "+id)
}

// DeleteTask removes an open task.
func (t *sqlTx) DeleteTask(ctx context.Context, id string) error {
	result, err := t.q.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return checkAffected(result, "task "+id)
}

// DeleteTasksByInstance removes all open tasks of an instance.
func (t *sqlTx) DeleteTasksByInstance(ctx context.Context, instanceID string) error {
	if _, err := t.q.ExecContext(ctx, "DELETE FROM tasks WHERE instance_id = ?", instanceID); err != nil {
		return fmt.Errorf("delete tasks: %w", err)
	}
	return nil
}

// CreateJob inserts a job.
func (t *sqlTx) CreateJob(ctx context.Context, j *model.Job) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.InstanceID, j.ActivityID, j.Type, j.Retries, j.LockOwner, lockMillis(j.LockExpiresAt),
		j.Exception, toMillis(j.DueAt), j.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (t *sqlTx) GetJob(ctx context.Context, id string) (*model.Job, error) {
	j, err := scanJob(t.q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*model.Job, error) {
	j := &model.Job{}
	var lock sql.NullInt64
	var due int64
	if err := row.Scan(&j.ID, &j.InstanceID, &j.ActivityID, &j.Type, &j.Retries, &j.LockOwner,
		&lock, &j.Exception, &due, &j.CreatedAt); err != nil {
		return nil, err
	}
	if lock.Valid {
		at := fromMillis(lock.Int64)
		j.LockExpiresAt = &at
	}
	j.DueAt = fromMillis(due)
	return j, nil
}

func lockMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMillis(*t)
}

func (t *sqlTx) queryJobs(ctx context.Context, query string, args ...any) ([]*model.Job, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

// executableJobs matches jobs that are due, have retries left and are not
// locked by a live lock.
const executableJobs = "retries > 0 AND due_at <= ? AND (lock_owner = '' OR lock_expires_at IS NULL OR lock_expires_at < ?)"

// ListJobs returns matching jobs ordered by due date.
func (t *sqlTx) ListJobs(ctx context.Context, f JobFilter) ([]*model.Job, error) {
	w := &where{}
	w.eq("instance_id", f.InstanceID)
	if f.OnlyIncidents {
		w.add("retries <= 0")
	}
	if f.Executable {
		now := toMillis(f.Now)
		w.add(executableJobs, now, now)
	}
	query, args := page(`SELECT `+jobColumns+` FROM jobs`+w.String()+` ORDER BY due_at, id`, w.args, f.Limit, f.Offset)
	return t.queryJobs(ctx, query, args...)
}

// AcquireJobs locks up to limit executable jobs for owner until lockUntil and
// returns them. Call it inside InTx so selection and locking are atomic.
func (t *sqlTx) AcquireJobs(ctx context.Context, owner string, now, lockUntil time.Time, limit int) ([]*model.Job, error) {
	jobs, err := t.ListJobs(ctx, JobFilter{Executable: true, Now: now, Limit: limit})
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		_, err := t.q.ExecContext(ctx,
			"UPDATE jobs SET lock_owner = ?, lock_expires_at = ? WHERE id = ?",
			owner, toMillis(lockUntil), j.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("lock job: %w", err)
		}
		at := lockUntil.UTC()
		j.LockOwner = owner
		j.LockExpiresAt = &at
	}
	return jobs, nil
}

// UpdateJob writes the mutable fields of a job (retries, lock, exception, due date).
func (t *sqlTx) UpdateJob(ctx context.Context, j *model.Job) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE jobs SET retries = ?, lock_owner = ?, lock_expires_at = ?, exception = ?, due_at = ?
		WHERE id = ?`,
		j.Retries, j.LockOwner, lockMillis(j.LockExpiresAt), j.Exception, toMillis(j.DueAt), j.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return checkAffected(result, "job "+j.ID)
}

// DeleteJob removes a job.
func (t *sqlTx) DeleteJob(ctx context.Context, id string) error {
	result, err := t.q.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return checkAffected(result, "job "+id)
}

// DeleteJobsByInstance removes all jobs of an instance.
func (t *sqlTx) DeleteJobsByInstance(ctx context.Context, instanceID string) error {
	if _, err := t.q.ExecContext(ctx, "DELETE FROM jobs WHERE instance_id = ?", instanceID); err != nil {
		return fmt.Errorf("delete jobs: %w", err)
	}
	return nil
}
