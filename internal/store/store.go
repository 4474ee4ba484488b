package store

import (
	"context"
	"errors"
	"time"

	"github.com/seantiz/showcase/internal/model"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when inserting an entity whose key is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrSchemaMissing is returned when schema update is disabled and the
	// database does not contain the engine tables.
	ErrSchemaMissing = errors.New("database schema missing")
)

// Schema update modes, named after the engine configuration values.
const (
	SchemaUpdateTrue       = "true"
	SchemaUpdateFalse      = "false"
	SchemaUpdateCreateDrop = "create-drop"
)

// InstanceFilter narrows process instance queries. Zero fields match everything.
type InstanceFilter struct {
	DefinitionID  string
	DefinitionKey string
	BusinessKey   string
	ActivityID    string
	State         string
	Limit         int
	Offset        int
}

// TaskFilter narrows user task queries. Zero fields match everything.
type TaskFilter struct {
	InstanceID     string
	ActivityID     string
	Assignee       string
	CandidateGroup string
	Limit          int
	Offset         int
}

// JobFilter narrows job queries. Zero fields match everything.
type JobFilter struct {
	InstanceID    string
	OnlyIncidents bool
	Executable    bool
	Now           time.Time
	Limit         int
	Offset        int
}

// DefinitionStats aggregates runtime counts for one process definition.
type DefinitionStats struct {
	DefinitionID string `json:"id"`
	Key          string `json:"key"`
	Name         string `json:"name"`
	Version      int    `json:"version"`
	Instances    int    `json:"instances"`
	Tasks        int    `json:"tasks"`
	Jobs         int    `json:"jobs"`
	Incidents    int    `json:"incidents"`
}

// Tx is the set of persistence operations of the engine. Every operation of a
// Tx obtained from InTx runs inside one database transaction.
type Tx interface {
	CreateDeployment(ctx context.Context, d *model.Deployment) error
	ListDeployments(ctx context.Context) ([]*model.Deployment, error)
	CreateResource(ctx context.Context, r *model.Resource) error
	GetResource(ctx context.Context, deploymentID, name string) (*model.Resource, error)

	CreateProcessDefinition(ctx context.Context, d *model.ProcessDefinition) error
	GetProcessDefinition(ctx context.Context, id string) (*model.ProcessDefinition, error)
	LatestProcessDefinition(ctx context.Context, key string) (*model.ProcessDefinition, error)
	ListProcessDefinitions(ctx context.Context) ([]*model.ProcessDefinition, error)

	CreateProcessInstance(ctx context.Context, p *model.ProcessInstance) error
	GetProcessInstance(ctx context.Context, id string) (*model.ProcessInstance, error)
	SetInstanceActivity(ctx context.Context, id, activityID string) error
	EndProcessInstance(ctx context.Context, id, state string, endedAt time.Time) error
	ListProcessInstances(ctx context.Context, f InstanceFilter) ([]*model.ProcessInstance, error)
	CountProcessInstances(ctx context.Context, f InstanceFilter) (int, error)

	SetVariable(ctx context.Context, instanceID, name string, v model.TypedValue) error
	GetVariables(ctx context.Context, instanceID string) (model.Variables, error)

	CreateTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]*model.Task, error)
	SetTaskAssignee(ctx context.Context, id, assignee string) error
	DeleteTask(ctx context.Context, id string) error
	DeleteTasksByInstance(ctx context.Context, instanceID string) error

	CreateJob(ctx context.Context, j *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, f JobFilter) ([]*model.Job, error)
	AcquireJobs(ctx context.Context, owner string, now, lockUntil time.Time, limit int) ([]*model.Job, error)
	UpdateJob(ctx context.Context, j *model.Job) error
	DeleteJob(ctx context.Context, id string) error
	DeleteJobsByInstance(ctx context.Context, instanceID string) error

	CreateActivityInstance(ctx context.Context, a *model.ActivityInstance) error
	EndActivityInstance(ctx context.Context, instanceID, activityID string, endedAt time.Time) error
	ListActivityInstances(ctx context.Context, instanceID string) ([]*model.ActivityInstance, error)

	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int, error)

	TableCounts(ctx context.Context) (map[string]int, error)
	DefinitionStats(ctx context.Context) ([]DefinitionStats, error)
}

// Store defines the persistence layer of the engine. Operations called on
// the Store directly run outside any transaction.
type Store interface {
	Tx

	// InTx runs fn inside one transaction, committing when fn returns nil
	// and rolling back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}
