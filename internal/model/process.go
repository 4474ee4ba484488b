package model

import (
	"errors"
	"time"
)

// ErrInvalidTransition is returned when a process instance state transition is not allowed.
var ErrInvalidTransition = errors.New("invalid state transition")

// Process instance state constants.
const (
	StateActive     = "active"
	StateCompleted  = "completed"
	StateTerminated = "terminated"
)

// Activity type constants, as recorded in history.
const (
	ActivityStartEvent       = "startEvent"
	ActivityEndEvent         = "endEvent"
	ActivityServiceTask      = "serviceTask"
	ActivityUserTask         = "userTask"
	ActivityExclusiveGateway = "exclusiveGateway"
)

// Job type constants.
const (
	JobAsyncContinuation = "async-continuation"
)

// DefaultJobRetries is the number of attempts a job gets before it becomes an incident.
const DefaultJobRetries = 3

// validTransitions maps each state to the set of states it may transition to.
var validTransitions = map[string]map[string]bool{
	StateActive: {
		StateCompleted:  true,
		StateTerminated: true,
	},
}

// ValidTransition reports whether transitioning from one state to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Deployment groups the resources deployed together.
type Deployment struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Source     string    `json:"source"`
	DeployedAt time.Time `json:"deployment_time"`
}

// Resource is one named document of a deployment.
type Resource struct {
	ID           string `json:"id"`
	DeploymentID string `json:"deployment_id"`
	Name         string `json:"name"`
	Checksum     string `json:"checksum"`
	Content      []byte `json:"-"`
}

// ProcessDefinition is one deployed version of a process, identified by key and version.
type ProcessDefinition struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Version      int       `json:"version"`
	DeploymentID string    `json:"deployment_id"`
	ResourceName string    `json:"resource"`
	Checksum     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProcessInstance is one execution of a process definition. ActivityID is the
// node the instance is currently waiting in (empty once it has ended).
type ProcessInstance struct {
	ID            string     `json:"id"`
	DefinitionID  string     `json:"definition_id"`
	DefinitionKey string     `json:"definition_key"`
	BusinessKey   string     `json:"business_key,omitempty"`
	ActivityID    string     `json:"activity_id,omitempty"`
	State         string     `json:"state"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// Ended reports whether the instance reached a terminal state.
func (p *ProcessInstance) Ended() bool {
	return p.State == StateCompleted || p.State == StateTerminated
}

// Task is an open user task waiting to be completed.
type Task struct {
	ID              string    `json:"id"`
	InstanceID      string    `json:"process_instance_id"`
	DefinitionID    string    `json:"process_definition_id"`
	ActivityID      string    `json:"task_definition_key"`
	Name            string    `json:"name"`
	Assignee        string    `json:"assignee,omitempty"`
	CandidateGroups string    `json:"candidate_groups,omitempty"`
	CreatedAt       time.Time `json:"created"`
}

// Job is a unit of asynchronous continuation work picked up by the job executor.
type Job struct {
	ID            string     `json:"id"`
	InstanceID    string     `json:"process_instance_id"`
	ActivityID    string     `json:"activity_id"`
	Type          string     `json:"type"`
	Retries       int        `json:"retries"`
	LockOwner     string     `json:"lock_owner,omitempty"`
	LockExpiresAt *time.Time `json:"lock_expiration_time,omitempty"`
	Exception     string     `json:"exception_message,omitempty"`
	DueAt         time.Time  `json:"due_date"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Incident reports whether the job ran out of retries.
func (j *Job) Incident() bool {
	return j.Retries <= 0
}

// ActivityInstance is the history record of one node entered by a process instance.
type ActivityInstance struct {
	ID           string     `json:"id"`
	InstanceID   string     `json:"process_instance_id"`
	ActivityID   string     `json:"activity_id"`
	ActivityType string     `json:"activity_type"`
	StartedAt    time.Time  `json:"start_time"`
	EndedAt      *time.Time `json:"end_time,omitempty"`
}

// User is an administrative user of the web applications.
type User struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
