package events

import "time"

// Event types emitted by the engine.
const (
	ProcessInstanceStarted = "ProcessInstanceStarted"
	ProcessInstanceEnded   = "ProcessInstanceEnded"
	ActivityStarted        = "ActivityStarted"
	ActivityEnded          = "ActivityEnded"
	TaskCreated            = "TaskCreated"
	TaskCompleted          = "TaskCompleted"
	JobCreated             = "JobCreated"
	JobFailed              = "JobFailed"
)

// Event describes one state change of a process instance.
type Event struct {
	Type                 string    `json:"type"`
	Engine               string    `json:"engine"`
	ProcessInstanceID    string    `json:"process_instance_id"`
	ProcessDefinitionKey string    `json:"process_definition_key,omitempty"`
	ActivityID           string    `json:"activity_id,omitempty"`
	Time                 time.Time `json:"time"`
	Detail               string    `json:"detail,omitempty"`
}
