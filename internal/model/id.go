package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string used as the identifier of every persisted
// engine entity (deployments, definitions, instances, tasks, jobs, history).
func NewID() string {
	return ulid.Make().String()
}
