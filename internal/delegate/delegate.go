package delegate

import (
	"context"

	"github.com/seantiz/showcase/internal/model"
)

// Execution is the view of a running process instance handed to a delegate.
// Variable changes made through SetVariable are persisted together with the
// rest of the engine command.
type Execution interface {
	ProcessInstanceID() string
	ProcessDefinitionID() string
	ProcessDefinitionKey() string
	ActivityID() string
	BusinessKey() string

	// Variable returns the named variable and whether it is set.
	Variable(name string) (model.TypedValue, bool)

	// Variables returns a copy of all variables of the instance.
	Variables() model.Variables

	// SetVariable creates or replaces a variable.
	SetVariable(name string, value model.TypedValue) error
}

// Delegate is the interface that all service task implementations must implement.
type Delegate interface {
	// Execute runs the task. A returned error aborts the engine command and
	// rolls back everything it did.
	Execute(ctx context.Context, exec Execution) error
}

// Func adapts an ordinary function to the Delegate interface.
type Func func(ctx context.Context, exec Execution) error

// Execute calls f(ctx, exec).
func (f Func) Execute(ctx context.Context, exec Execution) error {
	return f(ctx, exec)
}
