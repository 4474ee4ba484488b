// Package engine is the embedded process engine. It deploys BPMN documents,
// runs process instances one token at a time until they reach a wait state,
// and exposes the repository, runtime, task, history and management services.
//
// Every service command runs inside one store transaction. Engine events
// produced by a command are dispatched only after it commits.
package engine
