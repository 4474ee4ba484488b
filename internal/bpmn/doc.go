// Package bpmn reads BPMN 2.0 process documents into an executable process
// model. Only the subset of BPMN the engine can run is accepted: none start
// events, end events, service tasks, user tasks, exclusive gateways and
// sequence flows with optional condition expressions.
package bpmn
