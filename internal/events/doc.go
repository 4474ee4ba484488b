// Package events carries engine events out of the engine after each command
// commits: to in-process subscribers through a Broker (the cockpit event
// stream) and to external consumers through a Publisher.
package events
