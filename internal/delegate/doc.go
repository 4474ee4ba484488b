// Package delegate defines the callback interface the process engine invokes
// when execution reaches a service task, the registry that maps delegate
// names used in process documents to implementations, and the delegates
// shipped with the showcase.
package delegate
