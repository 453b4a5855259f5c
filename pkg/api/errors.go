package api

import "errors"

// Sentinel errors reported by Engine operations. The engine wraps them with
// run and flow identifiers; match with errors.Is.
var (
	// ErrFlowNotFound is returned when no flow is registered under a name.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrRunNotFound is returned when no run exists for an ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunStateConflict is returned when an operation is not allowed in
	// the run's current state, such as retrying a completed run.
	ErrRunStateConflict = errors.New("run state conflict")
)
