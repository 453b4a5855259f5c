package api

import (
	"context"
	"time"
)

// Engine is the high-level flow engine API.
type Engine interface {
	// RegisterFlow registers a definition by name.
	RegisterFlow(def FlowDefinition) error

	// Run creates a flow run with the given parameters and executes it to
	// completion (synchronously), applying the flow's retry policy.
	Run(ctx context.Context, name string, params any) (*FlowRun, error)

	// Submit creates a run in SCHEDULED state without executing it.
	// The run is picked up later, typically by a worker, once 'at' has
	// passed. Submitting with a past (or zero) time schedules the run for
	// immediate execution.
	Submit(ctx context.Context, name string, params any, at time.Time) (*FlowRun, error)

	// RunScheduled executes a previously submitted run. Only runs in
	// SCHEDULED state can be started this way.
	RunScheduled(ctx context.Context, id string) (*FlowRun, error)

	// GetRun looks up a flow run by ID.
	// Returns an error if the run is not found.
	GetRun(ctx context.Context, id string) (*FlowRun, error)

	// ListRuns returns flow runs matching the given filter.
	// A zero-valued filter returns all runs.
	ListRuns(ctx context.Context, filter RunFilter) ([]*FlowRun, error)

	// RetryRun re-executes a FAILED or CRASHED run with its stored
	// parameters. The same run ID is reused; RunCount keeps accumulating
	// across retries.
	RetryRun(ctx context.Context, id string) (*FlowRun, error)

	// Cancel moves a non-terminal run to CANCELLED. Cancelling does not
	// interrupt an attempt that is already executing in another goroutine;
	// it prevents the run from being started or retried.
	Cancel(ctx context.Context, id string) (*FlowRun, error)

	// ListEvents returns the append-only history of a run, oldest first.
	ListEvents(ctx context.Context, id string) ([]RunEvent, error)
}
