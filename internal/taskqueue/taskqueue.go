package taskqueue

import (
	"context"
	"time"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	// TaskTypeRunFlow starts a fresh run of a named flow.
	TaskTypeRunFlow TaskType = "run-flow"

	// TaskTypeStartRun executes a previously submitted (SCHEDULED) run.
	TaskTypeStartRun TaskType = "start-run"
)

// Task represents a unit of work for the worker.
type Task struct {
	ID   string
	Type TaskType

	// For run-flow tasks
	FlowName string

	// For start-run tasks
	RunID string

	// Payload is task-type specific:
	//   - run-flow: RunFlowPayload (the flow parameters)
	//   - start-run: unused
	Payload any

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means "immediately" (i.e., at enqueue time).
	NotBefore time.Time

	// Attempts counts how many times a worker has picked up this task.
	Attempts int
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is available
	// or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
