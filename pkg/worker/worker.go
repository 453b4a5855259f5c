package worker

import (
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/hboehmer-IW/prefect/internal/taskqueue"
	"github.com/hboehmer-IW/prefect/pkg/api"
)

func init() {
	gob.Register(RunFlowPayload{})
}

// RunFlowPayload is the payload for a "run-flow" task.
type RunFlowPayload struct {
	Params any
}

// Worker pulls tasks from a Queue and executes them using an Engine.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
}

// New creates a new Worker.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return &Worker{
		engine: engine,
		queue:  queue,
	}
}

// EnqueueRunFlow enqueues a task to run a flow asynchronously.
// It does NOT run the flow itself; that is done by ProcessOne.
func (w *Worker) EnqueueRunFlow(ctx context.Context, flowName string, params any) error {
	t := taskqueue.Task{
		ID:       "", // optional; could be filled with a UUID later
		Type:     taskqueue.TaskTypeRunFlow,
		FlowName: flowName,
		Payload: RunFlowPayload{
			Params: params,
		},
		EnqueuedAt: time.Now(),
	}
	return w.queue.Enqueue(ctx, t)
}

// EnqueueRunFlowAt submits a run in SCHEDULED state and enqueues a task to
// execute it no earlier than 'at'. The returned run can be inspected (or
// cancelled) while it waits.
func (w *Worker) EnqueueRunFlowAt(ctx context.Context, flowName string, params any, at time.Time) (*api.FlowRun, error) {
	run, err := w.engine.Submit(ctx, flowName, params, at)
	if err != nil {
		return nil, err
	}

	if err := w.EnqueueStartRunAt(ctx, run.ID, at); err != nil {
		return run, err
	}
	return run, nil
}

// EnqueueStartRun enqueues a task to execute an already submitted run as
// soon as a worker picks it up.
func (w *Worker) EnqueueStartRun(ctx context.Context, runID string) error {
	return w.EnqueueStartRunAt(ctx, runID, time.Time{})
}

// EnqueueStartRunAt enqueues a task to execute an already submitted run no
// earlier than 'at'. A zero 'at' means immediately.
func (w *Worker) EnqueueStartRunAt(ctx context.Context, runID string, at time.Time) error {
	t := taskqueue.Task{
		ID:         "",
		Type:       taskqueue.TaskTypeStartRun,
		RunID:      runID,
		EnqueuedAt: time.Now(),
		NotBefore:  at,
	}
	return w.queue.Enqueue(ctx, t)
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false, err != nil: no task processed (context cancelled or dequeue error)
//   - processed == true: a task was processed; err indicates whether the handler succeeded.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	// The bundled queues hold tasks back until NotBefore; enforce it here
	// too so third-party Queue implementations don't have to.
	if wait := time.Until(task.NotBefore); wait > 0 {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case <-time.After(wait):
		}
	}

	switch task.Type {
	case taskqueue.TaskTypeRunFlow:
		payload, ok := task.Payload.(RunFlowPayload)
		if !ok && task.Payload != nil {
			return true, errors.New("invalid payload type for run-flow task")
		}
		_, runErr := w.engine.Run(ctx, task.FlowName, payload.Params)
		return true, runErr

	case taskqueue.TaskTypeStartRun:
		_, runErr := w.engine.RunScheduled(ctx, task.RunID)
		if runErr != nil {
			// A cancelled run is not a worker failure; the task simply
			// has nothing left to do.
			run, getErr := w.engine.GetRun(ctx, task.RunID)
			if getErr == nil && run.StateType == api.StateCancelled {
				return true, nil
			}
		}
		return true, runErr

	default:
		// Unknown task type; mark as processed but return an error so this isn't silently ignored.
		return true, errors.New("unknown task type: " + string(task.Type))
	}
}

// Run processes tasks until ctx is cancelled. Handler errors are reported
// through onErr (if non-nil) and do not stop the loop.
func (w *Worker) Run(ctx context.Context, onErr func(error)) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if err != nil && !processed {
			return err
		}
		if err != nil && onErr != nil {
			onErr(err)
		}
	}
}
