package prefect

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/hboehmer-IW/prefect/internal/taskqueue"
	"github.com/hboehmer-IW/prefect/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory task queue, and a Worker
// to provide a simple "local runner" for development and debugging.
//
// Typical usage:
//
//	runner := prefect.NewLocalRunner()
//	flow := prefect.NewFlow("my-flow", myFn).WithRetries(3, time.Second)
//	flow.MustRegister(runner.Engine)
//
//	// Synchronous run (no queue/worker involved):
//	run, err := prefect.Run(ctx, runner.Engine, flow.Name(), params)
//
//	// Asynchronous run:
//	_ = runner.StartWorkers(ctx, 2)
//	_ = runner.RunAsync(ctx, flow.Name(), params)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory flow engine used by this runner.
	Engine Engine

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue using Engine.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine,
// in-memory queue, and a Worker.
//
// This is intended for local development, tests, and simple single-process
// deployments.
func NewLocalRunner() *LocalRunner {
	return NewLocalRunnerWithObserver(nil)
}

// NewLocalRunnerWithObserver is NewLocalRunner with an Observer attached to
// the engine.
func NewLocalRunnerWithObserver(obs Observer) *LocalRunner {
	eng := NewInMemoryEngineWithObserver(obs)
	q := taskqueue.NewInMemoryQueue(1024)
	w := worker.New(eng, q)

	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: w,
	}
}

// StartWorkers starts 'concurrency' worker goroutines that continuously call
// Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("prefect: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					// For local runner we treat cancellation as a clean shutdown signal.
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// For other errors, log and keep going so a single bad task
					// doesn't kill the worker loop.
					log.Printf("prefect: local runner worker error: %v", err)
					continue
				}
				if !processed {
					continue
				}
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// RunAsync enqueues a task to run the given flow asynchronously.
// The flow must already be registered on LocalRunner.Engine.
func (r *LocalRunner) RunAsync(ctx context.Context, flowName string, params any) error {
	return r.Worker.EnqueueRunFlow(ctx, flowName, params)
}

// RunAt submits a run for the given time and enqueues a task to execute it.
// The returned run is in SCHEDULED state until a worker picks it up.
func (r *LocalRunner) RunAt(ctx context.Context, flowName string, params any, at time.Time) (*FlowRun, error) {
	return r.Worker.EnqueueRunFlowAt(ctx, flowName, params, at)
}
