package worker

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hboehmer-IW/prefect/internal/engine"
	"github.com/hboehmer-IW/prefect/internal/taskqueue"
	"github.com/hboehmer-IW/prefect/pkg/api"
)

type engineFactory func(t *testing.T) api.Engine

func inMemoryEngine(t *testing.T) api.Engine {
	t.Helper()
	return engine.NewInMemoryEngine()
}

func sqliteEngine(t *testing.T) api.Engine {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	eng, err := engine.NewSQLiteEngine(db)
	if err != nil {
		t.Fatalf("NewSQLiteEngine failed: %v", err)
	}
	return eng
}

func addOneFlow() api.FlowDefinition {
	return api.FlowDefinition{
		Name: "async-add",
		Fn: func(ctx context.Context, params any) (any, error) {
			n := params.(int)
			return n + 1, nil
		},
	}
}

func TestWorker_ProcessesRunFlowTasks(t *testing.T) {
	factories := map[string]engineFactory{
		"in-memory": inMemoryEngine,
		"sqlite":    sqliteEngine,
	}

	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			eng := factory(t)
			queue := taskqueue.NewInMemoryQueue(10)
			w := New(eng, queue)

			if err := eng.RegisterFlow(addOneFlow()); err != nil {
				t.Fatalf("RegisterFlow failed: %v", err)
			}

			if err := w.EnqueueRunFlow(ctx, "async-add", 41); err != nil {
				t.Fatalf("EnqueueRunFlow failed: %v", err)
			}

			processed, err := w.ProcessOne(ctx)
			if err != nil {
				t.Fatalf("ProcessOne failed: %v", err)
			}
			if !processed {
				t.Fatal("expected a task to be processed")
			}

			runs, err := eng.ListRuns(ctx, api.RunFilter{FlowName: "async-add"})
			if err != nil {
				t.Fatalf("ListRuns failed: %v", err)
			}
			if len(runs) != 1 {
				t.Fatalf("expected 1 run, got %d", len(runs))
			}
			if runs[0].StateType != api.StateCompleted {
				t.Fatalf("expected COMPLETED, got %q", runs[0].StateType)
			}
			if runs[0].Output != 42 {
				t.Fatalf("unexpected output: %v", runs[0].Output)
			}
		})
	}
}

func TestWorker_EnqueueRunFlowAt(t *testing.T) {
	ctx := context.Background()
	eng := engine.NewInMemoryEngine()
	queue := taskqueue.NewInMemoryQueue(10)
	w := New(eng, queue)

	if err := eng.RegisterFlow(addOneFlow()); err != nil {
		t.Fatalf("RegisterFlow failed: %v", err)
	}

	run, err := w.EnqueueRunFlowAt(ctx, "async-add", 1, time.Now())
	if err != nil {
		t.Fatalf("EnqueueRunFlowAt failed: %v", err)
	}

	// The run exists in SCHEDULED state before any worker touches it.
	got, err := eng.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.StateType != api.StateScheduled {
		t.Fatalf("expected SCHEDULED, got %q", got.StateType)
	}

	processed, err := w.ProcessOne(ctx)
	if err != nil {
		t.Fatalf("ProcessOne failed: %v", err)
	}
	if !processed {
		t.Fatal("expected a task to be processed")
	}

	got, err = eng.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.StateType != api.StateCompleted {
		t.Fatalf("expected COMPLETED, got %q", got.StateType)
	}
	if got.Output != 2 {
		t.Fatalf("unexpected output: %v", got.Output)
	}
}

func TestWorker_CancelledRunIsNotAWorkerError(t *testing.T) {
	ctx := context.Background()
	eng := engine.NewInMemoryEngine()
	queue := taskqueue.NewInMemoryQueue(10)
	w := New(eng, queue)

	if err := eng.RegisterFlow(addOneFlow()); err != nil {
		t.Fatalf("RegisterFlow failed: %v", err)
	}

	run, err := w.EnqueueRunFlowAt(ctx, "async-add", 1, time.Now().Add(20*time.Millisecond))
	if err != nil {
		t.Fatalf("EnqueueRunFlowAt failed: %v", err)
	}
	if _, err := eng.Cancel(ctx, run.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	processed, err := w.ProcessOne(ctx)
	if err != nil {
		t.Fatalf("processing a cancelled run should not fail: %v", err)
	}
	if !processed {
		t.Fatal("expected the task to be consumed")
	}
}

func TestWorker_ProcessOneRespectsContext(t *testing.T) {
	eng := engine.NewInMemoryEngine()
	queue := taskqueue.NewInMemoryQueue(1)
	w := New(eng, queue)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	processed, err := w.ProcessOne(ctx)
	if processed {
		t.Fatal("no task should have been processed")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestWorker_RetryThroughQueue(t *testing.T) {
	ctx := context.Background()
	eng := engine.NewInMemoryEngine()
	queue := taskqueue.NewInMemoryQueue(10)
	w := New(eng, queue)

	var calls int
	def := api.FlowDefinition{
		Name: "flaky-task",
		Fn: func(ctx context.Context, params any) (any, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("transient")
			}
			return "ok", nil
		},
		Retry: &api.RetryPolicy{Retries: 2, RetryDelay: 5 * time.Millisecond},
	}
	if err := eng.RegisterFlow(def); err != nil {
		t.Fatalf("RegisterFlow failed: %v", err)
	}

	if err := w.EnqueueRunFlow(ctx, "flaky-task", nil); err != nil {
		t.Fatalf("EnqueueRunFlow failed: %v", err)
	}
	if _, err := w.ProcessOne(ctx); err != nil {
		t.Fatalf("ProcessOne failed: %v", err)
	}

	if calls != 3 {
		t.Fatalf("expected 3 invocations, got %d", calls)
	}

	runs, err := eng.ListRuns(ctx, api.RunFilter{FlowName: "flaky-task"})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].StateType != api.StateCompleted {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if runs[0].RunCount != 3 {
		t.Fatalf("expected RunCount 3, got %d", runs[0].RunCount)
	}
}
