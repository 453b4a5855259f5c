package prefect

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newBundle(t *testing.T) *WorkerBundle {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	bundle, err := NewSQLiteBundle(db)
	if err != nil {
		t.Fatalf("NewSQLiteBundle failed: %v", err)
	}
	return bundle
}

func TestSQLiteBundle_AsyncRun(t *testing.T) {
	bundle := newBundle(t)
	ctx := context.Background()

	NewFlow("durable-add", func(ctx context.Context, params any) (any, error) {
		return params.(int) + 1, nil
	}).MustRegister(bundle.Engine)

	if err := bundle.Worker.EnqueueRunFlow(ctx, "durable-add", 41); err != nil {
		t.Fatalf("EnqueueRunFlow failed: %v", err)
	}
	if bundle.QueueLen() != 1 {
		t.Fatalf("expected 1 queued task, got %d", bundle.QueueLen())
	}

	processed, err := bundle.Worker.ProcessOne(ctx)
	if err != nil {
		t.Fatalf("ProcessOne failed: %v", err)
	}
	if !processed {
		t.Fatal("expected a task to be processed")
	}

	runs, err := bundle.Engine.ListRuns(ctx, RunFilter{FlowName: "durable-add"})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].StateType != StateCompleted {
		t.Fatalf("expected COMPLETED, got %q", runs[0].StateType)
	}
	if runs[0].Output != 42 {
		t.Fatalf("unexpected output: %v", runs[0].Output)
	}

	// The run's event history is durable too.
	events, err := bundle.Engine.ListEvents(ctx, runs[0].ID)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected run events to be recorded")
	}
}

func TestSQLiteBundle_ScheduledRunSurvivesInStore(t *testing.T) {
	bundle := newBundle(t)
	ctx := context.Background()

	NewFlow("later", func(ctx context.Context, params any) (any, error) {
		return "done", nil
	}).MustRegister(bundle.Engine)

	at := time.Now().Add(30 * time.Millisecond)
	run, err := bundle.Worker.EnqueueRunFlowAt(ctx, "later", nil, at)
	if err != nil {
		t.Fatalf("EnqueueRunFlowAt failed: %v", err)
	}

	// The scheduled run is visible through the engine before execution.
	got, err := bundle.Engine.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.StateType != StateScheduled {
		t.Fatalf("expected SCHEDULED, got %q", got.StateType)
	}
	if got.NextScheduledStartTime == nil {
		t.Fatal("expected NextScheduledStartTime to be set")
	}

	if _, err := bundle.Worker.ProcessOne(ctx); err != nil {
		t.Fatalf("ProcessOne failed: %v", err)
	}

	got, err = bundle.Engine.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.StateType != StateCompleted {
		t.Fatalf("expected COMPLETED, got %q", got.StateType)
	}
}
