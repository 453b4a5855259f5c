package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hboehmer-IW/prefect/pkg/api"
)

func echoFlow(name string) api.FlowDefinition {
	return api.FlowDefinition{
		Name: name,
		Fn: func(ctx context.Context, params any) (any, error) {
			return params, nil
		},
	}
}

func TestRegisterFlow_Validation(t *testing.T) {
	eng := NewInMemoryEngine()

	if err := eng.RegisterFlow(api.FlowDefinition{}); err == nil {
		t.Fatal("expected error for empty name")
	}

	if err := eng.RegisterFlow(api.FlowDefinition{Name: "no-fn"}); err == nil {
		t.Fatal("expected error for nil function")
	}

	bad := echoFlow("bad-retries")
	bad.Retry = &api.RetryPolicy{Retries: -1}
	if err := eng.RegisterFlow(bad); err == nil {
		t.Fatal("expected error for negative retries")
	}

	if err := eng.RegisterFlow(echoFlow("dup")); err != nil {
		t.Fatalf("RegisterFlow failed: %v", err)
	}
	err := eng.RegisterFlow(echoFlow("dup"))
	if err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}
}

func TestRun_UnknownFlow(t *testing.T) {
	eng := NewInMemoryEngine()

	_, err := eng.Run(context.Background(), "nope", nil)
	if err == nil || !strings.Contains(err.Error(), "unknown flow") {
		t.Fatalf("expected unknown flow error, got %v", err)
	}
	if !errors.Is(err, api.ErrFlowNotFound) {
		t.Fatalf("expected ErrFlowNotFound, got %v", err)
	}
}

func TestRun_Bookkeeping(t *testing.T) {
	ctx := context.Background()
	eng := NewInMemoryEngine()

	var calls int
	def := api.FlowDefinition{
		Name: "bookkeeping",
		Fn: func(ctx context.Context, params any) (any, error) {
			calls++
			time.Sleep(5 * time.Millisecond)
			if calls < 3 {
				return nil, errors.New("not yet")
			}
			return "done", nil
		},
		Retry: &api.RetryPolicy{Retries: 4},
	}
	if err := eng.RegisterFlow(def); err != nil {
		t.Fatalf("RegisterFlow failed: %v", err)
	}

	run, err := eng.Run(ctx, "bookkeeping", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if run.RunCount != 3 {
		t.Fatalf("expected RunCount 3, got %d", run.RunCount)
	}
	if run.StartTime == nil {
		t.Fatal("expected StartTime to be set")
	}
	if run.EndTime == nil {
		t.Fatal("expected EndTime to be set")
	}
	if run.ExpectedStartTime == nil {
		t.Fatal("expected ExpectedStartTime to be set")
	}
	// Three attempts of ~5ms each spent in RUNNING.
	if run.TotalRunTime < 15*time.Millisecond {
		t.Fatalf("expected TotalRunTime >= 15ms, got %v", run.TotalRunTime)
	}
	if run.EndTime.Before(*run.StartTime) {
		t.Fatalf("EndTime %v before StartTime %v", run.EndTime, run.StartTime)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	eng := NewInMemoryEngine()

	_, err := eng.GetRun(context.Background(), "missing")
	if !errors.Is(err, api.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestStateConflictsWrapSentinel(t *testing.T) {
	ctx := context.Background()
	eng := NewInMemoryEngine()

	if err := eng.RegisterFlow(echoFlow("conflict")); err != nil {
		t.Fatalf("RegisterFlow failed: %v", err)
	}
	run, err := eng.Run(ctx, "conflict", "x")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Retrying or cancelling a completed run conflicts with its state.
	if _, err := eng.RetryRun(ctx, run.ID); !errors.Is(err, api.ErrRunStateConflict) {
		t.Fatalf("expected ErrRunStateConflict from RetryRun, got %v", err)
	}
	if _, err := eng.Cancel(ctx, run.ID); !errors.Is(err, api.ErrRunStateConflict) {
		t.Fatalf("expected ErrRunStateConflict from Cancel, got %v", err)
	}
}

func TestListRuns_Filter(t *testing.T) {
	ctx := context.Background()
	eng := NewInMemoryEngine()

	if err := eng.RegisterFlow(echoFlow("alpha")); err != nil {
		t.Fatalf("RegisterFlow failed: %v", err)
	}
	failing := api.FlowDefinition{
		Name: "beta",
		Fn: func(ctx context.Context, params any) (any, error) {
			return nil, errors.New("boom")
		},
	}
	if err := eng.RegisterFlow(failing); err != nil {
		t.Fatalf("RegisterFlow failed: %v", err)
	}

	if _, err := eng.Run(ctx, "alpha", 1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := eng.Run(ctx, "alpha", 2); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := eng.Run(ctx, "beta", nil); err == nil {
		t.Fatal("expected beta run to fail")
	}

	all, err := eng.ListRuns(ctx, api.RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}

	completed, err := eng.ListRuns(ctx, api.RunFilter{StateType: api.StateCompleted})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(completed) != 2 {
		t.Fatalf("expected 2 completed runs, got %d", len(completed))
	}

	failed, err := eng.ListRuns(ctx, api.RunFilter{FlowName: "beta", StateType: api.StateFailed})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed beta run, got %d", len(failed))
	}
}

func TestSubmitAndRunScheduled(t *testing.T) {
	ctx := context.Background()
	eng := NewInMemoryEngine()

	if err := eng.RegisterFlow(echoFlow("deferred")); err != nil {
		t.Fatalf("RegisterFlow failed: %v", err)
	}

	at := time.Now().Add(time.Hour)
	run, err := eng.Submit(ctx, "deferred", "payload", at)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if run.StateType != api.StateScheduled {
		t.Fatalf("expected SCHEDULED, got %q", run.StateType)
	}
	if run.NextScheduledStartTime == nil || !run.NextScheduledStartTime.Equal(at) {
		t.Fatalf("expected NextScheduledStartTime %v, got %v", at, run.NextScheduledStartTime)
	}
	if run.ExpectedStartTime == nil || !run.ExpectedStartTime.Equal(at) {
		t.Fatalf("expected ExpectedStartTime %v, got %v", at, run.ExpectedStartTime)
	}
	if run.RunCount != 0 {
		t.Fatalf("a submitted run must not have executed, RunCount=%d", run.RunCount)
	}

	done, err := eng.RunScheduled(ctx, run.ID)
	if err != nil {
		t.Fatalf("RunScheduled failed: %v", err)
	}
	if done.StateType != api.StateCompleted {
		t.Fatalf("expected COMPLETED, got %q", done.StateType)
	}
	if done.Output != "payload" {
		t.Fatalf("unexpected output: %v", done.Output)
	}
	if done.NextScheduledStartTime != nil {
		t.Fatalf("NextScheduledStartTime should be cleared, got %v", done.NextScheduledStartTime)
	}

	// A completed run cannot be started again.
	if _, err := eng.RunScheduled(ctx, run.ID); err == nil {
		t.Fatal("expected error starting a non-scheduled run")
	}
}

func TestRetryRun(t *testing.T) {
	ctx := context.Background()
	eng := NewInMemoryEngine()

	var calls int
	def := api.FlowDefinition{
		Name: "recoverable",
		Fn: func(ctx context.Context, params any) (any, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("first run fails")
			}
			return "recovered", nil
		},
	}
	if err := eng.RegisterFlow(def); err != nil {
		t.Fatalf("RegisterFlow failed: %v", err)
	}

	run, err := eng.Run(ctx, "recoverable", nil)
	if err == nil {
		t.Fatal("expected first run to fail")
	}
	if run.StateType != api.StateFailed {
		t.Fatalf("expected FAILED, got %q", run.StateType)
	}

	retried, err := eng.RetryRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("RetryRun failed: %v", err)
	}
	if retried.ID != run.ID {
		t.Fatalf("retry must reuse the run ID: %s vs %s", retried.ID, run.ID)
	}
	if retried.StateType != api.StateCompleted {
		t.Fatalf("expected COMPLETED, got %q", retried.StateType)
	}
	if retried.Output != "recovered" {
		t.Fatalf("unexpected output: %v", retried.Output)
	}
	if retried.Err != nil {
		t.Fatalf("expected Err cleared, got %v", retried.Err)
	}
	// RunCount accumulates across the manual retry.
	if retried.RunCount != 2 {
		t.Fatalf("expected RunCount 2, got %d", retried.RunCount)
	}
	if retried.EndTime == nil {
		t.Fatal("expected EndTime to be set again")
	}

	// Only FAILED or CRASHED runs can be retried.
	if _, err := eng.RetryRun(ctx, run.ID); err == nil {
		t.Fatal("expected error retrying a completed run")
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	eng := NewInMemoryEngine()

	if err := eng.RegisterFlow(echoFlow("cancellable")); err != nil {
		t.Fatalf("RegisterFlow failed: %v", err)
	}

	run, err := eng.Submit(ctx, "cancellable", nil, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	cancelled, err := eng.Cancel(ctx, run.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.StateType != api.StateCancelled {
		t.Fatalf("expected CANCELLED, got %q", cancelled.StateType)
	}
	if cancelled.EndTime == nil {
		t.Fatal("expected EndTime on a cancelled run")
	}

	// Terminal runs cannot be cancelled again.
	if _, err := eng.Cancel(ctx, run.ID); err == nil {
		t.Fatal("expected error cancelling a terminal run")
	}

	// A cancelled run cannot be started.
	if _, err := eng.RunScheduled(ctx, run.ID); err == nil {
		t.Fatal("expected error starting a cancelled run")
	}
}

func TestListEvents_History(t *testing.T) {
	ctx := context.Background()
	eng := NewInMemoryEngine()

	var calls int
	def := api.FlowDefinition{
		Name: "eventful",
		Fn: func(ctx context.Context, params any) (any, error) {
			calls++
			if calls < 2 {
				return nil, errors.New("transient")
			}
			return "ok", nil
		},
		Retry: &api.RetryPolicy{Retries: 3},
	}
	if err := eng.RegisterFlow(def); err != nil {
		t.Fatalf("RegisterFlow failed: %v", err)
	}

	run, err := eng.Run(ctx, "eventful", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	events, err := eng.ListEvents(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}

	var types []api.EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}

	want := []api.EventType{
		api.EventRunStarted,
		api.EventAttemptStarted,
		api.EventAttemptFailed,
		api.EventAwaitingRetry,
		api.EventAttemptStarted,
		api.EventAttemptSucceeded,
		api.EventRunCompleted,
	}
	if len(types) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(types), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s (full: %v)", i, want[i], types[i], types)
		}
	}

	// Attempt numbers on the attempt events are 1-based.
	if events[1].Attempt != 1 || events[4].Attempt != 2 {
		t.Fatalf("unexpected attempt numbers: %+v", events)
	}

	if _, err := eng.ListEvents(ctx, "missing"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}
