package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hboehmer-IW/prefect/internal/orchestration"
	"github.com/hboehmer-IW/prefect/internal/persistence"
	"github.com/hboehmer-IW/prefect/pkg/api"
)

// ErrRunCancelled is reported to observers when a run is cancelled.
var ErrRunCancelled = errors.New("flow run cancelled")

// engineImpl is a simple, synchronous, in-process engine implementation.
// All state transitions go through the orchestration policy so that run
// bookkeeping (run count, run time, start/end times) stays consistent no
// matter which operation triggered the transition.
type engineImpl struct {
	flows  persistence.FlowStore
	runs   persistence.RunStore
	events persistence.EventStore

	observer api.Observer
}

// Config describes how to construct an engineImpl.
// Only used inside this package; external callers use the helper functions.
type Config struct {
	Persistence persistence.Persistence
	Events      persistence.EventStore
	Observer    api.Observer
}

func NewInMemoryEngine() api.Engine {
	return NewInMemoryEngineWithObserver(nil)
}

func NewInMemoryEngineWithObserver(obs api.Observer) api.Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{
			Flows: mem,
			Runs:  mem,
		},
		Events:   persistence.NewInMemoryEventStore(),
		Observer: obs,
	})
}

func NewSQLiteEngine(db *sql.DB) (api.Engine, error) {
	return NewSQLiteEngineWithObserver(db, nil)
}

func NewSQLiteEngineWithObserver(db *sql.DB, obs api.Observer) (api.Engine, error) {
	runs, err := persistence.NewSQLiteRunStore(db)
	if err != nil {
		return nil, err
	}
	events, err := persistence.NewSQLiteEventStore(db)
	if err != nil {
		return nil, err
	}
	// Flow definitions hold function pointers, so they remain in-memory.
	memFlows := persistence.NewInMemoryStore()

	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{
			Flows: memFlows,
			Runs:  runs,
		},
		Events:   events,
		Observer: obs,
	}), nil
}

func NewPostgresEngine(db *sql.DB) (api.Engine, error) {
	return NewPostgresEngineWithObserver(db, nil)
}

func NewPostgresEngineWithObserver(db *sql.DB, obs api.Observer) (api.Engine, error) {
	runs, err := persistence.NewPostgresRunStore(db)
	if err != nil {
		return nil, err
	}
	// Flow definitions remain in-memory, just like SQLite.
	memFlows := persistence.NewInMemoryStore()

	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{
			Flows: memFlows,
			Runs:  runs,
		},
		Events:   persistence.NewInMemoryEventStore(),
		Observer: obs,
	}), nil
}

// NewRedisEngine creates an engine that uses Redis for run persistence.
func NewRedisEngine(client *redis.Client) api.Engine {
	return NewRedisEngineWithObserver(client, nil)
}

func NewRedisEngineWithObserver(client *redis.Client, obs api.Observer) api.Engine {
	runs := persistence.NewRedisRunStore(client, "prefect:")
	memFlows := persistence.NewInMemoryStore()

	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{
			Flows: memFlows,
			Runs:  runs,
		},
		Events:   persistence.NewInMemoryEventStore(),
		Observer: obs,
	})
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	events := cfg.Events
	if events == nil {
		events = persistence.NoopEventStore{}
	}
	return &engineImpl{
		flows:    cfg.Persistence.Flows,
		runs:     cfg.Persistence.Runs,
		events:   events,
		observer: obs,
	}
}

// NewEngine returns an Engine backed by the given persistence stores and an
// in-memory event store.
func NewEngine(p persistence.Persistence) api.Engine {
	return NewEngineWithConfig(Config{
		Persistence: p,
		Events:      persistence.NewInMemoryEventStore(),
	})
}

func (e *engineImpl) RegisterFlow(def api.FlowDefinition) error {
	if def.Name == "" {
		return errors.New("flow name is required")
	}
	if def.Fn == nil {
		return errors.New("flow function is required")
	}
	if def.Retry != nil && def.Retry.Retries < 0 {
		return fmt.Errorf("flow %s: retries must be >= 0", def.Name)
	}

	// Check for duplicates via the store.
	if existing, err := e.flows.GetFlow(def.Name); err == nil && existing.Name != "" {
		return fmt.Errorf("flow already registered: %s", def.Name)
	} else if err != nil && !errors.Is(err, persistence.ErrFlowNotFound) {
		// Unexpected store error.
		return err
	}

	return e.flows.SaveFlow(def)
}

func (e *engineImpl) Run(ctx context.Context, name string, params any) (*api.FlowRun, error) {
	def, err := e.flows.GetFlow(name)
	if err != nil {
		if errors.Is(err, persistence.ErrFlowNotFound) {
			return nil, fmt.Errorf("unknown flow %s: %w", name, api.ErrFlowNotFound)
		}
		return nil, err
	}

	run := e.newRun(def.Name, params)
	e.transition(run, api.Pending())

	if err := e.runs.SaveRun(run); err != nil {
		return nil, err
	}
	e.appendEvent(run, api.EventRunStarted, 0, "")
	e.observer.OnRunStart(ctx, run)

	return e.executeFlow(ctx, def, run)
}

func (e *engineImpl) Submit(ctx context.Context, name string, params any, at time.Time) (*api.FlowRun, error) {
	def, err := e.flows.GetFlow(name)
	if err != nil {
		if errors.Is(err, persistence.ErrFlowNotFound) {
			return nil, fmt.Errorf("unknown flow %s: %w", name, api.ErrFlowNotFound)
		}
		return nil, err
	}

	if at.IsZero() {
		at = time.Now()
	}

	run := e.newRun(def.Name, params)
	e.transition(run, api.Scheduled(at))

	if err := e.runs.SaveRun(run); err != nil {
		return nil, err
	}
	e.appendEvent(run, api.EventRunScheduled, 0, at.Format(time.RFC3339))

	return run, nil
}

func (e *engineImpl) RunScheduled(ctx context.Context, id string) (*api.FlowRun, error) {
	run, err := e.getRun(id)
	if err != nil {
		return nil, err
	}
	if run.StateType != api.StateScheduled {
		return nil, fmt.Errorf("cannot start run %s in state %s: %w", id, run.StateType, api.ErrRunStateConflict)
	}

	def, err := e.flows.GetFlow(run.FlowName)
	if err != nil {
		if errors.Is(err, persistence.ErrFlowNotFound) {
			return nil, fmt.Errorf("flow definition for run %s (flow=%s): %w", id, run.FlowName, api.ErrFlowNotFound)
		}
		return nil, err
	}

	e.transition(run, api.Pending())
	if err := e.runs.UpdateRun(run); err != nil {
		return run, err
	}
	e.appendEvent(run, api.EventRunStarted, 0, "")
	e.observer.OnRunStart(ctx, run)

	return e.executeFlow(ctx, def, run)
}

func (e *engineImpl) GetRun(ctx context.Context, id string) (*api.FlowRun, error) {
	return e.getRun(id)
}

func (e *engineImpl) ListRuns(ctx context.Context, filter api.RunFilter) ([]*api.FlowRun, error) {
	return e.runs.ListRuns(persistence.RunFilter{
		FlowName:  filter.FlowName,
		StateType: filter.StateType,
	})
}

func (e *engineImpl) RetryRun(ctx context.Context, id string) (*api.FlowRun, error) {
	run, err := e.getRun(id)
	if err != nil {
		return nil, err
	}

	if run.StateType != api.StateFailed && run.StateType != api.StateCrashed {
		return nil, fmt.Errorf("cannot retry run %s in state %s: %w", id, run.StateType, api.ErrRunStateConflict)
	}

	def, err := e.flows.GetFlow(run.FlowName)
	if err != nil {
		if errors.Is(err, persistence.ErrFlowNotFound) {
			return nil, fmt.Errorf("flow definition for run %s (flow=%s): %w", id, run.FlowName, api.ErrFlowNotFound)
		}
		return nil, err
	}

	// Reset runtime fields; run count and total run time keep accumulating.
	run.Err = nil
	run.Output = nil
	e.transition(run, api.Pending())

	if err := e.runs.UpdateRun(run); err != nil {
		return run, err
	}
	e.appendEvent(run, api.EventRunRetried, 0, "")
	e.observer.OnRunStart(ctx, run)

	return e.executeFlow(ctx, def, run)
}

func (e *engineImpl) Cancel(ctx context.Context, id string) (*api.FlowRun, error) {
	run, err := e.getRun(id)
	if err != nil {
		return nil, err
	}
	if run.StateType.IsTerminal() {
		return nil, fmt.Errorf("cannot cancel run %s in terminal state %s: %w", id, run.StateType, api.ErrRunStateConflict)
	}

	e.transition(run, api.Cancelled())
	if err := e.runs.UpdateRun(run); err != nil {
		return run, err
	}
	e.appendEvent(run, api.EventRunCancelled, 0, "")
	e.observer.OnRunFailed(ctx, run, ErrRunCancelled)

	return run, nil
}

func (e *engineImpl) ListEvents(ctx context.Context, id string) ([]api.RunEvent, error) {
	if _, err := e.getRun(id); err != nil {
		return nil, err
	}
	return e.events.ListEvents(id)
}

func (e *engineImpl) getRun(id string) (*api.FlowRun, error) {
	run, err := e.runs.GetRun(id)
	if err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			return nil, fmt.Errorf("run %s: %w", id, api.ErrRunNotFound)
		}
		return nil, err
	}
	return run, nil
}

func (e *engineImpl) newRun(flowName string, params any) *api.FlowRun {
	now := time.Now()
	return &api.FlowRun{
		ID:         uuid.NewString(),
		FlowName:   flowName,
		Parameters: params,
		Created:    now,
		Updated:    now,
	}
}

func (e *engineImpl) transition(run *api.FlowRun, proposed api.State) {
	orchestration.Apply(run, proposed)
}

func (e *engineImpl) appendEvent(run *api.FlowRun, typ api.EventType, attempt int, detail string) {
	_ = e.events.AppendEvent(api.RunEvent{
		RunID:    run.ID,
		At:       time.Now(),
		Type:     typ,
		FlowName: run.FlowName,
		Attempt:  attempt,
		Detail:   detail,
	})
}

// executeFlow drives a run through its attempts until it reaches a terminal
// state. The flow function is invoked once, plus once per configured retry;
// the delay between attempts is never applied before the first attempt or
// after the last one. The error of the final failed attempt is returned
// unmodified.
func (e *engineImpl) executeFlow(ctx context.Context, def api.FlowDefinition, run *api.FlowRun) (*api.FlowRun, error) {
	var (
		retries    int
		delay      time.Duration
		multiplier float64
		maxDelay   time.Duration
	)
	if def.Retry != nil {
		retries = def.Retry.Retries
		delay = def.Retry.RetryDelay
		multiplier = def.Retry.BackoffMultiplier
		maxDelay = def.Retry.MaxDelay
	}
	maxAttempts := retries + 1

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return e.crashRun(ctx, run, ctx.Err())
		default:
		}

		e.transition(run, api.Running())
		if err := e.runs.UpdateRun(run); err != nil {
			return run, err
		}
		e.observer.OnAttemptStart(ctx, run, attempt)
		e.appendEvent(run, api.EventAttemptStarted, attempt, "")

		attemptCtx := ctx
		cancel := func() {}
		if def.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, def.Timeout)
		}

		start := time.Now()
		output, err := def.Fn(attemptCtx, run.Parameters)
		duration := time.Since(start)
		cancel()

		e.observer.OnAttemptCompleted(ctx, run, attempt, err, duration)

		if err == nil {
			run.Output = output
			run.Err = nil
			e.appendEvent(run, api.EventAttemptSucceeded, attempt, "")

			e.transition(run, api.Completed())
			if err := e.runs.UpdateRun(run); err != nil {
				return run, err
			}
			e.appendEvent(run, api.EventRunCompleted, attempt, "")
			e.observer.OnRunCompleted(ctx, run)
			return run, nil
		}

		lastErr = err
		e.appendEvent(run, api.EventAttemptFailed, attempt, err.Error())

		if attempt == maxAttempts {
			break
		}

		// Park the run until the next attempt is due. Going through
		// SCHEDULED keeps the policy bookkeeping honest: leaving RUNNING
		// accumulates run time, and re-entering RUNNING bumps the count.
		st := api.Scheduled(time.Now().Add(delay))
		st.Message = "awaiting retry"
		e.transition(run, st)
		if err := e.runs.UpdateRun(run); err != nil {
			return run, err
		}
		e.appendEvent(run, api.EventAwaitingRetry, attempt, delay.String())

		if delay > 0 {
			select {
			case <-ctx.Done():
				return e.crashRun(ctx, run, ctx.Err())
			case <-time.After(delay):
			}
		}

		// Cancel may have landed while the run was parked; it wins over
		// the next attempt.
		if cur, err := e.runs.GetRun(run.ID); err == nil && cur.StateType == api.StateCancelled {
			*run = *cur
			return run, ErrRunCancelled
		}

		if multiplier > 1 {
			delay = time.Duration(float64(delay) * multiplier)
			if maxDelay > 0 && delay > maxDelay {
				delay = maxDelay
			}
		}
	}

	run.Err = lastErr
	if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
		e.transition(run, api.Crashed(lastErr.Error()))
		if err := e.runs.UpdateRun(run); err != nil {
			return run, err
		}
		e.appendEvent(run, api.EventRunCrashed, 0, lastErr.Error())
	} else {
		e.transition(run, api.Failed(lastErr.Error()))
		if err := e.runs.UpdateRun(run); err != nil {
			return run, err
		}
		e.appendEvent(run, api.EventRunFailed, 0, lastErr.Error())
	}
	e.observer.OnRunFailed(ctx, run, lastErr)

	return run, lastErr
}

// crashRun records an execution-infrastructure failure (context cancellation
// or deadline) as CRASHED, distinct from an ordinary FAILED run.
func (e *engineImpl) crashRun(ctx context.Context, run *api.FlowRun, cause error) (*api.FlowRun, error) {
	run.Err = cause
	e.transition(run, api.Crashed(cause.Error()))
	if err := e.runs.UpdateRun(run); err != nil {
		return run, err
	}
	e.appendEvent(run, api.EventRunCrashed, 0, cause.Error())
	e.observer.OnRunFailed(ctx, run, cause)
	return run, cause
}
