package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the flow engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay flow execution.
type Observer interface {
	// OnRunStart is called once when a flow run is first started (Run or
	// RunScheduled), before the first attempt is executed.
	OnRunStart(ctx context.Context, run *FlowRun)

	// OnRunCompleted is called when a run reaches COMPLETED.
	OnRunCompleted(ctx context.Context, run *FlowRun)

	// OnRunFailed is called when a run reaches FAILED, CRASHED or
	// CANCELLED.
	OnRunFailed(ctx context.Context, run *FlowRun, err error)

	// OnAttemptStart is called before each invocation of the flow
	// function. attempt is 1-based; retries produce attempts 2..N+1.
	OnAttemptStart(ctx context.Context, run *FlowRun, attempt int)

	// OnAttemptCompleted is called after each invocation returns, for both
	// successes and failures (err != nil). It fires on every attempt, not
	// only the final one.
	OnAttemptCompleted(ctx context.Context, run *FlowRun, attempt int, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, run *FlowRun)                  {}
func (NoopObserver) OnRunCompleted(ctx context.Context, run *FlowRun)              {}
func (NoopObserver) OnRunFailed(ctx context.Context, run *FlowRun, err error)      {}
func (NoopObserver) OnAttemptStart(ctx context.Context, run *FlowRun, attempt int) {}
func (NoopObserver) OnAttemptCompleted(ctx context.Context, run *FlowRun, attempt int, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run *FlowRun) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnRunCompleted(ctx context.Context, run *FlowRun) {
	for _, o := range c.observers {
		o.OnRunCompleted(ctx, run)
	}
}

func (c *CompositeObserver) OnRunFailed(ctx context.Context, run *FlowRun, err error) {
	for _, o := range c.observers {
		o.OnRunFailed(ctx, run, err)
	}
}

func (c *CompositeObserver) OnAttemptStart(ctx context.Context, run *FlowRun, attempt int) {
	for _, o := range c.observers {
		o.OnAttemptStart(ctx, run, attempt)
	}
}

func (c *CompositeObserver) OnAttemptCompleted(ctx context.Context, run *FlowRun, attempt int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnAttemptCompleted(ctx, run, attempt, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / attempt lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run *FlowRun) {
	o.Logger.InfoContext(ctx, "flow_run_start",
		slog.String("flow", run.FlowName),
		slog.String("run_id", run.ID),
	)
}

func (o *LoggingObserver) OnRunCompleted(ctx context.Context, run *FlowRun) {
	o.Logger.InfoContext(ctx, "flow_run_completed",
		slog.String("flow", run.FlowName),
		slog.String("run_id", run.ID),
		slog.Int("run_count", run.RunCount),
		slog.Duration("total_run_time", run.TotalRunTime),
	)
}

func (o *LoggingObserver) OnRunFailed(ctx context.Context, run *FlowRun, err error) {
	o.Logger.ErrorContext(ctx, "flow_run_failed",
		slog.String("flow", run.FlowName),
		slog.String("run_id", run.ID),
		slog.String("state", string(run.StateType)),
		slog.Int("run_count", run.RunCount),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnAttemptStart(ctx context.Context, run *FlowRun, attempt int) {
	o.Logger.DebugContext(ctx, "attempt_start",
		slog.String("flow", run.FlowName),
		slog.String("run_id", run.ID),
		slog.Int("attempt", attempt),
	)
}

func (o *LoggingObserver) OnAttemptCompleted(ctx context.Context, run *FlowRun, attempt int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "attempt_completed",
		slog.String("flow", run.FlowName),
		slog.String("run_id", run.ID),
		slog.Int("attempt", attempt),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate attempt durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted       atomic.Int64
	runsCompleted     atomic.Int64
	runsFailed        atomic.Int64
	attemptsTotal     atomic.Int64
	attemptsFailed    atomic.Int64
	totalAttemptNanos atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64
	ActiveRuns    int64

	AttemptsTotal  int64
	AttemptsFailed int64

	AvgAttemptDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, run *FlowRun) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunCompleted(ctx context.Context, run *FlowRun) {
	m.runsCompleted.Add(1)
}

func (m *BasicMetrics) OnRunFailed(ctx context.Context, run *FlowRun, err error) {
	m.runsFailed.Add(1)
}

func (m *BasicMetrics) OnAttemptCompleted(ctx context.Context, run *FlowRun, attempt int, err error, d time.Duration) {
	m.attemptsTotal.Add(1)
	m.totalAttemptNanos.Add(d.Nanoseconds())
	if err != nil {
		m.attemptsFailed.Add(1)
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	completed := m.runsCompleted.Load()
	failed := m.runsFailed.Load()
	attempts := m.attemptsTotal.Load()
	totalNs := m.totalAttemptNanos.Load()

	var avg time.Duration
	if attempts > 0 {
		avg = time.Duration(totalNs / attempts)
	}

	return BasicMetricsSnapshot{
		RunsStarted:        started,
		RunsCompleted:      completed,
		RunsFailed:         failed,
		ActiveRuns:         started - completed - failed,
		AttemptsTotal:      attempts,
		AttemptsFailed:     m.attemptsFailed.Load(),
		AvgAttemptDuration: avg,
	}
}
