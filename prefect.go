package prefect

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hboehmer-IW/prefect/internal/engine"
	"github.com/hboehmer-IW/prefect/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	FlowDefinition       = api.FlowDefinition
	FlowRun              = api.FlowRun
	FlowFunc             = api.FlowFunc
	RunFilter            = api.RunFilter
	RunEvent             = api.RunEvent
	State                = api.State
	StateType            = api.StateType
	RetryPolicy          = api.RetryPolicy
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export the engine's sentinel errors for errors.Is checks.

var (
	ErrFlowNotFound     = api.ErrFlowNotFound
	ErrRunNotFound      = api.ErrRunNotFound
	ErrRunStateConflict = api.ErrRunStateConflict
)

// Re-export state types for convenience.

const (
	StateScheduled = api.StateScheduled
	StatePending   = api.StatePending
	StateRunning   = api.StateRunning
	StateCompleted = api.StateCompleted
	StateFailed    = api.StateFailed
	StateCancelled = api.StateCancelled
	StateCrashed   = api.StateCrashed
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	return engine.NewInMemoryEngineWithObserver(obs)
}

// NewSQLiteEngine returns an Engine that persists flow runs and their event
// history in a SQLite database. Flow definitions are kept in-memory.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return engine.NewSQLiteEngine(db)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return engine.NewSQLiteEngineWithObserver(db, obs)
}

// NewPostgresEngine returns an Engine that persists flow runs in PostgreSQL.
func NewPostgresEngine(db *sql.DB) (Engine, error) {
	return engine.NewPostgresEngine(db)
}

// NewPostgresEngineWithObserver returns a Postgres-backed Engine with the given Observer.
func NewPostgresEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return engine.NewPostgresEngineWithObserver(db, obs)
}

// NewRedisEngine returns an Engine that persists flow runs in Redis.
func NewRedisEngine(client *redis.Client) Engine {
	return engine.NewRedisEngine(client)
}

// NewRedisEngineWithObserver returns a Redis-backed Engine with the given Observer.
func NewRedisEngineWithObserver(client *redis.Client, obs Observer) Engine {
	return engine.NewRedisEngineWithObserver(client, obs)
}

// Convenience helpers that just forward to the underlying Engine.

// Run runs a registered flow synchronously, applying its retry policy.
func Run(ctx context.Context, eng Engine, name string, params any) (*FlowRun, error) {
	return eng.Run(ctx, name, params)
}

// Submit creates a SCHEDULED run without executing it.
func Submit(ctx context.Context, eng Engine, name string, params any, at time.Time) (*FlowRun, error) {
	return eng.Submit(ctx, name, params, at)
}

// GetRun fetches a flow run by ID.
func GetRun(ctx context.Context, eng Engine, id string) (*FlowRun, error) {
	return eng.GetRun(ctx, id)
}

// ListRuns lists flow runs according to the given filter.
func ListRuns(ctx context.Context, eng Engine, filter RunFilter) ([]*FlowRun, error) {
	return eng.ListRuns(ctx, filter)
}

// RetryRun re-executes a FAILED or CRASHED run.
func RetryRun(ctx context.Context, eng Engine, id string) (*FlowRun, error) {
	return eng.RetryRun(ctx, id)
}

// Cancel moves a non-terminal run to CANCELLED.
func Cancel(ctx context.Context, eng Engine, id string) (*FlowRun, error) {
	return eng.Cancel(ctx, id)
}

// ListEvents returns the append-only history of a run, oldest first.
func ListEvents(ctx context.Context, eng Engine, id string) ([]RunEvent, error) {
	return eng.ListEvents(ctx, id)
}
