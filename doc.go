// Package prefect provides a lightweight, embeddable flow engine for Go
// with first-class retries.
//
// It is designed for backend services that need reliable execution of small
// units of work (API calls, data fetches, batch steps) with a well-defined
// retry contract, without heavy infrastructure. It runs fully in Go, supports
// multiple persistence backends, and integrates cleanly into existing
// codebases.
//
// # Core Concepts
//
//  1. Engine
//  2. FlowBuilder
//  3. Retry policies
//  4. Worker
//  5. LocalRunner
//
// # Engine
//
// The Engine stores flow definitions, persists flow runs, and provides APIs
// to:
//   - run flows synchronously, applying retry policies
//   - submit runs for deferred execution
//   - retry failed runs and cancel pending ones
//   - read run state and event history
//
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis
//
// # State model
//
// Every run moves through states (SCHEDULED, PENDING, RUNNING, COMPLETED,
// FAILED, CANCELLED, CRASHED). Each transition passes through a small set of
// orchestration rules that maintain run bookkeeping: run counts, accumulated
// run time, start and end times, and scheduling metadata. A retrying run
// oscillates between RUNNING and SCHEDULED ("awaiting retry") until it
// either completes or exhausts its retries.
//
// # Retry contract
//
// A flow's RetryPolicy gives the number of retries and the delay between
// attempts. The flow function is invoked once, plus once per configured
// retry; the delay is applied between attempts but never after the final
// one, and the error of the final attempt is surfaced unmodified:
//
//	flow := prefect.NewFlow("fetch-repo-stats", fetchStats).
//	    WithRetries(3, 200*time.Millisecond)
//
// # Worker and LocalRunner
//
// A Worker pulls tasks from a queue and executes flow runs asynchronously.
// LocalRunner bundles an in-memory engine, queue and worker for development
// and tests; NewSQLiteBundle wires the durable equivalents on a shared
// database.
//
// # Observability
//
// Observers receive callbacks for run and attempt lifecycle events on every
// attempt. NewLoggingObserver logs them via log/slog, BasicMetrics keeps
// cheap in-process counters, and the pkg/metrics package exports Prometheus
// metrics.
package prefect
