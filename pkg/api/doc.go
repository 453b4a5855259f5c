// Package api contains the core building blocks used by the prefect flow
// engine. It provides the low-level primitives for defining flows, tracking
// flow runs through their state machine, and observing engine behavior.
//
// Most users interact with the higher-level prefect package, which re-exports
// selected types and helpers from this package. The api package is intended
// for advanced use cases, custom integrations, or contributors extending the
// engine itself.
//
// # Concepts
//
// The api package centers around a small set of concepts:
//
//   - Flow definitions
//   - Flow runs and their states
//   - Retry policies
//   - Observability
//
// # Flow Definitions
//
// A flow definition names a single user function together with the policies
// applied around it: how many times it is retried, how long to wait between
// attempts, and how long one attempt may take.
//
// Definitions are immutable once constructed and are registered with an
// engine before they can be started.
//
// # Flow Runs and States
//
// Every execution of a flow creates a FlowRun. A run moves through states
// (SCHEDULED, PENDING, RUNNING, and the terminal COMPLETED, FAILED,
// CANCELLED, CRASHED) and carries timing and counting bookkeeping that the
// engine maintains on every transition: start and end times, the number of
// times the run has entered RUNNING, and the total time spent running.
//
// # Retry Policies
//
// A RetryPolicy bounds how often a failing flow function is re-invoked and
// how long the engine waits in between. The default is a constant delay;
// an optional multiplier grows it per attempt.
//
// # Observability
//
// The api package defines the Observer interface, which is used by engines,
// workers, and runners to report lifecycle events and metrics. Attempt-level
// callbacks fire on every invocation of the flow function, including the
// failed ones.
//
// The prefect package exposes ready-made implementations such as logging and
// basic in-memory metrics, along with helpers to combine multiple observers.
package api
