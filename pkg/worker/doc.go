// Package worker provides the background worker used to drive flow runs
// forward asynchronously.
//
// Workers consume tasks from a task queue and execute flow runs using an
// engine. They are designed to be lightweight and easy to embed in existing
// services, and multiple workers can safely operate on the same queue to
// scale processing.
//
// Two task types exist:
//
//   - run-flow: start a fresh run of a registered flow
//   - start-run: execute a run previously submitted in SCHEDULED state
//
// Deferred execution goes through the engine's Submit operation: the run is
// persisted up front in SCHEDULED state, so it can be listed, inspected or
// cancelled while it waits, and the queue task merely triggers it once its
// time has come.
//
// Workers are decoupled from any particular persistence backend. They rely
// on the Engine and Queue interfaces, so in-memory, SQLite, Postgres and
// Redis backends can be mixed freely.
//
// Most applications construct workers via helper functions in the prefect
// package, which wire engines, queues, and observers together with sensible
// defaults.
package worker
