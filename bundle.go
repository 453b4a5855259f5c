package prefect

import (
	"database/sql"

	"github.com/hboehmer-IW/prefect/internal/taskqueue"
	workerpkg "github.com/hboehmer-IW/prefect/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable task queue, and a Worker
// that consumes tasks from that queue.
//
// For now, we only provide a SQLite-backed bundle.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	// queue is kept unexported for now; it is primarily useful for internal
	// inspection and tests. The public API focuses on Engine and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo sharing
// the same SQLite database. Flow runs, their event history, and queued tasks
// are persisted in the provided *sql.DB.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:prefect.db?_journal=WAL")
//	bundle, err := prefect.NewSQLiteBundle(db)
//	// register flows on bundle.Engine
//	// enqueue work via bundle.Worker
func NewSQLiteBundle(db *sql.DB) (*WorkerBundle, error) {
	return NewSQLiteBundleWithObserver(db, nil)
}

// NewSQLiteBundleWithObserver is NewSQLiteBundle with an Observer attached
// to the engine.
func NewSQLiteBundleWithObserver(db *sql.DB, obs Observer) (*WorkerBundle, error) {
	eng, err := NewSQLiteEngineWithObserver(db, obs)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	w := workerpkg.New(eng, q)

	return &WorkerBundle{
		Engine: eng,
		Worker: w,
		queue:  q,
	}, nil
}

// QueueLen reports the approximate number of queued tasks.
func (b *WorkerBundle) QueueLen() int {
	return b.queue.Len()
}
