package persistence

import (
	"database/sql"
	"time"

	"github.com/hboehmer-IW/prefect/pkg/api"
)

// SQLiteEventStore appends run events to a run_events table.
type SQLiteEventStore struct {
	db *sql.DB
}

var _ EventStore = (*SQLiteEventStore)(nil)

// NewSQLiteEventStore creates the run_events table if needed.
func NewSQLiteEventStore(db *sql.DB) (*SQLiteEventStore, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS run_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		at INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		flow_name TEXT NOT NULL DEFAULT '',
		attempt INTEGER NOT NULL DEFAULT 0,
		detail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &SQLiteEventStore{db: db}, nil
}

func (s *SQLiteEventStore) AppendEvent(ev api.RunEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO run_events (run_id, at, event_type, flow_name, attempt, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.RunID, at.UnixNano(), string(ev.Type), ev.FlowName, ev.Attempt, ev.Detail,
	)
	return err
}

func (s *SQLiteEventStore) ListEvents(runID string) ([]api.RunEvent, error) {
	rows, err := s.db.Query(`
		SELECT run_id, at, event_type, flow_name, attempt, detail
		FROM run_events
		WHERE run_id = ?
		ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []api.RunEvent
	for rows.Next() {
		var (
			ev    api.RunEvent
			at    int64
			etype string
		)
		if err := rows.Scan(&ev.RunID, &at, &etype, &ev.FlowName, &ev.Attempt, &ev.Detail); err != nil {
			return nil, err
		}
		ev.At = time.Unix(0, at)
		ev.Type = api.EventType(etype)
		events = append(events, ev)
	}
	if events == nil {
		events = []api.RunEvent{}
	}
	return events, rows.Err()
}
