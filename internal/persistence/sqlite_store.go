package persistence

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/hboehmer-IW/prefect/pkg/api"
)

// SQLiteRunStore is a RunStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteRunStore struct {
	db *sql.DB
}

// Ensure SQLiteRunStore implements RunStore.
var _ RunStore = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore initializes the required schema in the given database
// and returns a new SQLiteRunStore.
func NewSQLiteRunStore(db *sql.DB) (*SQLiteRunStore, error) {
	s := &SQLiteRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRunStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flow_runs (
			id TEXT PRIMARY KEY,
			flow_name TEXT NOT NULL,
			state_type TEXT NOT NULL,
			state_timestamp INTEGER NOT NULL,
			state_message TEXT NOT NULL DEFAULT '',
			scheduled_time INTEGER,
			run_count INTEGER NOT NULL,
			total_run_time INTEGER NOT NULL,
			start_time INTEGER,
			end_time INTEGER,
			expected_start_time INTEGER,
			next_scheduled_start_time INTEGER,
			parameters BLOB,
			output BLOB,
			error TEXT,
			created INTEGER NOT NULL,
			updated INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_flow_runs_flow_name ON flow_runs(flow_name);
		CREATE INDEX IF NOT EXISTS idx_flow_runs_state_type ON flow_runs(state_type);`,
	)
	return err
}

const sqliteRunColumns = `id, flow_name, state_type, state_timestamp, state_message, scheduled_time,
	run_count, total_run_time, start_time, end_time, expected_start_time, next_scheduled_start_time,
	parameters, output, error, created, updated`

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timeFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64)
	return &t
}

// runArgs flattens a run into the column order of sqliteRunColumns,
// minus the leading id. Shared by the SQLite and Postgres stores.
func runArgs(run *api.FlowRun) ([]any, error) {
	params, err := EncodeValue(run.Parameters)
	if err != nil {
		return nil, err
	}

	output, err := EncodeValue(run.Output)
	if err != nil {
		return nil, err
	}

	errStr := ""
	if run.Err != nil {
		errStr = run.Err.Error()
	}

	state := run.State
	if state == nil {
		state = &api.State{Type: run.StateType}
	}

	return []any{
		run.FlowName,
		string(run.StateType),
		state.Timestamp.UnixNano(),
		state.Message,
		nullTime(state.ScheduledTime),
		run.RunCount,
		int64(run.TotalRunTime),
		nullTime(run.StartTime),
		nullTime(run.EndTime),
		nullTime(run.ExpectedStartTime),
		nullTime(run.NextScheduledStartTime),
		params,
		output,
		errStr,
		run.Created.UnixNano(),
		run.Updated.UnixNano(),
	}, nil
}

func (s *SQLiteRunStore) SaveRun(run *api.FlowRun) error {
	args, err := runArgs(run)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO flow_runs (`+sqliteRunColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{run.ID}, args...)...,
	)
	return err
}

func (s *SQLiteRunStore) UpdateRun(run *api.FlowRun) error {
	args, err := runArgs(run)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE flow_runs
		SET flow_name = ?, state_type = ?, state_timestamp = ?, state_message = ?, scheduled_time = ?,
		    run_count = ?, total_run_time = ?, start_time = ?, end_time = ?, expected_start_time = ?,
		    next_scheduled_start_time = ?, parameters = ?, output = ?, error = ?, created = ?, updated = ?
		WHERE id = ?`,
		append(args, run.ID)...,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*api.FlowRun, error) {
	var (
		run            api.FlowRun
		stateTypeStr   string
		stateTimestamp int64
		stateMessage   string
		scheduledTime  sql.NullInt64
		totalRunTime   int64
		startTime      sql.NullInt64
		endTime        sql.NullInt64
		expectedStart  sql.NullInt64
		nextScheduled  sql.NullInt64
		params, output []byte
		errStr         sql.NullString
		created        int64
		updated        int64
	)

	if err := row.Scan(
		&run.ID, &run.FlowName, &stateTypeStr, &stateTimestamp, &stateMessage, &scheduledTime,
		&run.RunCount, &totalRunTime, &startTime, &endTime, &expectedStart, &nextScheduled,
		&params, &output, &errStr, &created, &updated,
	); err != nil {
		return nil, err
	}

	run.StateType = api.StateType(stateTypeStr)
	run.State = &api.State{
		Type:          run.StateType,
		Timestamp:     time.Unix(0, stateTimestamp),
		Message:       stateMessage,
		ScheduledTime: timeFromNull(scheduledTime),
	}
	run.TotalRunTime = time.Duration(totalRunTime)
	run.StartTime = timeFromNull(startTime)
	run.EndTime = timeFromNull(endTime)
	run.ExpectedStartTime = timeFromNull(expectedStart)
	run.NextScheduledStartTime = timeFromNull(nextScheduled)
	run.Created = time.Unix(0, created)
	run.Updated = time.Unix(0, updated)

	paramsVal, err := DecodeValue(params)
	if err != nil {
		return nil, err
	}
	run.Parameters = paramsVal

	outputVal, err := DecodeValue(output)
	if err != nil {
		return nil, err
	}
	run.Output = outputVal

	if errStr.Valid && errStr.String != "" {
		run.Err = errors.New(errStr.String)
	}

	return &run, nil
}

func (s *SQLiteRunStore) GetRun(id string) (*api.FlowRun, error) {
	row := s.db.QueryRow(`
		SELECT `+sqliteRunColumns+`
		FROM flow_runs
		WHERE id = ?`,
		id,
	)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *SQLiteRunStore) ListRuns(filter RunFilter) ([]*api.FlowRun, error) {
	query := `
		SELECT ` + sqliteRunColumns + `
		FROM flow_runs`
	var args []any
	var clauses []string

	if filter.FlowName != "" {
		clauses = append(clauses, "flow_name = ?")
		args = append(args, filter.FlowName)
	}
	if filter.StateType != "" {
		clauses = append(clauses, "state_type = ?")
		args = append(args, string(filter.StateType))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*api.FlowRun

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}
