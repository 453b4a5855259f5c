package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hboehmer-IW/prefect/pkg/api"
)

// PostgresRunStore is a RunStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/lib/pq" or "github.com/jackc/pgx/v5/stdlib").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/lib/pq"
//   - providing a DSN via sql.Open.
type PostgresRunStore struct {
	db *sql.DB
}

// Ensure PostgresRunStore implements RunStore.
var _ RunStore = (*PostgresRunStore)(nil)

// NewPostgresRunStore initializes the required schema in the given
// database and returns a new PostgresRunStore.
func NewPostgresRunStore(db *sql.DB) (*PostgresRunStore, error) {
	s := &PostgresRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresRunStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flow_runs (
			id TEXT PRIMARY KEY,
			flow_name TEXT NOT NULL,
			state_type TEXT NOT NULL,
			state_timestamp BIGINT NOT NULL,
			state_message TEXT NOT NULL DEFAULT '',
			scheduled_time BIGINT,
			run_count INTEGER NOT NULL,
			total_run_time BIGINT NOT NULL,
			start_time BIGINT,
			end_time BIGINT,
			expected_start_time BIGINT,
			next_scheduled_start_time BIGINT,
			parameters BYTEA,
			output BYTEA,
			error TEXT,
			created BIGINT NOT NULL,
			updated BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_flow_runs_flow_name ON flow_runs(flow_name);
		CREATE INDEX IF NOT EXISTS idx_flow_runs_state_type ON flow_runs(state_type);
	`)
	return err
}

func (s *PostgresRunStore) SaveRun(run *api.FlowRun) error {
	args, err := runArgs(run)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO flow_runs (`+sqliteRunColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		append([]any{run.ID}, args...)...,
	)
	return err
}

func (s *PostgresRunStore) UpdateRun(run *api.FlowRun) error {
	args, err := runArgs(run)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE flow_runs
		SET flow_name = $1,
		    state_type = $2,
		    state_timestamp = $3,
		    state_message = $4,
		    scheduled_time = $5,
		    run_count = $6,
		    total_run_time = $7,
		    start_time = $8,
		    end_time = $9,
		    expected_start_time = $10,
		    next_scheduled_start_time = $11,
		    parameters = $12,
		    output = $13,
		    error = $14,
		    created = $15,
		    updated = $16
		WHERE id = $17`,
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

func (s *PostgresRunStore) GetRun(id string) (*api.FlowRun, error) {
	row := s.db.QueryRow(`
		SELECT `+sqliteRunColumns+`
		FROM flow_runs
		WHERE id = $1`,
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

func (s *PostgresRunStore) ListRuns(filter RunFilter) ([]*api.FlowRun, error) {
	query := `
		SELECT ` + sqliteRunColumns + `
		FROM flow_runs`
	var args []any
	var clauses []string

	if filter.FlowName != "" {
		args = append(args, filter.FlowName)
		clauses = append(clauses, fmt.Sprintf("flow_name = $%d", len(args)))
	}
	if filter.StateType != "" {
		args = append(args, string(filter.StateType))
		clauses = append(clauses, fmt.Sprintf("state_type = $%d", len(args)))
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
