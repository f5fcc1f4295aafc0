// Package journal persists composition runs and their state transitions.
// A run row is opened when composition starts and closed with the final
// state; one transition row is recorded per state reached. The history
// makes a failed boot diagnosable after the fact and tells teardown how
// far the last run got.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultPath is the default journal location
const DefaultPath = "/var/lib/gadgetgod/journal.db"

// Journal wraps the SQLite database connection
type Journal struct {
	conn *sql.DB
	path string
}

// Open opens or creates the journal database at the given path
func Open(path string) (*Journal, error) {
	if path == "" {
		path = DefaultPath
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// Enable foreign keys and WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to configure journal: %w", err)
	}

	j := &Journal{conn: conn, path: path}

	if err := j.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return j, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.conn.Close()
}

// Path returns the journal file path
func (j *Journal) Path() string {
	return j.path
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		backing_file TEXT,
		final_state TEXT,
		error TEXT,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		state TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_transitions_run ON transitions(run_id);
	`
	if _, err := j.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Run is an open composition run being journaled.
type Run struct {
	ID      string
	journal *Journal
}

// BeginRun opens a run row and returns a handle for recording transitions.
func (j *Journal) BeginRun(backingFile string) (*Run, error) {
	id := uuid.NewString()
	_, err := j.conn.Exec(
		"INSERT INTO runs (id, backing_file, started_at) VALUES (?, ?, ?)",
		id, backingFile, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	return &Run{ID: id, journal: j}, nil
}

// Transition records that the run reached a state.
func (r *Run) Transition(state string) error {
	_, err := r.journal.conn.Exec(
		"INSERT INTO transitions (run_id, state, timestamp) VALUES (?, ?, ?)",
		r.ID, state, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// Finish closes the run with its final state and, for a failed run, the
// error that stopped it.
func (r *Run) Finish(finalState string, runErr error) error {
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := r.journal.conn.Exec(
		"UPDATE runs SET final_state = ?, error = ?, finished_at = ? WHERE id = ?",
		finalState, errText, time.Now().UTC(), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// RunRecord is a journaled composition run.
type RunRecord struct {
	ID          string     `json:"id"`
	BackingFile string     `json:"backing_file"`
	FinalState  *string    `json:"final_state"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// TransitionRecord is one recorded state transition.
type TransitionRecord struct {
	RunID     string    `json:"run_id"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// RecentRuns returns the most recent runs, newest first.
func (j *Journal) RecentRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.conn.Query(`
		SELECT id, backing_file, final_state, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var finalState, errText sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.BackingFile, &finalState, &errText, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finalState.Valid {
			r.FinalState = &finalState.String
		}
		if errText.Valid {
			r.Error = &errText.String
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Transitions returns the transitions of a run in recorded order.
func (j *Journal) Transitions(runID string) ([]TransitionRecord, error) {
	rows, err := j.conn.Query(`
		SELECT run_id, state, timestamp
		FROM transitions
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var ts []TransitionRecord
	for rows.Next() {
		var t TransitionRecord
		if err := rows.Scan(&t.RunID, &t.State, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		ts = append(ts, t)
	}
	return ts, rows.Err()
}

// LastRun returns the most recent run, or nil if the journal is empty.
func (j *Journal) LastRun() (*RunRecord, error) {
	runs, err := j.RecentRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}
