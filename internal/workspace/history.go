package workspace

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// schemaV1 creates the execution_history table. Kept inline rather than as
// an embedded migration file set (cf. the teacher's internal/adapters/state
// migrations) since this index has a single, stable shape: one row per
// completed or failed task, queryable by run, task, or time range.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS execution_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	task_id     TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	ended_at    TEXT NOT NULL,
	error       TEXT
);
CREATE INDEX IF NOT EXISTS idx_execution_history_run ON execution_history(run_id);
CREATE INDEX IF NOT EXISTS idx_execution_history_task ON execution_history(task_id);
CREATE INDEX IF NOT EXISTS idx_execution_history_ended ON execution_history(ended_at);
`

// History is a supplementary, rebuildable execution-history index backed by
// SQLite (pure-Go driver, no cgo). It is additive to the mandated JSON state
// file (spec.md §4.5, §6), which remains the source of truth for resume;
// History exists only to answer "what ran, when, with what outcome" without
// replaying state-file history (SPEC_FULL.md §10.1).
type History struct {
	db *sql.DB
}

// OpenHistory opens (creating if necessary) the SQLite database at path and
// ensures its schema is current.
func OpenHistory(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaV1); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}

	return &History{db: db}, nil
}

// Close releases the underlying database handle.
func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// Record inserts one row for a task that reached a terminal state.
func (h *History) Record(runID, taskID, status string, startedAt, endedAt time.Time, errMsg string) error {
	if h == nil || h.db == nil {
		return nil
	}
	var errCol any
	if errMsg != "" {
		errCol = errMsg
	}
	_, err := h.db.Exec(
		`INSERT INTO execution_history (run_id, task_id, status, started_at, ended_at, error) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, taskID, status, startedAt.Format(time.RFC3339Nano), endedAt.Format(time.RFC3339Nano), errCol,
	)
	return err
}

// HistoryEntry is one row read back from the execution history index.
type HistoryEntry struct {
	RunID     string
	TaskID    string
	Status    string
	StartedAt time.Time
	EndedAt   time.Time
	Error     string
}

// RunHistory returns every recorded entry for a run id, ordered by
// completion time.
func (h *History) RunHistory(runID string) ([]HistoryEntry, error) {
	rows, err := h.db.Query(
		`SELECT run_id, task_id, status, started_at, ended_at, COALESCE(error, '')
		 FROM execution_history WHERE run_id = ? ORDER BY ended_at ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var started, ended string
		if err := rows.Scan(&e.RunID, &e.TaskID, &e.Status, &started, &ended, &e.Error); err != nil {
			return nil, err
		}
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		e.EndedAt, _ = time.Parse(time.RFC3339Nano, ended)
		out = append(out, e)
	}
	return out, rows.Err()
}
