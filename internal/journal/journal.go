// Package journal records task submissions and results in a SQLite
// database so a run can be inspected after the fact.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS task_runs (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	container   TEXT,
	attempt     INTEGER NOT NULL DEFAULT 1,
	status      TEXT NOT NULL,
	exit_code   INTEGER,
	submitted_at TIMESTAMP NOT NULL,
	finished_at  TIMESTAMP
);
`

// Task run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Journal is a run journal backed by SQLite.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at the given path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal `%s`: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}

// Submitted records a task submission.
func (j *Journal) Submitted(id, name, container string, attempt int64) error {
	if j == nil {
		return nil
	}
	_, err := j.db.Exec(
		`INSERT OR REPLACE INTO task_runs (id, name, container, attempt, status, submitted_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, container, attempt, StatusRunning, time.Now().UTC())
	return err
}

// Finished records a task completion.
func (j *Journal) Finished(id string, exitCode int, succeeded bool) error {
	if j == nil {
		return nil
	}
	status := StatusSucceeded
	if !succeeded {
		status = StatusFailed
	}
	_, err := j.db.Exec(
		`UPDATE task_runs SET status = ?, exit_code = ?, finished_at = ? WHERE id = ?`,
		status, exitCode, time.Now().UTC(), id)
	return err
}

// TaskRun is one journal row.
type TaskRun struct {
	Id        string
	Name      string
	Container string
	Attempt   int64
	Status    string
	ExitCode  sql.NullInt64
}

// Runs lists recorded task runs, newest first.
func (j *Journal) Runs() ([]TaskRun, error) {
	if j == nil {
		return nil, nil
	}
	rows, err := j.db.Query(
		`SELECT id, name, container, attempt, status, exit_code FROM task_runs ORDER BY submitted_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []TaskRun
	for rows.Next() {
		var r TaskRun
		var container sql.NullString
		if err := rows.Scan(&r.Id, &r.Name, &container, &r.Attempt, &r.Status, &r.ExitCode); err != nil {
			return nil, err
		}
		r.Container = container.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
