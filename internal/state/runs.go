package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/swarm/pkg/models"
)

// Run is the record of one sandbox execution.
type Run struct {
	ID         string               `json:"id"`
	TaskID     string               `json:"task_id"`
	SandboxID  string               `json:"sandbox_id"`
	AgentID    string               `json:"agent_id"`
	Status     models.SandboxStatus `json:"status"`
	Success    bool                 `json:"success"`
	ExitCode   int                  `json:"exit_code"`
	Error      string               `json:"error,omitempty"`
	LogsPath   string               `json:"logs_path,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}

// Duration is how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RecordRun stores a run, assigning an ID when empty.
func (db *DB) RecordRun(r *Run) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	success := 0
	if r.Success {
		success = 1
	}
	_, err := db.Exec(`
		INSERT INTO sandbox_runs (id, task_id, sandbox_id, agent_id, status, success, exit_code,
			error, logs_path, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.TaskID, r.SandboxID, r.AgentID, string(r.Status), success, r.ExitCode,
		r.Error, r.LogsPath, formatTime(r.StartedAt), formatTime(r.FinishedAt))
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

// ListRuns returns the runs of a task, oldest first.
func (db *DB) ListRuns(taskID string) ([]Run, error) {
	return db.queryRuns(`
		SELECT id, task_id, sandbox_id, agent_id, status, success, exit_code, error, logs_path,
			started_at, finished_at
		FROM sandbox_runs WHERE task_id = ? ORDER BY started_at, rowid
	`, taskID)
}

// RecentRuns returns up to limit runs, most recent first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	return db.queryRuns(`
		SELECT id, task_id, sandbox_id, agent_id, status, success, exit_code, error, logs_path,
			started_at, finished_at
		FROM sandbox_runs ORDER BY rowid DESC LIMIT ?
	`, limit)
}

func (db *DB) queryRuns(query string, args ...any) ([]Run, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			status, started   string
			finished          string
			success           int
			errText, logsPath sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.TaskID, &r.SandboxID, &r.AgentID, &status, &success,
			&r.ExitCode, &errText, &logsPath, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Status = models.SandboxStatus(status)
		r.Success = success != 0
		r.Error = errText.String
		r.LogsPath = logsPath.String
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
