package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/swarm/pkg/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

const taskColumns = `id, note_id, project_id, type, phase, title, description, agent_type,
	depends_on, status, priority, estimated_duration, actual_duration_ms, checklist,
	assigned_agent, output, created_at, started_at, completed_at`

// SaveTask inserts or replaces the journal row of a task. Rows keep their
// original insertion order.
func (db *DB) SaveTask(t *models.Task) error {
	checklist, err := json.Marshal(t.Checklist)
	if err != nil {
		return fmt.Errorf("marshal checklist: %w", err)
	}
	var output sql.NullString
	if t.Output != nil {
		data, err := json.Marshal(t.Output)
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		output = sql.NullString{String: string(data), Valid: true}
	}

	_, err = db.Exec(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			assigned_agent = excluded.assigned_agent,
			actual_duration_ms = excluded.actual_duration_ms,
			output = excluded.output,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`,
		t.ID, t.NoteID, t.ProjectID, string(t.Type), string(t.Phase), t.Title, t.Description,
		t.AgentType, t.DependsOn, string(t.Status), string(t.Priority), t.EstimatedDuration,
		t.ActualDuration.Milliseconds(), string(checklist), t.AssignedAgent, output,
		formatTime(t.CreatedAt), formatNullableTime(t.StartedAt), formatNullableTime(t.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// ListTasks returns every journaled task in insertion order.
func (db *DB) ListTasks() ([]*models.Task, error) {
	return db.queryTasks(`SELECT ` + taskColumns + ` FROM tasks ORDER BY rowid`)
}

// ListTasksByNote returns the tasks of one note in insertion order.
func (db *DB) ListTasksByNote(noteID string) ([]*models.Task, error) {
	return db.queryTasks(`SELECT `+taskColumns+` FROM tasks WHERE note_id = ? ORDER BY rowid`, noteID)
}

// DeleteTasksByNote removes the journal rows of a note's tasks.
func (db *DB) DeleteTasksByNote(noteID string) (int64, error) {
	res, err := db.Exec(`DELETE FROM tasks WHERE note_id = ?`, noteID)
	if err != nil {
		return 0, fmt.Errorf("delete tasks of %s: %w", noteID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

func (db *DB) queryTasks(query string, args ...any) ([]*models.Task, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*models.Task, error) {
	var (
		t                                      models.Task
		projectID, description, agentType      sql.NullString
		dependsOn, checklist, assigned, output sql.NullString
		typ, phase, status, priority, created  string
		startedAt, completedAt                 sql.NullString
		actualMs                               int64
	)

	err := s.Scan(&t.ID, &t.NoteID, &projectID, &typ, &phase, &t.Title, &description, &agentType,
		&dependsOn, &status, &priority, &t.EstimatedDuration, &actualMs, &checklist,
		&assigned, &output, &created, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.ProjectID = projectID.String
	t.Description = description.String
	t.AgentType = agentType.String
	t.DependsOn = dependsOn.String
	t.AssignedAgent = assigned.String
	t.Type = models.TaskType(typ)
	t.Phase = models.Phase(phase)
	t.Status = models.TaskStatus(status)
	t.Priority = models.Priority(priority)
	t.ActualDuration = time.Duration(actualMs) * time.Millisecond
	t.StartedAt = parseNullableTime(startedAt)
	t.CompletedAt = parseNullableTime(completedAt)

	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if checklist.Valid && checklist.String != "" && checklist.String != "null" {
		if err := json.Unmarshal([]byte(checklist.String), &t.Checklist); err != nil {
			return nil, fmt.Errorf("unmarshal checklist: %w", err)
		}
	}
	if output.Valid && output.String != "" {
		t.Output = &models.TaskOutput{}
		if err := json.Unmarshal([]byte(output.String), t.Output); err != nil {
			return nil, fmt.Errorf("unmarshal output: %w", err)
		}
	}
	return &t, nil
}
