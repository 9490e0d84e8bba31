package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventTaskStarted indicates a task was handed to an agent.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed or timed out.
	EventTaskFailed EventType = "task_failed"
	// EventTaskBlocked indicates a pending task can never run because
	// a task earlier in its chain failed.
	EventTaskBlocked EventType = "task_blocked"
	// EventNoteCompleted indicates every task of a note completed.
	EventNoteCompleted EventType = "note_completed"
	// EventNoteDecomposed indicates a note was turned into tasks.
	EventNoteDecomposed EventType = "note_decomposed"
	// EventIdle indicates nothing was ready to run.
	EventIdle EventType = "idle"
	// EventAutoMode indicates auto mode was switched on or off.
	EventAutoMode EventType = "auto_mode"
)

// Event represents an event emitted by the orchestrator.
// These events are used to update the dashboard.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// TaskTitle is the title of the related task, if applicable.
	TaskTitle string
	// NoteID is the note the task belongs to, if applicable.
	NoteID string
	// AgentID is the agent running the task, if applicable.
	AgentID string
	// SandboxID is the sandbox of the run, if applicable.
	SandboxID string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the run time for completion and failure events.
	Duration time.Duration
	// LogFile is the path to the sandbox execution log.
	LogFile string
}
