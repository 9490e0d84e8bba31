package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates an agent is working on the task.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed out of s.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskType is the kind of work a task represents.
type TaskType string

const (
	TaskTypeResearch  TaskType = "research"
	TaskTypePlanning  TaskType = "planning"
	TaskTypeExecution TaskType = "execution"
	TaskTypeReview    TaskType = "review"
)

// Valid returns true if the type is a known value.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeResearch, TaskTypePlanning, TaskTypeExecution, TaskTypeReview:
		return true
	default:
		return false
	}
}

// Phase is the stage of a decomposition chain a task belongs to.
// Phase strings double as agent capability names.
type Phase string

const (
	PhaseResearch Phase = "research"
	PhasePlan     Phase = "plan"
	PhaseExecute  Phase = "execute"
	PhaseReview   Phase = "review"
)

// Valid returns true if the phase is a known value.
func (p Phase) Valid() bool {
	switch p {
	case PhaseResearch, PhasePlan, PhaseExecute, PhaseReview:
		return true
	default:
		return false
	}
}

// TypeForPhase returns the task type generated for a phase.
func TypeForPhase(p Phase) TaskType {
	switch p {
	case PhaseResearch:
		return TaskTypeResearch
	case PhasePlan:
		return TaskTypePlanning
	case PhaseReview:
		return TaskTypeReview
	default:
		return TaskTypeExecution
	}
}

// Priority ranks notes and the tasks derived from them.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// Task represents one scheduled unit of work derived from a note.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id" validate:"required"`
	// Type is the kind of work (research, planning, execution, review).
	Type TaskType `json:"type" validate:"required"`
	// Phase is the chain stage, matched against agent capabilities.
	Phase Phase `json:"phase" validate:"required"`
	// NoteID is the note this task was decomposed from.
	NoteID string `json:"note_id" validate:"required"`
	// ProjectID is the project of the originating note.
	ProjectID string `json:"project_id,omitempty"`
	// Title is the short description of the task.
	Title string `json:"title" validate:"required"`
	// Description is the full prompt delivered to the agent.
	Description string `json:"description"`
	// AgentType is a hint for which kind of agent fits the task.
	AgentType string `json:"agent_type,omitempty"`
	// DependsOn is the ID of the single predecessor task, if any.
	DependsOn string `json:"depends_on,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Priority is inherited or derived from the note.
	Priority Priority `json:"priority"`
	// EstimatedDuration is the expected run time in minutes.
	EstimatedDuration int `json:"estimated_duration" validate:"gte=0"`
	// ActualDuration is CompletedAt minus StartedAt once the task ends.
	ActualDuration time.Duration `json:"actual_duration,omitempty"`
	// Checklist lists the verification criteria for the task.
	Checklist []string `json:"checklist,omitempty"`
	// CreatedAt is when the task was registered.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when an agent picked the task up.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task completed or failed.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// AssignedAgent is the ID of the agent working on this task.
	AssignedAgent string `json:"assigned_agent,omitempty"`
	// Output is the free-form result payload.
	Output *TaskOutput `json:"output,omitempty"`
}

// Ready reports whether t is pending and its dependency, looked up via
// statusOf, is completed.
func (t *Task) Ready(statusOf func(id string) (TaskStatus, bool)) bool {
	if t.Status != TaskStatusPending {
		return false
	}
	if t.DependsOn == "" {
		return true
	}
	st, ok := statusOf(t.DependsOn)
	return ok && st == TaskStatusCompleted
}

// TaskOutput is the payload recorded when a task finishes.
type TaskOutput struct {
	// Report is the content of the completion artifact, if any.
	Report string `json:"report,omitempty"`
	// Error describes why the task failed.
	Error string `json:"error,omitempty"`
	// SandboxID identifies the sandbox the task ran in.
	SandboxID string `json:"sandbox_id,omitempty"`
	// Status is the final sandbox status.
	Status SandboxStatus `json:"status,omitempty"`
	// ExitCode is the agent process exit code (-1 if unknown).
	ExitCode int `json:"exit_code"`
	// LogsPath points at the execution log of the run.
	LogsPath string `json:"logs_path,omitempty"`
}

// TaskSpec is one entry of a decomposition, before registration.
type TaskSpec struct {
	Type              TaskType
	Phase             Phase
	Title             string
	Description       string
	AgentType         string
	Priority          Priority
	EstimatedDuration int
	Checklist         []string
	// DependsOnIndex is the index of the predecessor spec, or -1.
	DependsOnIndex int
}
