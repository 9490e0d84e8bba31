package models

import (
	"testing"
)

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"pending is valid", TaskStatusPending, true},
		{"in_progress is valid", TaskStatusInProgress, true},
		{"completed is valid", TaskStatusCompleted, true},
		{"failed is valid", TaskStatusFailed, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"unknown status is invalid", TaskStatus("blocked"), false},
		{"typo status is invalid", TaskStatus("pendingg"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("TaskStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTaskStatus_Terminal(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskStatusPending, false},
		{TaskStatusInProgress, false},
		{TaskStatusCompleted, true},
		{TaskStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("TaskStatus(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTypeForPhase(t *testing.T) {
	tests := []struct {
		phase Phase
		want  TaskType
	}{
		{PhaseResearch, TaskTypeResearch},
		{PhasePlan, TaskTypePlanning},
		{PhaseExecute, TaskTypeExecution},
		{PhaseReview, TaskTypeReview},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			if got := TypeForPhase(tt.phase); got != tt.want {
				t.Errorf("TypeForPhase(%q) = %q, want %q", tt.phase, got, tt.want)
			}
			if !tt.phase.Valid() || !tt.want.Valid() {
				t.Errorf("phase %q or type %q reported invalid", tt.phase, tt.want)
			}
		})
	}
}

func TestTask_Ready(t *testing.T) {
	statuses := map[string]TaskStatus{
		"done":    TaskStatusCompleted,
		"running": TaskStatusInProgress,
		"broken":  TaskStatusFailed,
	}
	lookup := func(id string) (TaskStatus, bool) {
		s, ok := statuses[id]
		return s, ok
	}

	tests := []struct {
		name string
		task Task
		want bool
	}{
		{"pending without dependency", Task{Status: TaskStatusPending}, true},
		{"pending with completed dependency", Task{Status: TaskStatusPending, DependsOn: "done"}, true},
		{"pending with running dependency", Task{Status: TaskStatusPending, DependsOn: "running"}, false},
		{"pending with failed dependency", Task{Status: TaskStatusPending, DependsOn: "broken"}, false},
		{"pending with unknown dependency", Task{Status: TaskStatusPending, DependsOn: "missing"}, false},
		{"in progress is never ready", Task{Status: TaskStatusInProgress}, false},
		{"completed is never ready", Task{Status: TaskStatusCompleted}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.Ready(lookup); got != tt.want {
				t.Errorf("Ready() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPriority_Valid(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh} {
		if !p.Valid() {
			t.Errorf("Priority(%q).Valid() = false, want true", p)
		}
	}
	if Priority("urgent").Valid() {
		t.Error("Priority(\"urgent\").Valid() = true, want false")
	}
}
