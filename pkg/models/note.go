package models

import "time"

// NoteStatus is the completion state of a note.
type NoteStatus string

const (
	// NoteStatusPending indicates some derived work is outstanding.
	NoteStatusPending NoteStatus = "pending"
	// NoteStatusCompleted indicates every derived task completed.
	NoteStatusCompleted NoteStatus = "completed"
)

// Valid returns true if the status is a known value.
func (s NoteStatus) Valid() bool {
	return s == NoteStatusPending || s == NoteStatusCompleted
}

// Note is a user-authored unit of intent, the root of one decomposition.
type Note struct {
	ID        string     `json:"id" yaml:"-" validate:"required"`
	Title     string     `json:"title" yaml:"title"`
	Body      string     `json:"body" yaml:"-"`
	Project   string     `json:"project,omitempty" yaml:"project,omitempty"`
	Tags      []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	Priority  Priority   `json:"priority" yaml:"priority" validate:"omitempty,oneof=low medium high"`
	Status    NoteStatus `json:"status" yaml:"status" validate:"omitempty,oneof=pending completed"`
	CreatedAt time.Time  `json:"created_at" yaml:"created"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"updated,omitempty"`
}

// Project groups notes and the tasks derived from them.
type Project struct {
	ID          string    `json:"id" yaml:"id" validate:"required"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Notes       []string  `json:"notes,omitempty" yaml:"notes,omitempty"`
	Tasks       []string  `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created"`
}
