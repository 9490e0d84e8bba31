package state

import (
	"io"

	"github.com/ShayCichocki/swarm/pkg/models"
)

// TaskJournal handles task persistence. SaveTask matches the engine's
// journal hook.
type TaskJournal interface {
	SaveTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	ListTasks() ([]*models.Task, error)
}

// RunStore handles sandbox run history.
type RunStore interface {
	RecordRun(r *Run) error
	ListRuns(taskID string) ([]Run, error)
	RecentRuns(limit int) ([]Run, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// StateStore composes the persistence interfaces used by the orchestrator
// and the CLI.
type StateStore interface {
	io.Closer
	Migrator
	TaskJournal
	RunStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore  = (*DB)(nil)
	_ Migrator    = (*DB)(nil)
	_ TaskJournal = (*DB)(nil)
	_ RunStore    = (*DB)(nil)
)
