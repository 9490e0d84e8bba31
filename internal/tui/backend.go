package tui

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/swarm/internal/engine"
	"github.com/ShayCichocki/swarm/internal/knowledge"
	"github.com/ShayCichocki/swarm/internal/orchestrator"
	"github.com/ShayCichocki/swarm/pkg/models"
)

// Snapshot is the queue state the dashboard renders.
type Snapshot struct {
	Queue    engine.QueueStatus
	Active   []*models.Task
	Blocked  []engine.BlockedTask
	AutoMode bool
}

// Backend is what the dashboard drives.
type Backend interface {
	Snapshot() Snapshot
	ToggleAutoMode() bool
	OrchestrateNext(ctx context.Context) (*orchestrator.Outcome, error)
	// AddNote stores a note written in inline syntax and decomposes it.
	AddNote(ctx context.Context, text string) (*models.Note, []*models.Task, error)
}

// NoteAdder stores notes.
type NoteAdder interface {
	AddNote(content string, meta knowledge.NoteMeta) (*models.Note, error)
}

// OrchestratorBackend adapts an orchestrator and its knowledge store.
type OrchestratorBackend struct {
	Orch  *orchestrator.Orchestrator
	Notes NoteAdder
}

var _ Backend = (*OrchestratorBackend)(nil)

// Snapshot reads the current queue state.
func (b *OrchestratorBackend) Snapshot() Snapshot {
	eng := b.Orch.Engine()
	return Snapshot{
		Queue:    eng.QueueStatus(),
		Active:   eng.Active(),
		Blocked:  eng.Blocked(),
		AutoMode: b.Orch.AutoMode(),
	}
}

// ToggleAutoMode flips auto mode.
func (b *OrchestratorBackend) ToggleAutoMode() bool {
	return b.Orch.ToggleAutoMode()
}

// OrchestrateNext runs one orchestration step.
func (b *OrchestratorBackend) OrchestrateNext(ctx context.Context) (*orchestrator.Outcome, error) {
	return b.Orch.OrchestrateNext(ctx)
}

// AddNote parses inline markers, stores the note and decomposes it.
func (b *OrchestratorBackend) AddNote(ctx context.Context, text string) (*models.Note, []*models.Task, error) {
	in := knowledge.ParseInline(text)
	if in.Content == "" {
		return nil, nil, fmt.Errorf("add note: empty text")
	}
	note, err := b.Notes.AddNote(in.Content, in.Meta())
	if err != nil {
		return nil, nil, err
	}
	tasks, err := b.Orch.Decompose(ctx, note.ID)
	if err != nil {
		return note, nil, err
	}
	return note, tasks, nil
}
