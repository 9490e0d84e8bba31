// Package engine registers decomposed tasks and drives their lifecycle.
//
// The engine exclusively owns Task entities. Every accessor returns copies,
// so callers can never mutate task state except through Start, Complete
// and Fail.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ShayCichocki/swarm/internal/decompose"
	"github.com/ShayCichocki/swarm/internal/logging"
	"github.com/ShayCichocki/swarm/pkg/models"
)

var (
	// ErrTaskNotFound is returned for an unknown task id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid task transition")
	// ErrDependencyNotSatisfied is returned when starting a task whose
	// predecessor has not completed.
	ErrDependencyNotSatisfied = errors.New("dependency not satisfied")
	// ErrDuplicateID is returned when a generated id is already registered.
	ErrDuplicateID = errors.New("duplicate task id")
)

// Journal persists task snapshots. Journal failures are logged and never
// change in-memory state.
type Journal interface {
	SaveTask(t *models.Task) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal records every registration and transition.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithLogger sets the application logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l.With("engine") }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine builds task chains from notes and tracks their state.
type Engine struct {
	mu         sync.RWMutex
	store      *store
	active     map[string]struct{}
	seq        int
	decomposer *decompose.Decomposer
	journal    Journal
	logger     *logging.Logger
	now        func() time.Time
	validate   *validator.Validate
}

// New creates an Engine. A nil decomposer uses keyword classification.
func New(d *decompose.Decomposer, opts ...Option) *Engine {
	if d == nil {
		d = decompose.New(nil)
	}
	e := &Engine{
		store:      newStore(),
		active:     make(map[string]struct{}),
		decomposer: d,
		logger:     logging.Nop(),
		now:        time.Now,
		validate:   validator.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decompose runs the decomposer on note and registers the resulting chain
// as pending tasks. Either every task is registered or none is.
func (e *Engine) Decompose(ctx context.Context, note *models.Note) ([]*models.Task, error) {
	specs, err := e.decomposer.Decompose(ctx, note)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	batch := make([]*models.Task, 0, len(specs))
	batchIDs := make(map[string]bool, len(specs))
	seq := e.seq

	for _, spec := range specs {
		seq++
		t := &models.Task{
			ID:                taskID(spec.Type, seq, note.ID, spec.Title),
			Type:              spec.Type,
			Phase:             spec.Phase,
			NoteID:            note.ID,
			ProjectID:         note.Project,
			Title:             spec.Title,
			Description:       spec.Description,
			AgentType:         spec.AgentType,
			Status:            models.TaskStatusPending,
			Priority:          spec.Priority,
			EstimatedDuration: spec.EstimatedDuration,
			Checklist:         append([]string(nil), spec.Checklist...),
			CreatedAt:         now,
		}
		if spec.DependsOnIndex >= 0 {
			t.DependsOn = batch[spec.DependsOnIndex].ID
		}
		if e.store.has(t.ID) || batchIDs[t.ID] {
			return nil, fmt.Errorf("register %s: %w", t.ID, ErrDuplicateID)
		}
		if err := e.validate.Struct(t); err != nil {
			return nil, fmt.Errorf("register %s: %w", t.ID, err)
		}
		batchIDs[t.ID] = true
		batch = append(batch, t)
	}

	e.seq = seq
	out := make([]*models.Task, 0, len(batch))
	for _, t := range batch {
		e.store.add(t)
		e.persist(t)
		out = append(out, cloneTask(t))
	}

	e.logger.Log("decomposed note %s into %d tasks", note.ID, len(batch))
	return out, nil
}

// NextReady returns the first task in insertion order that is pending and
// whose dependency, if any, is completed.
func (e *Engine) NextReady() (*models.Task, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, t := range e.store.tasks {
		if t.Ready(e.store.statusOf) {
			return cloneTask(t), true
		}
	}
	return nil, false
}

// Start moves a pending task with a satisfied dependency to in_progress.
func (e *Engine) Start(id, agentID string) (*models.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.store.get(id)
	if !ok {
		return nil, fmt.Errorf("start %s: %w", id, ErrTaskNotFound)
	}
	if t.Status != models.TaskStatusPending {
		return nil, fmt.Errorf("start %s: %w: status is %s", id, ErrInvalidTransition, t.Status)
	}
	if !t.Ready(e.store.statusOf) {
		return nil, fmt.Errorf("start %s: %w: %s", id, ErrDependencyNotSatisfied, t.DependsOn)
	}

	now := e.now()
	t.Status = models.TaskStatusInProgress
	t.StartedAt = &now
	t.AssignedAgent = agentID
	e.active[id] = struct{}{}
	e.persist(t)

	e.logger.Log("started %s on %s", id, agentID)
	return cloneTask(t), nil
}

// Complete moves an in_progress task to completed.
func (e *Engine) Complete(id string, output *models.TaskOutput) (*models.Task, error) {
	return e.finish(id, models.TaskStatusCompleted, output)
}

// Fail moves an in_progress task to failed, recording cause in the output.
func (e *Engine) Fail(id string, cause error, output *models.TaskOutput) (*models.Task, error) {
	if output == nil {
		output = &models.TaskOutput{ExitCode: -1}
	}
	if cause != nil && output.Error == "" {
		output.Error = cause.Error()
	}
	return e.finish(id, models.TaskStatusFailed, output)
}

func (e *Engine) finish(id string, status models.TaskStatus, output *models.TaskOutput) (*models.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.store.get(id)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", status, id, ErrTaskNotFound)
	}
	if t.Status != models.TaskStatusInProgress {
		return nil, fmt.Errorf("%s %s: %w: status is %s", status, id, ErrInvalidTransition, t.Status)
	}

	now := e.now()
	t.Status = status
	t.CompletedAt = &now
	if t.StartedAt != nil {
		t.ActualDuration = now.Sub(*t.StartedAt)
	}
	if output != nil {
		o := *output
		t.Output = &o
	}
	delete(e.active, id)
	e.persist(t)

	e.logger.Log("%s %s after %s", status, id, t.ActualDuration.Round(time.Millisecond))
	return cloneTask(t), nil
}

// Get returns a copy of the task with the given id.
func (e *Engine) Get(id string) (*models.Task, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.store.get(id)
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrTaskNotFound)
	}
	return cloneTask(t), nil
}

// All returns every task in insertion order.
func (e *Engine) All() []*models.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.filter(nil)
}

// TasksForNote returns the chain derived from a note.
func (e *Engine) TasksForNote(noteID string) []*models.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.filter(func(t *models.Task) bool { return t.NoteID == noteID })
}

// TasksForProject returns all tasks belonging to a project.
func (e *Engine) TasksForProject(projectID string) []*models.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.filter(func(t *models.Task) bool { return t.ProjectID == projectID })
}

// Active returns the tasks currently in progress.
func (e *Engine) Active() []*models.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.filter(func(t *models.Task) bool {
		_, ok := e.active[t.ID]
		return ok
	})
}

// BlockedTask is a pending task that can never become ready.
type BlockedTask struct {
	Task     *models.Task
	FailedID string
}

// Blocked lists pending tasks with a failed task upstream in their chain.
func (e *Engine) Blocked() []BlockedTask {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []BlockedTask
	for _, t := range e.store.tasks {
		if t.Status != models.TaskStatusPending {
			continue
		}
		if failed, ok := e.store.blockedBy(t); ok {
			out = append(out, BlockedTask{Task: cloneTask(t), FailedID: failed.ID})
		}
	}
	return out
}

// QueueStatus counts tasks by status.
type QueueStatus struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Ready      int `json:"ready"`
	Blocked    int `json:"blocked"`
	Total      int `json:"total"`
}

// QueueStatus returns counts by status plus ready and blocked counts.
func (e *Engine) QueueStatus() QueueStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var qs QueueStatus
	for _, t := range e.store.tasks {
		qs.Total++
		switch t.Status {
		case models.TaskStatusPending:
			qs.Pending++
			if t.Ready(e.store.statusOf) {
				qs.Ready++
			} else if _, ok := e.store.blockedBy(t); ok {
				qs.Blocked++
			}
		case models.TaskStatusInProgress:
			qs.InProgress++
		case models.TaskStatusCompleted:
			qs.Completed++
		case models.TaskStatusFailed:
			qs.Failed++
		}
	}
	return qs
}

// Stats summarizes finished work.
type Stats struct {
	Finished    int           `json:"finished"`
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// Stats returns the success rate and average duration of finished tasks.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var s Stats
	var total time.Duration
	for _, t := range e.store.tasks {
		switch t.Status {
		case models.TaskStatusCompleted:
			s.Completed++
		case models.TaskStatusFailed:
			s.Failed++
		default:
			continue
		}
		total += t.ActualDuration
	}
	s.Finished = s.Completed + s.Failed
	if s.Finished > 0 {
		s.SuccessRate = float64(s.Completed) / float64(s.Finished)
		s.AvgDuration = total / time.Duration(s.Finished)
	}
	return s
}

// Restore reloads persisted tasks into an empty engine, in the given order.
// Tasks found in_progress cannot be resumed and are marked failed.
func (e *Engine) Restore(tasks []*models.Task) error {
	return e.load(tasks, true)
}

// Load reloads tasks as they are, for a read-only view of a journal that
// another process owns. Nothing is persisted.
func (e *Engine) Load(tasks []*models.Task) error {
	return e.load(tasks, false)
}

func (e *Engine) load(tasks []*models.Task, interrupt bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.store.tasks) > 0 {
		return fmt.Errorf("restore: engine already holds %d tasks", len(e.store.tasks))
	}

	now := e.now()
	for _, src := range tasks {
		if e.store.has(src.ID) {
			return fmt.Errorf("restore %s: %w", src.ID, ErrDuplicateID)
		}
		t := cloneTask(src)
		switch {
		case t.Status == models.TaskStatusInProgress && interrupt:
			t.Status = models.TaskStatusFailed
			t.CompletedAt = &now
			if t.StartedAt != nil {
				t.ActualDuration = now.Sub(*t.StartedAt)
			}
			if t.Output == nil {
				t.Output = &models.TaskOutput{ExitCode: -1}
			}
			t.Output.Error = "interrupted by restart"
			e.persist(t)
		case t.Status == models.TaskStatusInProgress:
			e.active[t.ID] = struct{}{}
		}
		e.store.add(t)
		if n := seqOf(t.ID); n > e.seq {
			e.seq = n
		}
	}

	e.logger.Log("restored %d tasks, next seq %d", len(tasks), e.seq+1)
	return nil
}

func (e *Engine) persist(t *models.Task) {
	if e.journal == nil {
		return
	}
	if err := e.journal.SaveTask(cloneTask(t)); err != nil {
		e.logger.Log("journal save %s failed: %v", t.ID, err)
	}
}
