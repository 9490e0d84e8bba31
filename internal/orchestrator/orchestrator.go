package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/swarm/internal/engine"
	"github.com/ShayCichocki/swarm/internal/knowledge"
	"github.com/ShayCichocki/swarm/internal/logging"
	"github.com/ShayCichocki/swarm/internal/sandbox"
	"github.com/ShayCichocki/swarm/internal/state"
	"github.com/ShayCichocki/swarm/pkg/models"
)

// Sandboxes creates and runs sandboxes. *sandbox.Manager implements it.
type Sandboxes interface {
	Create(task *models.Task) (*sandbox.Sandbox, error)
	Execute(ctx context.Context, sb *sandbox.Sandbox, agent models.AgentProfile) (*sandbox.ExecutionResult, error)
	Release(id string) error
	Cleanup(id string, remove bool) error
}

var _ Sandboxes = (*sandbox.Manager)(nil)

// OutcomeKind classifies the result of one orchestration step.
type OutcomeKind string

const (
	// OutcomeIdle means nothing was ready. This is the steady state while
	// waiting on dependencies or new notes.
	OutcomeIdle OutcomeKind = "idle"
	// OutcomeCompleted means the task ran and completed.
	OutcomeCompleted OutcomeKind = "completed"
	// OutcomeFailed means the task ran and failed or timed out.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome reports what one OrchestrateNext call did.
type Outcome struct {
	Kind OutcomeKind
	// Task is the task after its final transition.
	Task *models.Task
	// Selection is how the agent was picked.
	Selection Selection
	// Result is the sandbox execution result.
	Result *sandbox.ExecutionResult
	// NoteCompleted is set when this task finished its note.
	NoteCompleted bool
	// NoteErr is a knowledge store failure while marking the note
	// completed. The task completion stands regardless.
	NoteErr error
	// Blocked lists tasks that can no longer run: all of them when idle,
	// or those stuck behind the task that just failed.
	Blocked []engine.BlockedTask
}

// Orchestrator coordinates the task engine, sandboxes and knowledge store.
type Orchestrator struct {
	engine    *engine.Engine
	sandboxes Sandboxes
	store     knowledge.Store
	agents    *AgentRegistry
	chooser   Chooser
	runs      state.RunStore
	logger    *logging.Logger
	events    *EventEmitter

	pollInterval  time.Duration
	maxConcurrent int
	eventBuffer   int

	// startMu makes selecting and starting a task one critical section.
	startMu  sync.Mutex
	autoMode atomic.Bool
	slots    chan struct{}
	kick     chan struct{}
	wg       sync.WaitGroup

	// unclaimed counts dispatched steps that have not started a task yet.
	unclaimed atomic.Int64
}

// New creates an Orchestrator.
func New(eng *engine.Engine, sandboxes Sandboxes, store knowledge.Store, agents *AgentRegistry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:        eng,
		sandboxes:     sandboxes,
		store:         store,
		agents:        agents,
		chooser:       FirstByID{},
		logger:        logging.Nop(),
		pollInterval:  DefaultPollInterval,
		maxConcurrent: DefaultMaxConcurrent,
		kick:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.slots = make(chan struct{}, o.maxConcurrent)
	if o.eventBuffer > 0 {
		o.events = NewEventEmitter(o.eventBuffer, o.logger)
	}
	return o
}

// Engine returns the task engine.
func (o *Orchestrator) Engine() *engine.Engine { return o.engine }

// Agents returns the agent registry.
func (o *Orchestrator) Agents() *AgentRegistry { return o.agents }

// Events returns the event channel, or nil when events are disabled.
func (o *Orchestrator) Events() <-chan Event {
	if o.events == nil {
		return nil
	}
	return o.events.Events()
}

func (o *Orchestrator) emit(ev Event) {
	if o.events == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	o.events.Emit(ev)
}

// Decompose loads a note, registers its task chain and links the tasks
// into the note's project.
func (o *Orchestrator) Decompose(ctx context.Context, noteID string) ([]*models.Task, error) {
	note, err := o.store.GetNote(noteID)
	if err != nil {
		return nil, err
	}
	if _, err := o.store.EnsureProject(note.Project); err != nil {
		return nil, fmt.Errorf("decompose %s: %w", noteID, err)
	}

	tasks, err := o.engine.Decompose(ctx, note)
	if err != nil {
		return nil, fmt.Errorf("decompose %s: %w", noteID, err)
	}

	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	if err := o.store.LinkTasks(note.Project, ids...); err != nil {
		o.logger.Log("link tasks of %s into %s failed: %v", noteID, note.Project, err)
	}

	o.logger.Log("decomposed note %s into %d tasks", noteID, len(tasks))
	o.emit(Event{Type: EventNoteDecomposed, NoteID: noteID,
		Message: fmt.Sprintf("%d tasks", len(tasks))})
	return tasks, nil
}

// OrchestrateNext runs the next ready task to completion. It returns an
// idle outcome when nothing is ready. Errors mean the task was never
// started: agent selection or sandbox creation failed, and the task stays
// pending. Execution failures are not errors; they yield OutcomeFailed.
func (o *Orchestrator) OrchestrateNext(ctx context.Context) (*Outcome, error) {
	return o.orchestrateNext(ctx, nil)
}

// orchestrateNext calls claimed once the ready task has been started or
// the attempt given up, before the run itself.
func (o *Orchestrator) orchestrateNext(ctx context.Context, claimed func()) (*Outcome, error) {
	o.wg.Add(1)
	defer o.wg.Done()

	o.startMu.Lock()
	unlock := func() {
		o.startMu.Unlock()
		if claimed != nil {
			claimed()
		}
	}
	task, ok := o.engine.NextReady()
	if !ok {
		unlock()
		blocked := o.engine.Blocked()
		o.emit(Event{Type: EventIdle, Message: fmt.Sprintf("%d blocked", len(blocked))})
		return &Outcome{Kind: OutcomeIdle, Blocked: blocked}, nil
	}

	sel, err := o.agents.Select(ctx, task, o.chooser)
	if err != nil {
		unlock()
		o.logger.Log("agent selection for %s failed: %v", task.ID, err)
		return nil, err
	}

	sb, err := o.sandboxes.Create(task)
	if err != nil {
		unlock()
		o.logger.Log("sandbox for %s failed: %v", task.ID, err)
		return nil, fmt.Errorf("orchestrate %s: %w", task.ID, err)
	}

	started, err := o.engine.Start(task.ID, sel.Agent.ID)
	if err != nil {
		unlock()
		o.sandboxes.Cleanup(sb.ID, true)
		return nil, fmt.Errorf("orchestrate %s: %w", task.ID, err)
	}
	unlock()

	o.logger.Log("started %s with agent %s in %s", task.ID, sel.Agent.ID, sb.ID)
	o.emit(Event{Type: EventTaskStarted, TaskID: task.ID, TaskTitle: task.Title,
		NoteID: task.NoteID, AgentID: sel.Agent.ID, SandboxID: sb.ID, LogFile: sb.LogsPath()})

	// The run observes only its own deadline.
	res, err := o.sandboxes.Execute(context.WithoutCancel(ctx), sb, sel.Agent)
	if err != nil {
		res = &sandbox.ExecutionResult{
			Status:    models.SandboxStatusFailed,
			SandboxID: sb.ID,
			ExitCode:  -1,
			Output:    sandbox.Output{Error: err.Error()},
		}
	}
	o.recordRun(started, sel.Agent.ID, res)
	if err := o.sandboxes.Release(sb.ID); err != nil {
		o.logger.Log("release %s failed: %v", sb.ID, err)
	}

	out := &Outcome{Selection: sel, Result: res}
	if res.Success {
		done, err := o.engine.Complete(task.ID, res.TaskOutput())
		if err != nil {
			return nil, fmt.Errorf("complete %s: %w", task.ID, err)
		}
		out.Kind = OutcomeCompleted
		out.Task = done
		o.emit(Event{Type: EventTaskCompleted, TaskID: done.ID, TaskTitle: done.Title, NoteID: done.NoteID,
			AgentID: sel.Agent.ID, SandboxID: sb.ID, Duration: done.ActualDuration, LogFile: res.LogsPath})

		out.NoteCompleted, out.NoteErr = o.CheckNoteCompletion(done.NoteID)
		return out, nil
	}

	cause := errors.New(res.Output.Error)
	failed, err := o.engine.Fail(task.ID, cause, res.TaskOutput())
	if err != nil {
		return nil, fmt.Errorf("fail %s: %w", task.ID, err)
	}
	out.Kind = OutcomeFailed
	out.Task = failed
	o.logger.Log("task %s failed (%s): %s", task.ID, res.Status, res.Output.Error)
	o.emit(Event{Type: EventTaskFailed, TaskID: failed.ID, TaskTitle: failed.Title, NoteID: failed.NoteID,
		AgentID: sel.Agent.ID, SandboxID: sb.ID, Error: cause, Duration: failed.ActualDuration, LogFile: res.LogsPath})

	for _, b := range o.engine.Blocked() {
		if b.FailedID == failed.ID {
			out.Blocked = append(out.Blocked, b)
			o.emit(Event{Type: EventTaskBlocked, TaskID: b.Task.ID, TaskTitle: b.Task.Title, NoteID: b.Task.NoteID,
				Message: "blocked by " + failed.ID})
		}
	}
	return out, nil
}

// CheckNoteCompletion marks a note completed in the knowledge store when
// it has tasks and all of them completed. It reports whether the note is
// complete; the error is a store failure, which never affects task state.
func (o *Orchestrator) CheckNoteCompletion(noteID string) (bool, error) {
	tasks := o.engine.TasksForNote(noteID)
	if len(tasks) == 0 {
		return false, nil
	}
	for _, t := range tasks {
		if t.Status != models.TaskStatusCompleted {
			return false, nil
		}
	}

	status := models.NoteStatusCompleted
	if _, err := o.store.UpdateNote(noteID, knowledge.NoteUpdate{Status: &status}); err != nil {
		o.logger.Log("mark note %s completed failed: %v", noteID, err)
		return true, fmt.Errorf("mark note %s completed: %w", noteID, err)
	}

	o.logger.Log("note %s completed", noteID)
	o.emit(Event{Type: EventNoteCompleted, NoteID: noteID})
	return true, nil
}

func (o *Orchestrator) recordRun(task *models.Task, agentID string, res *sandbox.ExecutionResult) {
	if o.runs == nil {
		return
	}
	started := time.Now().Add(-res.Duration)
	if task.StartedAt != nil {
		started = *task.StartedAt
	}
	run := &state.Run{
		TaskID:     task.ID,
		SandboxID:  res.SandboxID,
		AgentID:    agentID,
		Status:     res.Status,
		Success:    res.Success,
		ExitCode:   res.ExitCode,
		Error:      res.Output.Error,
		LogsPath:   res.LogsPath,
		StartedAt:  started,
		FinishedAt: started.Add(res.Duration),
	}
	if err := o.runs.RecordRun(run); err != nil {
		o.logger.Log("record run of %s failed: %v", task.ID, err)
	}
}
