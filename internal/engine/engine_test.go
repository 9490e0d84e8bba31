package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/swarm/internal/decompose"
	"github.com/ShayCichocki/swarm/pkg/models"
)

// fakeClock advances one second per call.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type memJournal struct {
	mu    sync.Mutex
	saved map[string]models.TaskStatus
	fail  bool
}

func (j *memJournal) SaveTask(t *models.Task) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return errors.New("disk full")
	}
	if j.saved == nil {
		j.saved = make(map[string]models.TaskStatus)
	}
	j.saved[t.ID] = t.Status
	return nil
}

func setupEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
	return New(decompose.New(nil), append([]Option{WithClock(clock.Now)}, opts...)...)
}

func decomposeNote(t *testing.T, e *Engine, id, body string) []*models.Task {
	t.Helper()
	tasks, err := e.Decompose(context.Background(), &models.Note{ID: id, Title: id, Body: body, Project: "proj"})
	if err != nil {
		t.Fatalf("Decompose(%s) error = %v", id, err)
	}
	return tasks
}

// runTask starts and completes the next ready task, asserting its id.
func runTask(t *testing.T, e *Engine, wantID string) {
	t.Helper()
	next, ok := e.NextReady()
	if !ok {
		t.Fatalf("NextReady() = none, want %s", wantID)
	}
	if next.ID != wantID {
		t.Fatalf("NextReady() = %s, want %s", next.ID, wantID)
	}
	if _, err := e.Start(next.ID, "claude"); err != nil {
		t.Fatalf("Start(%s) error = %v", next.ID, err)
	}
	if _, err := e.Complete(next.ID, &models.TaskOutput{Report: "done"}); err != nil {
		t.Fatalf("Complete(%s) error = %v", next.ID, err)
	}
}

func TestDecompose_ChainLinks(t *testing.T) {
	e := setupEngine(t)
	tasks := decomposeNote(t, e, "n1", "1. Add login page\n2. Add logout button")

	if len(tasks) != 4 {
		t.Fatalf("got %d tasks, want 4", len(tasks))
	}
	if err := decompose.ValidateTasks(tasks); err != nil {
		t.Errorf("chain broken: %v", err)
	}
	for _, task := range tasks {
		if task.Status != models.TaskStatusPending {
			t.Errorf("%s status = %s, want pending", task.ID, task.Status)
		}
		if task.ProjectID != "proj" || task.NoteID != "n1" {
			t.Errorf("%s note/project = %s/%s", task.ID, task.NoteID, task.ProjectID)
		}
	}
	if !strings.HasPrefix(tasks[0].ID, "RES-0001-") || !strings.HasPrefix(tasks[1].ID, "EXEC-0002-") ||
		!strings.HasPrefix(tasks[3].ID, "REV-0004-") {
		t.Errorf("unexpected ids: %s %s %s", tasks[0].ID, tasks[1].ID, tasks[3].ID)
	}
}

func TestDecompose_DeterministicIDs(t *testing.T) {
	a := decomposeNote(t, setupEngine(t), "n1", "Investigate caching")
	b := decomposeNote(t, setupEngine(t), "n1", "Investigate caching")
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Errorf("id %d differs: %s vs %s", i, a[i].ID, b[i].ID)
		}
	}
}

func TestDecompose_MalformedNoteRegistersNothing(t *testing.T) {
	e := setupEngine(t)
	_, err := e.Decompose(context.Background(), &models.Note{ID: "bad", Body: "   "})
	if !errors.Is(err, decompose.ErrMalformedNote) {
		t.Fatalf("error = %v, want ErrMalformedNote", err)
	}
	if n := len(e.All()); n != 0 {
		t.Errorf("registered %d tasks after failure", n)
	}
}

func TestDecompose_DuplicateID(t *testing.T) {
	e := setupEngine(t)
	first := decomposeNote(t, e, "n1", "Investigate caching")

	// Rewind the sequence so the same ids are generated again.
	e.seq = 0
	_, err := e.Decompose(context.Background(), &models.Note{ID: "n1", Title: "n1", Body: "Investigate caching", Project: "proj"})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("error = %v, want ErrDuplicateID", err)
	}
	if n := len(e.All()); n != len(first) {
		t.Errorf("task count = %d, want %d (no partial batch)", n, len(first))
	}
}

func TestNextReady_RespectsDependencies(t *testing.T) {
	e := setupEngine(t)
	tasks := decomposeNote(t, e, "n1", "1. Add login page\n2. Add logout button")

	for _, want := range tasks {
		next, ok := e.NextReady()
		if !ok || next.ID != want.ID {
			t.Fatalf("NextReady() = %v, want %s", next, want.ID)
		}
		if _, err := e.Start(next.ID, "claude"); err != nil {
			t.Fatalf("Start error = %v", err)
		}
		if _, ok := e.NextReady(); ok {
			t.Fatalf("NextReady() returned a task while %s is in progress", next.ID)
		}
		if _, err := e.Complete(next.ID, nil); err != nil {
			t.Fatalf("Complete error = %v", err)
		}
	}

	if _, ok := e.NextReady(); ok {
		t.Error("NextReady() should be empty after the chain finished")
	}
}

func TestNextReady_InsertionOrderAcrossNotes(t *testing.T) {
	e := setupEngine(t)
	a := decomposeNote(t, e, "a", "Understand why startup is slow")
	b := decomposeNote(t, e, "b", "Understand why login is slow")

	if _, err := e.Start(a[0].ID, "claude"); err != nil {
		t.Fatal(err)
	}
	next, ok := e.NextReady()
	if !ok || next.ID != b[0].ID {
		t.Errorf("NextReady() = %v, want head of second chain %s", next, b[0].ID)
	}
}

func TestStart_Errors(t *testing.T) {
	e := setupEngine(t)
	tasks := decomposeNote(t, e, "n1", "Investigate caching")

	if _, err := e.Start("missing", "claude"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Start(missing) = %v, want ErrTaskNotFound", err)
	}
	if _, err := e.Start(tasks[1].ID, "claude"); !errors.Is(err, ErrDependencyNotSatisfied) {
		t.Errorf("Start(second) = %v, want ErrDependencyNotSatisfied", err)
	}
	if _, err := e.Start(tasks[0].ID, "claude"); err != nil {
		t.Fatalf("Start(first) = %v", err)
	}
	if _, err := e.Start(tasks[0].ID, "claude"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Start = %v, want ErrInvalidTransition", err)
	}
}

func TestTransitions_Monotonic(t *testing.T) {
	e := setupEngine(t)
	tasks := decomposeNote(t, e, "n1", "Investigate caching")
	id := tasks[0].ID

	if _, err := e.Complete(id, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Complete(pending) = %v, want ErrInvalidTransition", err)
	}

	e.Start(id, "claude")
	done, err := e.Complete(id, &models.TaskOutput{Report: "ok"})
	if err != nil {
		t.Fatalf("Complete = %v", err)
	}

	if _, err := e.Fail(id, errors.New("late"), nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fail(completed) = %v, want ErrInvalidTransition", err)
	}
	if _, err := e.Start(id, "claude"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Start(completed) = %v, want ErrInvalidTransition", err)
	}
	if _, err := e.Complete(id, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Complete(completed) = %v, want ErrInvalidTransition", err)
	}

	got, _ := e.Get(id)
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.ActualDuration != got.CompletedAt.Sub(*got.StartedAt) {
		t.Errorf("actual duration %v != completed - started", got.ActualDuration)
	}
	if done.ActualDuration != time.Second {
		t.Errorf("actual duration = %v, want 1s from fake clock", done.ActualDuration)
	}
}

func TestFail_BlocksChain(t *testing.T) {
	e := setupEngine(t)
	tasks := decomposeNote(t, e, "n1", "1. Add login page\n2. Add logout button")

	runTask(t, e, tasks[0].ID)
	e.Start(tasks[1].ID, "codex")
	failed, err := e.Fail(tasks[1].ID, errors.New("no completion report"), nil)
	if err != nil {
		t.Fatalf("Fail = %v", err)
	}
	if failed.Output == nil || failed.Output.Error != "no completion report" {
		t.Errorf("failure output = %+v", failed.Output)
	}

	if next, ok := e.NextReady(); ok {
		t.Errorf("NextReady() = %s, want none past failure", next.ID)
	}

	blocked := e.Blocked()
	if len(blocked) != 2 {
		t.Fatalf("Blocked() = %d tasks, want 2", len(blocked))
	}
	for _, b := range blocked {
		if b.FailedID != tasks[1].ID {
			t.Errorf("%s blocked by %s, want %s", b.Task.ID, b.FailedID, tasks[1].ID)
		}
	}

	qs := e.QueueStatus()
	want := QueueStatus{Pending: 2, Completed: 1, Failed: 1, Blocked: 2, Total: 4}
	if qs != want {
		t.Errorf("QueueStatus() = %+v, want %+v", qs, want)
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	e := setupEngine(t)
	tasks := decomposeNote(t, e, "n1", "Investigate caching")

	tasks[0].Status = models.TaskStatusCompleted
	tasks[0].Checklist[0] = "mutated"

	got, _ := e.Get(tasks[0].ID)
	if got.Status != models.TaskStatusPending {
		t.Error("caller mutation leaked into engine status")
	}
	if got.Checklist[0] == "mutated" {
		t.Error("caller mutation leaked into engine checklist")
	}
}

func TestQueries(t *testing.T) {
	e := setupEngine(t)
	decomposeNote(t, e, "a", "Investigate caching")
	b := decomposeNote(t, e, "b", "Fix the crash")

	if got := e.TasksForNote("b"); len(got) != len(b) {
		t.Errorf("TasksForNote(b) = %d, want %d", len(got), len(b))
	}
	if got := e.TasksForProject("proj"); len(got) != len(e.All()) {
		t.Errorf("TasksForProject = %d, want all", len(got))
	}
	e.Start(b[0].ID, "jules")
	if act := e.Active(); len(act) != 1 || act[0].ID != b[0].ID {
		t.Errorf("Active() = %v", act)
	}
}

func TestStats(t *testing.T) {
	e := setupEngine(t)
	tasks := decomposeNote(t, e, "n1", "1. one\n2. two\n3. three")

	runTask(t, e, tasks[0].ID)
	runTask(t, e, tasks[1].ID)
	e.Start(tasks[2].ID, "x")
	e.Fail(tasks[2].ID, errors.New("bad"), nil)

	s := e.Stats()
	if s.Finished != 3 || s.Completed != 2 || s.Failed != 1 {
		t.Errorf("Stats() = %+v", s)
	}
	if s.SuccessRate < 0.66 || s.SuccessRate > 0.67 {
		t.Errorf("SuccessRate = %v", s.SuccessRate)
	}
	if s.AvgDuration != time.Second {
		t.Errorf("AvgDuration = %v, want 1s", s.AvgDuration)
	}
}

func TestJournal(t *testing.T) {
	j := &memJournal{}
	e := setupEngine(t, WithJournal(j))
	tasks := decomposeNote(t, e, "n1", "Investigate caching")

	if len(j.saved) != len(tasks) {
		t.Fatalf("journal saved %d tasks, want %d", len(j.saved), len(tasks))
	}
	runTask(t, e, tasks[0].ID)
	if j.saved[tasks[0].ID] != models.TaskStatusCompleted {
		t.Errorf("journal status = %s, want completed", j.saved[tasks[0].ID])
	}

	j.fail = true
	if _, err := e.Start(tasks[1].ID, "claude"); err != nil {
		t.Errorf("journal failure must not fail Start: %v", err)
	}
}

func TestRestore(t *testing.T) {
	src := setupEngine(t)
	tasks := decomposeNote(t, src, "n1", "1. one\n2. two")
	runTask(t, src, tasks[0].ID)
	src.Start(tasks[1].ID, "claude")

	e := setupEngine(t)
	if err := e.Restore(src.All()); err != nil {
		t.Fatalf("Restore = %v", err)
	}

	interrupted, _ := e.Get(tasks[1].ID)
	if interrupted.Status != models.TaskStatusFailed {
		t.Errorf("in-progress task restored as %s, want failed", interrupted.Status)
	}
	if interrupted.Output == nil || interrupted.Output.Error != "interrupted by restart" {
		t.Errorf("output = %+v", interrupted.Output)
	}
	if len(e.Active()) != 0 {
		t.Error("restored engine should have no active tasks")
	}

	more := decomposeNote(t, e, "n2", "Investigate caching")
	if seqOf(more[0].ID) != len(tasks)+1 {
		t.Errorf("sequence did not resume: %s", more[0].ID)
	}

	if err := e.Restore(nil); err == nil {
		t.Error("Restore into non-empty engine should fail")
	}
}

func TestLoad_KeepsInProgress(t *testing.T) {
	src := setupEngine(t)
	tasks := decomposeNote(t, src, "n1", "1. one\n2. two")
	src.Start(tasks[0].ID, "claude")

	j := &memJournal{}
	e := setupEngine(t, WithJournal(j))
	if err := e.Load(src.All()); err != nil {
		t.Fatalf("Load = %v", err)
	}

	running, _ := e.Get(tasks[0].ID)
	if running.Status != models.TaskStatusInProgress {
		t.Errorf("status = %s, want in_progress", running.Status)
	}
	if len(e.Active()) != 1 {
		t.Errorf("active = %d, want 1", len(e.Active()))
	}
	if len(j.saved) != 0 {
		t.Errorf("Load persisted %v", j.saved)
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("EXEC-0002-1a2b3c4d"); got != "1a2b3c4d" {
		t.Errorf("ShortID = %q", got)
	}
	if got := ShortID("plain"); got != "plain" {
		t.Errorf("ShortID = %q", got)
	}
}
