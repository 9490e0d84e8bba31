package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	iexec "github.com/ShayCichocki/swarm/internal/exec"
	"github.com/ShayCichocki/swarm/internal/logging"
	"github.com/ShayCichocki/swarm/pkg/models"
)

// DefaultTimeoutBuffer is added to a task's estimated duration.
const DefaultTimeoutBuffer = 5 * time.Minute

var (
	// ErrSandboxInit is returned when scaffolding a sandbox fails.
	ErrSandboxInit = errors.New("sandbox init failed")
	// ErrSandboxNotFound is returned for an unknown sandbox id.
	ErrSandboxNotFound = errors.New("sandbox not found")
	// ErrAlreadyLaunched is returned when executing a sandbox twice.
	ErrAlreadyLaunched = errors.New("sandbox already launched")
)

// Config holds Manager settings.
type Config struct {
	// Root is the directory sandboxes are created under.
	Root string
	// TimeoutBuffer is added to the estimated duration. Zero means the default.
	TimeoutBuffer time.Duration
	// Shell runs agent commands. Defaults to "sh".
	Shell string
	// Retain keeps sandbox directories after LaunchAndExecute.
	Retain bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLauncher replaces the process launcher.
func WithLauncher(l iexec.Launcher) Option {
	return func(m *Manager) { m.launcher = l }
}

// WithLogger sets the application logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l.With("sandbox") }
}

// Output is what the agent declared on completion.
type Output struct {
	Success bool   `json:"success"`
	Report  string `json:"report,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ExecutionResult is the outcome of one sandbox run.
type ExecutionResult struct {
	Success   bool                 `json:"success"`
	Output    Output               `json:"output"`
	Logs      string               `json:"logs"`
	Status    models.SandboxStatus `json:"status"`
	SandboxID string               `json:"sandbox_id"`
	ExitCode  int                  `json:"exit_code"`
	Duration  time.Duration        `json:"duration"`
	LogsPath  string               `json:"logs_path"`
}

// TaskOutput converts the result into the payload recorded on the task.
func (r *ExecutionResult) TaskOutput() *models.TaskOutput {
	return &models.TaskOutput{
		Report:    r.Output.Report,
		Error:     r.Output.Error,
		SandboxID: r.SandboxID,
		Status:    r.Status,
		ExitCode:  r.ExitCode,
		LogsPath:  r.LogsPath,
	}
}

// Execution is a handle on a launched sandbox.
type Execution struct {
	Sandbox *Sandbox
	done    chan struct{}
	result  *ExecutionResult
}

// Done is closed when the result is available.
func (e *Execution) Done() <-chan struct{} { return e.done }

// Wait blocks until the process ends or is killed at its deadline.
func (e *Execution) Wait() *ExecutionResult {
	<-e.done
	return e.result
}

// Manager owns the live sandbox set and their directories.
type Manager struct {
	root     string
	buffer   time.Duration
	shell    string
	retain   bool
	launcher iexec.Launcher
	logger   *logging.Logger

	mu        sync.Mutex
	sandboxes map[string]*Sandbox
	lastStamp int64
}

// NewManager creates a Manager rooted at cfg.Root.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		root:      cfg.Root,
		buffer:    cfg.TimeoutBuffer,
		shell:     cfg.Shell,
		retain:    cfg.Retain,
		launcher:  iexec.NewLauncher(),
		logger:    logging.Nop(),
		sandboxes: make(map[string]*Sandbox),
	}
	if m.buffer <= 0 {
		m.buffer = DefaultTimeoutBuffer
	}
	if m.shell == "" {
		m.shell = "sh"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the directory sandboxes live under.
func (m *Manager) Root() string { return m.root }

// Timeout returns the execution deadline for a task.
func (m *Manager) Timeout(t *models.Task) time.Duration {
	return time.Duration(t.EstimatedDuration)*time.Minute + m.buffer
}

// Create allocates and scaffolds a sandbox for task. On failure nothing
// is left on disk or registered.
func (m *Manager) Create(task *models.Task) (*Sandbox, error) {
	if task == nil || task.ID == "" {
		return nil, fmt.Errorf("%w: task has no id", ErrSandboxInit)
	}

	if err := os.MkdirAll(m.root, 0755); err != nil {
		return nil, fmt.Errorf("%w: create sandbox root: %v", ErrSandboxInit, err)
	}

	now := time.Now()
	id := m.newID(task, now)
	sb := &Sandbox{
		ID:        id,
		Root:      filepath.Join(m.root, id),
		Task:      task,
		CreatedAt: now,
		status:    models.SandboxStatusIdle,
	}

	if err := sb.scaffold(); err != nil {
		if !errors.Is(err, os.ErrExist) {
			os.RemoveAll(sb.Root)
		}
		m.logger.Log("init %s failed: %v", id, err)
		return nil, fmt.Errorf("%w: %s: %v", ErrSandboxInit, id, err)
	}

	m.mu.Lock()
	m.sandboxes[id] = sb
	m.mu.Unlock()

	m.logger.Log("created %s for task %s", id, task.ID)
	return sb, nil
}

// newID derives "<agentType>-<short task id>-<base36 time>". The time part
// is strictly increasing per manager.
func (m *Manager) newID(task *models.Task, now time.Time) string {
	m.mu.Lock()
	stamp := now.UnixNano()
	if stamp <= m.lastStamp {
		stamp = m.lastStamp + 1
	}
	m.lastStamp = stamp
	m.mu.Unlock()

	kind := sanitize(task.AgentType)
	if kind == "" {
		kind = "agent"
	}
	short := task.ID
	if i := strings.LastIndex(short, "-"); i >= 0 {
		short = short[i+1:]
	}
	return fmt.Sprintf("%s-%s-%s", kind, sanitize(short), strconv.FormatInt(stamp, 36))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// Start launches agent inside sb and returns immediately. The process is
// killed once the task's deadline passes. Cancelling ctx after Start does
// not stop the run.
func (m *Manager) Start(ctx context.Context, sb *Sandbox, agent models.AgentProfile) (*Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("start %s: %w", sb.ID, err)
	}

	sb.mu.Lock()
	if sb.status != models.SandboxStatusIdle {
		sb.mu.Unlock()
		return nil, fmt.Errorf("start %s: %w", sb.ID, ErrAlreadyLaunched)
	}
	sb.status = models.SandboxStatusRunning
	sb.agentID = agent.ID
	sb.startedAt = time.Now()
	sb.mu.Unlock()

	exe := &Execution{Sandbox: sb, done: make(chan struct{})}

	sink, err := openLogSink(sb.LogsPath())
	if err != nil {
		exe.result = m.finish(sb, nil, -1, false, err)
		close(exe.done)
		return exe, nil
	}

	command := agent.Command
	if command == "" {
		command = agent.ID
	}
	sink.System("launching agent %s: %s", agent.ID, command)

	handle, err := m.launcher.Launch(iexec.Spec{
		Shell:   m.shell,
		Command: command,
		Dir:     sb.Workspace(),
		Env:     environment(sb, agent),
		Stdin:   sb.instructions(agent.Instructions),
	}, sink.Line)
	if err != nil {
		sink.System("spawn failed: %v", err)
		exe.result = m.finish(sb, sink, -1, false, fmt.Errorf("spawn agent: %w", err))
		sink.Close()
		close(exe.done)
		return exe, nil
	}

	sb.mu.Lock()
	sb.handle = handle
	sb.mu.Unlock()

	timeout := m.Timeout(sb.Task)
	m.logger.Log("launched %s pid=%d agent=%s timeout=%s", sb.ID, handle.PID(), agent.ID, timeout)

	go func() {
		defer close(exe.done)
		defer sink.Close()

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		timedOut := false
		select {
		case <-handle.Done():
		case <-timer.C:
			timedOut = true
			sink.System("deadline of %s exceeded, killing process group", timeout)
			if err := handle.Kill(); err != nil {
				m.logger.Log("kill %s failed: %v", sb.ID, err)
			}
		}

		code, waitErr := handle.Wait()
		sink.System("process exited with code %d", code)
		exe.result = m.finish(sb, sink, code, timedOut, waitErr)
	}()

	return exe, nil
}

// Execute launches agent in sb and blocks until the run ends.
func (m *Manager) Execute(ctx context.Context, sb *Sandbox, agent models.AgentProfile) (*ExecutionResult, error) {
	exe, err := m.Start(ctx, sb, agent)
	if err != nil {
		return nil, err
	}
	return exe.Wait(), nil
}

// LaunchAndExecute creates a sandbox for task, runs agent in it and
// collects the result. Only sandbox creation errors are returned; agent
// failures are reported in the result.
func (m *Manager) LaunchAndExecute(ctx context.Context, task *models.Task, agent models.AgentProfile) (*ExecutionResult, error) {
	sb, err := m.Create(task)
	if err != nil {
		return nil, err
	}

	res, err := m.Execute(ctx, sb, agent)
	if err != nil {
		m.Cleanup(sb.ID, true)
		return nil, err
	}

	if err := m.Release(sb.ID); err != nil {
		m.logger.Log("release %s failed: %v", sb.ID, err)
	}
	return res, nil
}

// Release forgets a finished sandbox, removing its directory unless the
// manager retains sandboxes.
func (m *Manager) Release(id string) error {
	if m.retain {
		m.mu.Lock()
		_, ok := m.sandboxes[id]
		delete(m.sandboxes, id)
		m.mu.Unlock()
		if !ok {
			return fmt.Errorf("release %s: %w", id, ErrSandboxNotFound)
		}
		return nil
	}
	return m.Cleanup(id, true)
}

// finish decides the final status and reads the completion artifact.
func (m *Manager) finish(sb *Sandbox, sink *logSink, code int, timedOut bool, runErr error) *ExecutionResult {
	status := models.SandboxStatusCompleted
	var failure string
	switch {
	case timedOut:
		status = models.SandboxStatusTimeout
		failure = fmt.Sprintf("execution timed out after %s", m.Timeout(sb.Task))
	case runErr != nil:
		status = models.SandboxStatusFailed
		failure = runErr.Error()
	case code != 0:
		status = models.SandboxStatusFailed
		failure = fmt.Sprintf("agent exited with code %d", code)
	}
	sb.setStatus(status)

	out := collectOutput(sb)
	if failure != "" {
		out.Success = false
		out.Error = failure
	}

	res := &ExecutionResult{
		Success:   status == models.SandboxStatusCompleted && out.Success,
		Output:    out,
		Status:    status,
		SandboxID: sb.ID,
		ExitCode:  code,
		Duration:  time.Since(sb.startedAt),
		LogsPath:  sb.LogsPath(),
	}
	if sink != nil {
		res.Logs = sink.Tail()
	}

	m.logger.Log("finished %s status=%s success=%t exit=%d", sb.ID, status, res.Success, code)
	return res
}

// collectOutput reads output/completion-report.md.
func collectOutput(sb *Sandbox) Output {
	data, err := os.ReadFile(sb.ReportPath())
	if err != nil {
		return Output{Success: false, Error: "No completion report found"}
	}
	return Output{Success: true, Report: string(data)}
}

// environment returns the inherited environment plus sandbox variables.
func environment(sb *Sandbox, agent models.AgentProfile) []string {
	return append(os.Environ(),
		"SANDBOX_ID="+sb.ID,
		"SANDBOX_DIR="+sb.Root,
		"TASK_ID="+sb.Task.ID,
		"TASK_TYPE="+string(sb.Task.Type),
		"AGENT_TYPE="+agent.ID,
		"WORKSPACE_DIR="+sb.Workspace(),
		"OUTPUT_DIR="+sb.Output(),
	)
}

// Get returns a live sandbox.
func (m *Manager) Get(id string) (*Sandbox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sb, ok := m.sandboxes[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrSandboxNotFound)
	}
	return sb, nil
}

// Status returns a snapshot of a live sandbox.
func (m *Manager) Status(id string) (Info, error) {
	sb, err := m.Get(id)
	if err != nil {
		return Info{}, err
	}
	return sb.Info(), nil
}

// List returns snapshots of all live sandboxes, oldest first.
func (m *Manager) List() []Info {
	m.mu.Lock()
	all := make([]*Sandbox, 0, len(m.sandboxes))
	for _, sb := range m.sandboxes {
		all = append(all, sb)
	}
	m.mu.Unlock()

	infos := make([]Info, len(all))
	for i, sb := range all {
		infos[i] = sb.Info()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	sort.SliceStable(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos
}

// Logs returns the execution log of a sandbox, live or on disk.
func (m *Manager) Logs(id string) (string, error) {
	return ReadLogs(m.root, id)
}

// Cleanup kills a running sandbox and forgets it. With remove, its
// directory is deleted too.
func (m *Manager) Cleanup(id string, remove bool) error {
	m.mu.Lock()
	sb, ok := m.sandboxes[id]
	delete(m.sandboxes, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("cleanup %s: %w", id, ErrSandboxNotFound)
	}

	sb.mu.Lock()
	h := sb.handle
	running := sb.status == models.SandboxStatusRunning
	sb.mu.Unlock()

	if running && h != nil {
		if err := h.Kill(); err != nil {
			return fmt.Errorf("cleanup %s: kill: %w", id, err)
		}
		<-h.Done()
	}

	if remove {
		if err := os.RemoveAll(sb.Root); err != nil {
			return fmt.Errorf("cleanup %s: remove: %w", id, err)
		}
	}
	m.logger.Log("cleaned up %s (removed=%t)", id, remove)
	return nil
}

// CleanupAll cleans up every live sandbox and returns the first error.
func (m *Manager) CleanupAll(remove bool) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sandboxes))
	for id := range m.sandboxes {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var first error
	for _, id := range ids {
		if err := m.Cleanup(id, remove); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// DiskEntry describes a sandbox directory found on disk.
type DiskEntry struct {
	ID        string       `json:"id"`
	Root      string       `json:"root"`
	ModTime   time.Time    `json:"mod_time"`
	HasReport bool         `json:"has_report"`
	Context   *TaskContext `json:"context,omitempty"`
}

// OnDisk lists sandbox directories under root, newest first.
func OnDisk(root string) ([]DiskEntry, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sandbox root: %w", err)
	}

	var out []DiskEntry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		dir := filepath.Join(root, e.Name())
		entry := DiskEntry{ID: e.Name(), Root: dir, ModTime: info.ModTime()}
		if ctx, err := ReadContext(dir); err == nil {
			entry.Context = ctx
		}
		if _, err := os.Stat(filepath.Join(dir, OutputDir, ReportFile)); err == nil {
			entry.HasReport = true
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}

// ReadLogs returns the execution log of the sandbox id under root.
func ReadLogs(root, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("read logs %q: %w", id, ErrSandboxNotFound)
	}
	data, err := os.ReadFile(filepath.Join(root, id, LogsDir, ExecutionLog))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if _, statErr := os.Stat(filepath.Join(root, id)); statErr != nil {
				return "", fmt.Errorf("read logs %s: %w", id, ErrSandboxNotFound)
			}
			return "", nil
		}
		return "", fmt.Errorf("read logs %s: %w", id, err)
	}
	return string(data), nil
}

// Prune removes sandbox directories not modified within olderThan.
// Running sandboxes are never removed.
func (m *Manager) Prune(olderThan time.Duration) (int, error) {
	entries, err := OnDisk(m.root)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if !e.ModTime.Before(cutoff) {
			continue
		}
		m.mu.Lock()
		sb, live := m.sandboxes[e.ID]
		m.mu.Unlock()
		if live && sb.Status() == models.SandboxStatusRunning {
			continue
		}
		if live {
			m.mu.Lock()
			delete(m.sandboxes, e.ID)
			m.mu.Unlock()
		}
		if err := os.RemoveAll(e.Root); err != nil {
			return removed, fmt.Errorf("prune %s: %w", e.ID, err)
		}
		removed++
	}
	if removed > 0 {
		m.logger.Log("pruned %d sandboxes older than %s", removed, olderThan)
	}
	return removed, nil
}
