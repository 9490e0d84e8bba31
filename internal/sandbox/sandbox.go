// Package sandbox provides disposable, directory-scoped execution
// environments for agent processes. Isolation is filesystem-scoped only.
package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	iexec "github.com/ShayCichocki/swarm/internal/exec"
	"github.com/ShayCichocki/swarm/pkg/models"
)

// Fixed layout of a sandbox root.
const (
	WorkspaceDir   = "workspace"
	OutputDir      = "output"
	LogsDir        = "logs"
	TmpDir         = "tmp"
	ContextFile    = "task-context.json"
	ReadmeFile     = "README.md"
	ReportFile     = "completion-report.md"
	ExecutionLog   = "execution.log"
	contextVersion = 1
)

// Sandbox is one execution environment for one task run.
type Sandbox struct {
	ID        string
	Root      string
	Task      *models.Task
	CreatedAt time.Time

	mu        sync.Mutex
	status    models.SandboxStatus
	agentID   string
	startedAt time.Time
	handle    iexec.Handle
}

// Workspace returns the agent's working directory.
func (s *Sandbox) Workspace() string { return filepath.Join(s.Root, WorkspaceDir) }

// Output returns the directory the agent writes results to.
func (s *Sandbox) Output() string { return filepath.Join(s.Root, OutputDir) }

// LogsPath returns the execution log path.
func (s *Sandbox) LogsPath() string { return filepath.Join(s.Root, LogsDir, ExecutionLog) }

// ReportPath returns the completion artifact path.
func (s *Sandbox) ReportPath() string { return filepath.Join(s.Root, OutputDir, ReportFile) }

// Status returns the current lifecycle state.
func (s *Sandbox) Status() models.SandboxStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Sandbox) setStatus(st models.SandboxStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Info is a point-in-time view of a sandbox.
type Info struct {
	ID        string               `json:"id"`
	Root      string               `json:"root"`
	TaskID    string               `json:"task_id"`
	TaskTitle string               `json:"task_title"`
	AgentID   string               `json:"agent_id,omitempty"`
	Status    models.SandboxStatus `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
	StartedAt *time.Time           `json:"started_at,omitempty"`
	PID       int                  `json:"pid,omitempty"`
	Uptime    time.Duration        `json:"uptime"`
}

// Info returns a snapshot of the sandbox state.
func (s *Sandbox) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		ID:        s.ID,
		Root:      s.Root,
		TaskID:    s.Task.ID,
		TaskTitle: s.Task.Title,
		AgentID:   s.agentID,
		Status:    s.status,
		CreatedAt: s.CreatedAt,
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		info.StartedAt = &started
		info.Uptime = time.Since(started)
	}
	if s.handle != nil && s.status == models.SandboxStatusRunning {
		info.PID = s.handle.PID()
	}
	return info
}

// TaskContext is the machine-readable brief written to task-context.json.
type TaskContext struct {
	Version      int               `json:"version"`
	Task         ContextTask       `json:"task"`
	Sandbox      ContextPaths      `json:"sandbox"`
	Verification ContextChecklist  `json:"verification"`
	Rules        map[string]string `json:"rules"`
	CreatedAt    time.Time         `json:"created_at"`
}

// ContextTask mirrors the task fields an agent needs.
type ContextTask struct {
	ID                string          `json:"id"`
	Type              models.TaskType `json:"type"`
	Phase             models.Phase    `json:"phase"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	NoteID            string          `json:"note_id"`
	ProjectID         string          `json:"project_id,omitempty"`
	Priority          models.Priority `json:"priority"`
	EstimatedDuration int             `json:"estimated_duration"`
	AgentType         string          `json:"agent_type,omitempty"`
}

// ContextPaths lists the sandbox directories.
type ContextPaths struct {
	ID        string `json:"id"`
	Root      string `json:"root"`
	Workspace string `json:"workspace"`
	Output    string `json:"output"`
	Logs      string `json:"logs"`
	Tmp       string `json:"tmp"`
}

// ContextChecklist holds the verification criteria.
type ContextChecklist struct {
	Checklist []string `json:"checklist"`
}

// scaffold creates the directory layout and brief files under s.Root.
// s.Root must not exist yet.
func (s *Sandbox) scaffold() error {
	if err := os.Mkdir(s.Root, 0755); err != nil {
		return fmt.Errorf("create root: %w", err)
	}
	for _, dir := range []string{WorkspaceDir, OutputDir, LogsDir, TmpDir} {
		if err := os.Mkdir(filepath.Join(s.Root, dir), 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := s.writeContext(); err != nil {
		return err
	}
	return s.writeReadme()
}

func (s *Sandbox) writeContext() error {
	t := s.Task
	ctx := TaskContext{
		Version: contextVersion,
		Task: ContextTask{
			ID:                t.ID,
			Type:              t.Type,
			Phase:             t.Phase,
			Title:             t.Title,
			Description:       t.Description,
			NoteID:            t.NoteID,
			ProjectID:         t.ProjectID,
			Priority:          t.Priority,
			EstimatedDuration: t.EstimatedDuration,
			AgentType:         t.AgentType,
		},
		Sandbox: ContextPaths{
			ID:        s.ID,
			Root:      s.Root,
			Workspace: s.Workspace(),
			Output:    s.Output(),
			Logs:      filepath.Join(s.Root, LogsDir),
			Tmp:       filepath.Join(s.Root, TmpDir),
		},
		Verification: ContextChecklist{Checklist: append([]string{}, t.Checklist...)},
		Rules: map[string]string{
			"workspace":    "Working directory for this task",
			"output":       "Save all outputs here",
			"logs":         "All logs go here",
			"max-duration": fmt.Sprintf("%d minutes", t.EstimatedDuration),
			"completion":   "Write " + filepath.Join(OutputDir, ReportFile) + " when done",
		},
		CreatedAt: s.CreatedAt,
	}

	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode task context: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.Root, ContextFile), data, 0644); err != nil {
		return fmt.Errorf("write task context: %w", err)
	}
	return nil
}

func (s *Sandbox) writeReadme() error {
	t := s.Task
	checklist := "No checklist"
	if len(t.Checklist) > 0 {
		items := make([]string, len(t.Checklist))
		for i, c := range t.Checklist {
			items[i] = "- [ ] " + c
		}
		checklist = strings.Join(items, "\n")
	}

	readme := fmt.Sprintf(`# Task: %s

%s

## Sandbox Directory Structure
- `+"`workspace/`"+`: Your working directory (you are here)
- `+"`output/`"+`: Save your outputs here
- `+"`logs/`"+`: Execution logs (automated)
- `+"`tmp/`"+`: Temporary files

## Task Details
- ID: %s
- Type: %s
- Phase: %s
- Project: %s
- Priority: %s
- Estimated Duration: %d minutes

## Verification Checklist
%s

## Completion
When complete, create a `+"`%s`"+` in `+"`output/`"+` directory with:
1. Summary of what was done
2. Results/outcomes
3. Any issues encountered
4. Verification of checklist items
`, t.Title, t.Description, t.ID, t.Type, t.Phase, t.ProjectID, t.Priority, t.EstimatedDuration, checklist, ReportFile)

	if err := os.WriteFile(filepath.Join(s.Workspace(), ReadmeFile), []byte(readme), 0644); err != nil {
		return fmt.Errorf("write readme: %w", err)
	}
	return nil
}

// instructions is the prompt piped to the agent's standard input. Standing
// agent instructions, if any, come first.
func (s *Sandbox) instructions(standing string) string {
	t := s.Task
	prompt := fmt.Sprintf(`You are operating in an isolated sandbox for a specific task.

Task: %s
Type: %s
Phase: %s

%s

Your working directory is: %s
Save outputs to: %s
Task brief and checklist: %s

When complete, write a completion report to %s.
The task only counts as done if that file exists.
`, t.Title, t.Type, t.Phase, t.Description, s.Workspace(), s.Output(),
		filepath.Join(s.Workspace(), ReadmeFile), s.ReportPath())
	if standing = strings.TrimSpace(standing); standing != "" {
		prompt = standing + "\n\n" + prompt
	}
	return prompt
}

// ReadContext loads the task context of an on-disk sandbox.
func ReadContext(root string) (*TaskContext, error) {
	data, err := os.ReadFile(filepath.Join(root, ContextFile))
	if err != nil {
		return nil, fmt.Errorf("read task context: %w", err)
	}
	var ctx TaskContext
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("decode task context: %w", err)
	}
	return &ctx, nil
}
