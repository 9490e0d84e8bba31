// Package server exposes swarm as MCP tools over stdio.
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ShayCichocki/swarm/internal/engine"
	"github.com/ShayCichocki/swarm/internal/knowledge"
	"github.com/ShayCichocki/swarm/internal/logging"
	"github.com/ShayCichocki/swarm/internal/orchestrator"
	"github.com/ShayCichocki/swarm/pkg/models"
)

// Notes is the part of the knowledge store the tools use.
type Notes interface {
	AddNote(content string, meta knowledge.NoteMeta) (*models.Note, error)
	GetNote(id string) (*models.Note, error)
}

// Server holds the tool handlers.
type Server struct {
	orch    *orchestrator.Orchestrator
	notes   Notes
	version string
	logger  *logging.Logger
}

// New creates a Server.
func New(orch *orchestrator.Orchestrator, notes Notes, version string, logger *logging.Logger) *Server {
	return &Server{orch: orch, notes: notes, version: version, logger: logger.With("mcp")}
}

// MCP builds the MCP server with every tool registered.
func (s *Server) MCP() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "swarm", Version: s.version}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_note",
		Description: "Add a note to the knowledge store. #project and @tag markers in the content are parsed. Set decompose to register its task chain.",
	}, s.addNote)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "decompose_note",
		Description: "Decompose a stored note into its research, plan, execute and review task chain.",
	}, s.decomposeNote)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "orchestrate_next",
		Description: "Run the next ready task in a sandbox with the best matching agent and wait for the result.",
	}, s.orchestrateNext)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "queue_status",
		Description: "Count tasks by status, including ready and blocked tasks.",
	}, s.queueStatus)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks, optionally filtered by note or status.",
	}, s.listTasks)

	return srv
}

// Run serves the tools on stdin/stdout until ctx ends or the client leaves.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Log("serving MCP on stdio")
	return s.MCP().Run(ctx, &mcp.StdioTransport{})
}

// TaskView is the tool representation of a task.
type TaskView struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Phase         string `json:"phase"`
	NoteID        string `json:"note_id"`
	Title         string `json:"title"`
	Status        string `json:"status"`
	Priority      string `json:"priority"`
	DependsOn     string `json:"depends_on,omitempty"`
	AssignedAgent string `json:"assigned_agent,omitempty"`
	Error         string `json:"error,omitempty"`
}

func viewTask(t *models.Task) TaskView {
	v := TaskView{
		ID:            t.ID,
		Type:          string(t.Type),
		Phase:         string(t.Phase),
		NoteID:        t.NoteID,
		Title:         t.Title,
		Status:        string(t.Status),
		Priority:      string(t.Priority),
		DependsOn:     t.DependsOn,
		AssignedAgent: t.AssignedAgent,
	}
	if t.Output != nil {
		v.Error = t.Output.Error
	}
	return v
}

func viewTasks(tasks []*models.Task) []TaskView {
	out := make([]TaskView, len(tasks))
	for i, t := range tasks {
		out[i] = viewTask(t)
	}
	return out
}

// AddNoteInput is the add_note argument.
type AddNoteInput struct {
	Content   string   `json:"content" jsonschema:"note text; may contain #project and @tag markers"`
	Project   string   `json:"project,omitempty" jsonschema:"project id, overrides a #project marker"`
	Tags      []string `json:"tags,omitempty" jsonschema:"extra tags"`
	Priority  string   `json:"priority,omitempty" jsonschema:"low, medium or high"`
	Decompose bool     `json:"decompose,omitempty" jsonschema:"register the note's task chain right away"`
}

// AddNoteOutput is the add_note result.
type AddNoteOutput struct {
	NoteID  string     `json:"note_id"`
	Title   string     `json:"title"`
	Project string     `json:"project"`
	Tasks   []TaskView `json:"tasks,omitempty"`
}

func (s *Server) addNote(ctx context.Context, _ *mcp.CallToolRequest, in AddNoteInput) (*mcp.CallToolResult, AddNoteOutput, error) {
	inline := knowledge.ParseInline(in.Content)
	if inline.Content == "" {
		return nil, AddNoteOutput{}, errors.New("content is required")
	}

	meta := inline.Meta()
	if in.Project != "" {
		meta.Project = in.Project
	}
	meta.Tags = append(meta.Tags, in.Tags...)
	if in.Priority != "" {
		p := models.Priority(strings.ToLower(in.Priority))
		if !p.Valid() {
			return nil, AddNoteOutput{}, fmt.Errorf("invalid priority %q", in.Priority)
		}
		meta.Priority = p
	}

	note, err := s.notes.AddNote(inline.Content, meta)
	if err != nil {
		return nil, AddNoteOutput{}, err
	}
	out := AddNoteOutput{NoteID: note.ID, Title: note.Title, Project: note.Project}

	if in.Decompose {
		tasks, err := s.orch.Decompose(ctx, note.ID)
		if err != nil {
			return nil, AddNoteOutput{}, fmt.Errorf("note %s stored but not decomposed: %w", note.ID, err)
		}
		out.Tasks = viewTasks(tasks)
	}
	s.logger.Log("add_note %s (%d tasks)", note.ID, len(out.Tasks))
	return nil, out, nil
}

// DecomposeInput is the decompose_note argument.
type DecomposeInput struct {
	NoteID string `json:"note_id" jsonschema:"id of a stored note"`
}

// TasksOutput is a list of tasks.
type TasksOutput struct {
	Tasks []TaskView `json:"tasks"`
}

func (s *Server) decomposeNote(ctx context.Context, _ *mcp.CallToolRequest, in DecomposeInput) (*mcp.CallToolResult, TasksOutput, error) {
	if in.NoteID == "" {
		return nil, TasksOutput{}, errors.New("note_id is required")
	}
	if existing := s.orch.Engine().TasksForNote(in.NoteID); len(existing) > 0 {
		return nil, TasksOutput{}, fmt.Errorf("note %s already has %d tasks", in.NoteID, len(existing))
	}
	tasks, err := s.orch.Decompose(ctx, in.NoteID)
	if err != nil {
		return nil, TasksOutput{}, err
	}
	return nil, TasksOutput{Tasks: viewTasks(tasks)}, nil
}

// OrchestrateInput is the orchestrate_next argument.
type OrchestrateInput struct{}

// OrchestrateOutput is the orchestrate_next result.
type OrchestrateOutput struct {
	Outcome       string    `json:"outcome"`
	Task          *TaskView `json:"task,omitempty"`
	AgentID       string    `json:"agent_id,omitempty"`
	SandboxID     string    `json:"sandbox_id,omitempty"`
	Report        string    `json:"report,omitempty"`
	LogsPath      string    `json:"logs_path,omitempty"`
	NoteCompleted bool      `json:"note_completed,omitempty"`
	NoteError     string    `json:"note_error,omitempty"`
	Blocked       int       `json:"blocked,omitempty"`
}

func (s *Server) orchestrateNext(ctx context.Context, _ *mcp.CallToolRequest, _ OrchestrateInput) (*mcp.CallToolResult, OrchestrateOutput, error) {
	out, err := s.orch.OrchestrateNext(ctx)
	if err != nil {
		return nil, OrchestrateOutput{}, err
	}
	return nil, viewOutcome(out), nil
}

func viewOutcome(out *orchestrator.Outcome) OrchestrateOutput {
	v := OrchestrateOutput{Outcome: string(out.Kind), Blocked: len(out.Blocked)}
	if out.Task != nil {
		tv := viewTask(out.Task)
		v.Task = &tv
		v.AgentID = out.Selection.Agent.ID
	}
	if out.Result != nil {
		v.SandboxID = out.Result.SandboxID
		v.Report = out.Result.Output.Report
		v.LogsPath = out.Result.LogsPath
	}
	v.NoteCompleted = out.NoteCompleted
	if out.NoteErr != nil {
		v.NoteError = out.NoteErr.Error()
	}
	return v
}

// QueueInput is the queue_status argument.
type QueueInput struct{}

// QueueOutput is the queue_status result.
type QueueOutput struct {
	Pending    int  `json:"pending"`
	InProgress int  `json:"in_progress"`
	Completed  int  `json:"completed"`
	Failed     int  `json:"failed"`
	Ready      int  `json:"ready"`
	Blocked    int  `json:"blocked"`
	Total      int  `json:"total"`
	AutoMode   bool `json:"auto_mode"`
}

func viewQueue(q engine.QueueStatus, auto bool) QueueOutput {
	return QueueOutput{
		Pending:    q.Pending,
		InProgress: q.InProgress,
		Completed:  q.Completed,
		Failed:     q.Failed,
		Ready:      q.Ready,
		Blocked:    q.Blocked,
		Total:      q.Total,
		AutoMode:   auto,
	}
}

func (s *Server) queueStatus(_ context.Context, _ *mcp.CallToolRequest, _ QueueInput) (*mcp.CallToolResult, QueueOutput, error) {
	return nil, viewQueue(s.orch.Engine().QueueStatus(), s.orch.AutoMode()), nil
}

// ListTasksInput is the list_tasks argument.
type ListTasksInput struct {
	NoteID string `json:"note_id,omitempty" jsonschema:"only tasks of this note"`
	Status string `json:"status,omitempty" jsonschema:"pending, in_progress, completed or failed"`
}

func (s *Server) listTasks(_ context.Context, _ *mcp.CallToolRequest, in ListTasksInput) (*mcp.CallToolResult, TasksOutput, error) {
	eng := s.orch.Engine()
	tasks := eng.All()
	if in.NoteID != "" {
		tasks = eng.TasksForNote(in.NoteID)
	}
	if in.Status != "" {
		st := models.TaskStatus(in.Status)
		filtered := tasks[:0:0]
		for _, t := range tasks {
			if t.Status == st {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	return nil, TasksOutput{Tasks: viewTasks(tasks)}, nil
}
