package server

import (
	"context"
	"slices"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/afero"

	"github.com/ShayCichocki/swarm/internal/decompose"
	"github.com/ShayCichocki/swarm/internal/engine"
	"github.com/ShayCichocki/swarm/internal/knowledge"
	"github.com/ShayCichocki/swarm/internal/logging"
	"github.com/ShayCichocki/swarm/internal/orchestrator"
	"github.com/ShayCichocki/swarm/internal/sandbox"
	"github.com/ShayCichocki/swarm/pkg/models"
)

// instantSandboxes completes every task with a report.
type instantSandboxes struct{}

func (instantSandboxes) Create(task *models.Task) (*sandbox.Sandbox, error) {
	return &sandbox.Sandbox{ID: "sb-" + engine.ShortID(task.ID), Root: "/none", Task: task}, nil
}

func (instantSandboxes) Execute(_ context.Context, sb *sandbox.Sandbox, _ models.AgentProfile) (*sandbox.ExecutionResult, error) {
	return &sandbox.ExecutionResult{
		Success:   true,
		Status:    models.SandboxStatusCompleted,
		SandboxID: sb.ID,
		Output:    sandbox.Output{Success: true, Report: "ok"},
	}, nil
}

func (instantSandboxes) Release(string) error       { return nil }
func (instantSandboxes) Cleanup(string, bool) error { return nil }

func newTestServer(t *testing.T) (*Server, *knowledge.FileStore) {
	t.Helper()
	store := knowledge.NewFileStore(afero.NewMemMapFs(), "/kb")
	if err := store.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	agents := orchestrator.NewAgentRegistry("claude", []models.AgentProfile{
		{ID: "claude", Capabilities: models.DefaultCapabilities(), Command: "true"},
	}, logging.Nop())
	orch := orchestrator.New(engine.New(decompose.New(nil)), instantSandboxes{}, store, agents)
	return New(orch, store, "test", logging.Nop()), store
}

func TestAddNote_ParsesMarkersAndDecomposes(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.addNote(ctx, nil, AddNoteInput{
		Content:   "Research queue backpressure #infra @perf",
		Tags:      []string{"q3"},
		Priority:  "HIGH",
		Decompose: true,
	})
	if err != nil {
		t.Fatalf("addNote() error = %v", err)
	}
	if out.Project != "infra" {
		t.Errorf("project = %q", out.Project)
	}
	if len(out.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(out.Tasks))
	}

	note, err := store.GetNote(out.NoteID)
	if err != nil {
		t.Fatalf("GetNote() error = %v", err)
	}
	if note.Priority != models.PriorityHigh || !slices.Contains(note.Tags, "perf") || !slices.Contains(note.Tags, "q3") {
		t.Errorf("note = %+v", note)
	}
}

func TestAddNote_Errors(t *testing.T) {
	s, _ := newTestServer(t)
	tests := []struct {
		name string
		in   AddNoteInput
	}{
		{"empty content", AddNoteInput{Content: "  #proj "}},
		{"bad priority", AddNoteInput{Content: "do it", Priority: "urgent"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := s.addNote(context.Background(), nil, tt.in); err == nil {
				t.Error("addNote() error = nil")
			}
		})
	}
}

func TestDecomposeAndOrchestrate(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()

	note, err := store.AddNote("Investigate flaky deploys", knowledge.NoteMeta{})
	if err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}

	_, tasks, err := s.decomposeNote(ctx, nil, DecomposeInput{NoteID: note.ID})
	if err != nil {
		t.Fatalf("decomposeNote() error = %v", err)
	}
	if len(tasks.Tasks) != 2 || tasks.Tasks[1].DependsOn != tasks.Tasks[0].ID {
		t.Fatalf("tasks = %+v", tasks.Tasks)
	}
	if _, _, err := s.decomposeNote(ctx, nil, DecomposeInput{NoteID: note.ID}); err == nil {
		t.Error("second decompose should fail")
	}

	_, q, _ := s.queueStatus(ctx, nil, QueueInput{})
	if q.Pending != 2 || q.Ready != 1 || q.Total != 2 {
		t.Errorf("queue = %+v", q)
	}

	_, first, err := s.orchestrateNext(ctx, nil, OrchestrateInput{})
	if err != nil {
		t.Fatalf("orchestrateNext() error = %v", err)
	}
	if first.Outcome != "completed" || first.AgentID != "claude" || first.Report != "ok" || first.NoteCompleted {
		t.Errorf("first = %+v", first)
	}

	_, second, _ := s.orchestrateNext(ctx, nil, OrchestrateInput{})
	if !second.NoteCompleted {
		t.Errorf("second = %+v", second)
	}

	_, idle, _ := s.orchestrateNext(ctx, nil, OrchestrateInput{})
	if idle.Outcome != "idle" || idle.Task != nil {
		t.Errorf("idle = %+v", idle)
	}

	_, done, _ := s.listTasks(ctx, nil, ListTasksInput{NoteID: note.ID, Status: "completed"})
	if len(done.Tasks) != 2 {
		t.Errorf("completed tasks = %d", len(done.Tasks))
	}
	_, pending, _ := s.listTasks(ctx, nil, ListTasksInput{Status: "pending"})
	if pending.Tasks == nil || len(pending.Tasks) != 0 {
		t.Errorf("pending tasks = %v", pending.Tasks)
	}
}

func TestMCP_ListsTools(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := s.MCP().Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server Connect() error = %v", err)
	}
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client Connect() error = %v", err)
	}
	defer cs.Close()

	res, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	for _, want := range []string{"add_note", "decompose_note", "orchestrate_next", "queue_status", "list_tasks"} {
		if !slices.Contains(names, want) {
			t.Errorf("tools = %v, missing %s", names, want)
		}
	}

	call, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "queue_status", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	if call.IsError {
		t.Errorf("queue_status returned a tool error: %+v", call.Content)
	}
}
