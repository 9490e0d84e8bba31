//go:build unix

package orchestrator

import (
	"path/filepath"
	"testing"

	"github.com/ShayCichocki/swarm/internal/sandbox"
	"github.com/ShayCichocki/swarm/pkg/models"
)

func TestOrchestrateNext_RealSandbox(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns processes")
	}
	f := newFixture(t, []models.AgentProfile{{
		ID:           "sh",
		Capabilities: models.DefaultCapabilities(),
		Command:      `echo "# report" > "$OUTPUT_DIR/completion-report.md"`,
	}})
	mgr := sandbox.NewManager(sandbox.Config{Root: filepath.Join(t.TempDir(), "sandboxes"), Shell: "/bin/sh"})
	f.orch.sandboxes = mgr
	n := f.addNote(t)

	for i := 0; i < 3; i++ {
		if out := f.next(t); out.Kind != OutcomeCompleted {
			t.Fatalf("step %d = %s: %s", i, out.Kind, out.Result.Output.Error)
		}
	}
	if got := noteStatus(t, f.store, n.ID); got != models.NoteStatusCompleted {
		t.Errorf("note status = %s", got)
	}
	if list := mgr.List(); len(list) != 0 {
		t.Errorf("sandboxes left = %d", len(list))
	}
}
