//go:build unix

package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/ShayCichocki/swarm/pkg/models"
)

func testTask(id string) *models.Task {
	return &models.Task{
		ID:                id,
		Type:              models.TaskTypeExecution,
		Phase:             models.PhaseExecute,
		NoteID:            "note-1",
		ProjectID:         "demo",
		Title:             "Write the parser",
		Description:       "Parse the input format.",
		Priority:          models.PriorityMedium,
		EstimatedDuration: 1,
		Checklist:         []string{"Tests pass", "No lint errors"},
	}
}

func agent(command string) models.AgentProfile {
	return models.AgentProfile{ID: "fake", Type: "cli", Capabilities: []string{"execute"}, Command: command}
}

func newTestManager(t *testing.T, buffer time.Duration) *Manager {
	t.Helper()
	return NewManager(Config{Root: filepath.Join(t.TempDir(), "sandboxes"), TimeoutBuffer: buffer, Retain: true})
}

func TestCreate_ScaffoldsLayout(t *testing.T) {
	m := newTestManager(t, time.Second)

	sb, err := m.Create(testTask("EXEC-0001-abcd1234"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for _, dir := range []string{WorkspaceDir, OutputDir, LogsDir, TmpDir} {
		info, err := os.Stat(filepath.Join(sb.Root, dir))
		if err != nil || !info.IsDir() {
			t.Errorf("missing directory %s: %v", dir, err)
		}
	}

	ctx, err := ReadContext(sb.Root)
	if err != nil {
		t.Fatalf("ReadContext() error = %v", err)
	}
	if ctx.Task.ID != "EXEC-0001-abcd1234" || ctx.Sandbox.ID != sb.ID {
		t.Errorf("context = %+v", ctx)
	}
	if len(ctx.Verification.Checklist) != 2 {
		t.Errorf("checklist = %v", ctx.Verification.Checklist)
	}

	readme, err := os.ReadFile(filepath.Join(sb.Workspace(), ReadmeFile))
	if err != nil {
		t.Fatalf("read README: %v", err)
	}
	if !strings.Contains(string(readme), "- [ ] Tests pass") {
		t.Errorf("README missing checklist:\n%s", readme)
	}

	if !strings.HasPrefix(sb.ID, "agent-abcd1234-") {
		t.Errorf("sandbox id = %q", sb.ID)
	}
	if sb.Status() != models.SandboxStatusIdle {
		t.Errorf("status = %s, want idle", sb.Status())
	}
	if _, err := m.Get(sb.ID); err != nil {
		t.Errorf("Get() error = %v", err)
	}
}

func TestCreate_UniqueIDs(t *testing.T) {
	m := newTestManager(t, time.Second)
	task := testTask("EXEC-0001-abcd1234")

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		sb, err := m.Create(task)
		if err != nil {
			t.Fatalf("Create() #%d error = %v", i, err)
		}
		if seen[sb.ID] {
			t.Fatalf("duplicate sandbox id %s", sb.ID)
		}
		seen[sb.ID] = true
	}
}

func TestCreate_FailureLeavesNothing(t *testing.T) {
	root := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(root, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(Config{Root: root})

	_, err := m.Create(testTask("EXEC-0001-abcd1234"))
	if !errors.Is(err, ErrSandboxInit) {
		t.Fatalf("Create() error = %v, want ErrSandboxInit", err)
	}
	if len(m.List()) != 0 {
		t.Errorf("failed sandbox was registered: %v", m.List())
	}
}

func TestExecute_SuccessWithReport(t *testing.T) {
	m := newTestManager(t, time.Second)
	sb, err := m.Create(testTask("EXEC-0001-abcd1234"))
	if err != nil {
		t.Fatal(err)
	}

	script := `cat > /dev/null; echo working in $PWD; echo "done $TASK_ID" > "$OUTPUT_DIR/completion-report.md"`
	res, err := m.Execute(context.Background(), sb, agent(script))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if !res.Success || res.Status != models.SandboxStatusCompleted {
		t.Fatalf("result = %+v", res)
	}
	if strings.TrimSpace(res.Output.Report) != "done EXEC-0001-abcd1234" {
		t.Errorf("report = %q", res.Output.Report)
	}
	if !strings.Contains(res.Logs, "STDOUT: working in ") {
		t.Errorf("logs = %q", res.Logs)
	}
	if sb.Status() != models.SandboxStatusCompleted {
		t.Errorf("sandbox status = %s", sb.Status())
	}

	logs, err := m.Logs(sb.ID)
	if err != nil {
		t.Fatalf("Logs() error = %v", err)
	}
	if !strings.Contains(logs, "SYSTEM: process exited with code 0") {
		t.Errorf("execution.log = %q", logs)
	}
}

func TestExecute_CleanExitWithoutReport(t *testing.T) {
	m := newTestManager(t, time.Second)
	sb, _ := m.Create(testTask("EXEC-0001-abcd1234"))

	res, err := m.Execute(context.Background(), sb, agent("true"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("expected failure without a completion report")
	}
	if res.Status != models.SandboxStatusCompleted {
		t.Errorf("status = %s, want completed", res.Status)
	}
	if res.Output.Error != "No completion report found" {
		t.Errorf("error = %q", res.Output.Error)
	}
}

func TestExecute_NonZeroExit(t *testing.T) {
	m := newTestManager(t, time.Second)
	sb, _ := m.Create(testTask("EXEC-0001-abcd1234"))

	script := `echo partial > "$OUTPUT_DIR/completion-report.md"; exit 2`
	res, err := m.Execute(context.Background(), sb, agent(script))
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Status != models.SandboxStatusFailed {
		t.Fatalf("result = %+v", res)
	}
	if res.ExitCode != 2 || res.Output.Error != "agent exited with code 2" {
		t.Errorf("exit = %d, error = %q", res.ExitCode, res.Output.Error)
	}
}

func TestExecute_Timeout(t *testing.T) {
	m := newTestManager(t, 200*time.Millisecond)
	task := testTask("EXEC-0001-abcd1234")
	task.EstimatedDuration = 0
	sb, _ := m.Create(task)

	start := time.Now()
	exe, err := m.Start(context.Background(), sb, agent("sleep 60 & sleep 60; wait"))
	if err != nil {
		t.Fatal(err)
	}
	pid := sb.Info().PID
	if pid == 0 {
		t.Fatal("running sandbox reported no pid")
	}

	res := exe.Wait()
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("timeout took %s", elapsed)
	}
	if res.Success || res.Status != models.SandboxStatusTimeout {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Output.Error, "timed out") {
		t.Errorf("error = %q", res.Output.Error)
	}
	if !groupGone(pid, 5*time.Second) {
		t.Errorf("process group %d still running after timeout", pid)
	}
}

func TestExecute_BackgroundChildDoesNotFailRun(t *testing.T) {
	m := newTestManager(t, time.Minute)
	sb, _ := m.Create(testTask("EXEC-0001-abcd1234"))

	script := `(sleep 30; echo late) & echo done > "$OUTPUT_DIR/completion-report.md"; exit 0`
	exe, err := m.Start(context.Background(), sb, agent(script))
	if err != nil {
		t.Fatal(err)
	}
	pid := leaderPID(t, sb)

	select {
	case <-exe.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("execution waited on background child")
	}
	res := exe.Wait()
	if !res.Success || res.Status != models.SandboxStatusCompleted || res.ExitCode != 0 {
		t.Fatalf("result = %+v", res)
	}
	if strings.TrimSpace(res.Output.Report) != "done" {
		t.Errorf("report = %q", res.Output.Report)
	}
	if !groupGone(pid, 5*time.Second) {
		t.Errorf("background child in group %d outlived the run", pid)
	}
}

func leaderPID(t *testing.T, sb *Sandbox) int {
	t.Helper()
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.handle == nil {
		t.Fatal("sandbox has no process handle")
	}
	return sb.handle.PID()
}

// groupGone polls until no process is left in the group led by pid.
func groupGone(pid int, within time.Duration) bool {
	deadline := time.Now().Add(within)
	for {
		if err := syscall.Kill(-pid, 0); errors.Is(err, syscall.ESRCH) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestExecute_SpawnFailure(t *testing.T) {
	m := NewManager(Config{Root: t.TempDir(), Shell: "/nonexistent/shell"})
	sb, _ := m.Create(testTask("EXEC-0001-abcd1234"))

	res, err := m.Execute(context.Background(), sb, agent("true"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Status != models.SandboxStatusFailed {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Output.Error, "spawn agent") {
		t.Errorf("error = %q", res.Output.Error)
	}
}

func TestExecute_Environment(t *testing.T) {
	m := newTestManager(t, time.Second)
	sb, _ := m.Create(testTask("EXEC-0001-abcd1234"))

	script := `printf '%s|%s|%s|%s\n' "$SANDBOX_ID" "$AGENT_TYPE" "$TASK_TYPE" "$WORKSPACE_DIR" > "$OUTPUT_DIR/completion-report.md"`
	res, err := m.Execute(context.Background(), sb, agent(script))
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{sb.ID, "fake", "execution", sb.Workspace()}, "|")
	if strings.TrimSpace(res.Output.Report) != want {
		t.Errorf("env = %q, want %q", res.Output.Report, want)
	}
}

func TestExecute_Twice(t *testing.T) {
	m := newTestManager(t, time.Second)
	sb, _ := m.Create(testTask("EXEC-0001-abcd1234"))

	if _, err := m.Execute(context.Background(), sb, agent("true")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Execute(context.Background(), sb, agent("true")); !errors.Is(err, ErrAlreadyLaunched) {
		t.Errorf("second Execute() error = %v, want ErrAlreadyLaunched", err)
	}
}

func TestLaunchAndExecute_RemovesWhenNotRetained(t *testing.T) {
	root := t.TempDir()
	m := NewManager(Config{Root: root, TimeoutBuffer: time.Second})

	res, err := m.LaunchAndExecute(context.Background(), testTask("EXEC-0001-abcd1234"),
		agent(`echo ok > "$OUTPUT_DIR/completion-report.md"`))
	if err != nil {
		t.Fatalf("LaunchAndExecute() error = %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(root, res.SandboxID)); !os.IsNotExist(err) {
		t.Errorf("sandbox directory still present: %v", err)
	}
	if len(m.List()) != 0 {
		t.Errorf("sandbox still registered")
	}
}

func TestCleanup_KillsRunning(t *testing.T) {
	m := newTestManager(t, time.Minute)
	sb, _ := m.Create(testTask("EXEC-0001-abcd1234"))

	exe, err := m.Start(context.Background(), sb, agent("sleep 60"))
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := m.Cleanup(sb.ID, true); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	select {
	case <-exe.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("execution still running after cleanup")
	}
	if res := exe.Wait(); res.Success {
		t.Error("killed execution reported success")
	}
	if _, err := m.Get(sb.ID); !errors.Is(err, ErrSandboxNotFound) {
		t.Errorf("Get() after cleanup = %v", err)
	}
}

func TestPruneAndOnDisk(t *testing.T) {
	m := newTestManager(t, time.Second)
	old, _ := m.Create(testTask("EXEC-0001-aaaa0000"))
	fresh, _ := m.Create(testTask("EXEC-0002-bbbb1111"))

	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old.Root, past, past); err != nil {
		t.Fatal(err)
	}

	entries, err := OnDisk(m.Root())
	if err != nil || len(entries) != 2 {
		t.Fatalf("OnDisk() = %v, %v", entries, err)
	}
	if entries[0].ID != fresh.ID {
		t.Errorf("newest entry = %s, want %s", entries[0].ID, fresh.ID)
	}

	n, err := m.Prune(24 * time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("Prune() = %d, %v", n, err)
	}
	if _, err := os.Stat(old.Root); !os.IsNotExist(err) {
		t.Error("old sandbox not removed")
	}
	if _, err := os.Stat(fresh.Root); err != nil {
		t.Error("fresh sandbox removed")
	}
}

func TestReadLogs_Unknown(t *testing.T) {
	if _, err := ReadLogs(t.TempDir(), "missing"); !errors.Is(err, ErrSandboxNotFound) {
		t.Errorf("ReadLogs() error = %v", err)
	}
	if _, err := ReadLogs(t.TempDir(), "../etc"); !errors.Is(err, ErrSandboxNotFound) {
		t.Errorf("ReadLogs() traversal error = %v", err)
	}
}

func TestRelease_RetainKeepsDirectory(t *testing.T) {
	m := newTestManager(t, time.Second)
	sb, _ := m.Create(testTask("EXEC-0001-abcd1234"))
	if _, err := m.Execute(context.Background(), sb, agent("true")); err != nil {
		t.Fatal(err)
	}

	if err := m.Release(sb.ID); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(sb.Root); err != nil {
		t.Errorf("retained sandbox removed: %v", err)
	}
	if _, err := m.Get(sb.ID); !errors.Is(err, ErrSandboxNotFound) {
		t.Errorf("released sandbox still live: %v", err)
	}
	if err := m.Release(sb.ID); !errors.Is(err, ErrSandboxNotFound) {
		t.Errorf("second Release() error = %v", err)
	}
}
