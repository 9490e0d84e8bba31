//go:build unix

package exec

import (
	"errors"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"
)

type capture struct {
	mu    sync.Mutex
	lines map[Stream][]string
}

func (c *capture) sink(s Stream, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lines == nil {
		c.lines = make(map[Stream][]string)
	}
	c.lines[s] = append(c.lines[s], line)
}

func (c *capture) get(s Stream) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines[s]...)
}

func TestLaunch_StreamsLinesAndStdin(t *testing.T) {
	c := &capture{}
	dir := t.TempDir()

	h, err := NewLauncher().Launch(Spec{
		Command: `read first; echo "got $first"; echo "in $(pwd)"; echo oops >&2; printf tail`,
		Dir:     dir,
		Env:     os.Environ(),
		Stdin:   "hello\nignored\n",
	}, c.sink)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	code, err := h.Wait()
	if err != nil || code != 0 {
		t.Fatalf("Wait() = %d, %v", code, err)
	}

	out := c.get(Stdout)
	if len(out) != 3 || out[0] != "got hello" || out[2] != "tail" {
		t.Errorf("stdout = %q", out)
	}
	if errLines := c.get(Stderr); len(errLines) != 1 || errLines[0] != "oops" {
		t.Errorf("stderr = %q", errLines)
	}
}

func TestLaunch_ExitCode(t *testing.T) {
	h, err := NewLauncher().Launch(Spec{Command: "exit 3"}, nil)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	code, err := h.Wait()
	if err != nil {
		t.Errorf("non-zero exit should not be an error: %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestLaunch_KillProcessGroup(t *testing.T) {
	h, err := NewLauncher().Launch(Spec{Command: "sleep 60 & sleep 60; wait"}, nil)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := h.Kill(); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process group still running after Kill")
	}
	if code, _ := h.Wait(); code != -1 {
		t.Errorf("exit code after kill = %d, want -1", code)
	}
	if err := h.Kill(); err != nil {
		t.Errorf("Kill after exit = %v, want nil", err)
	}
}

func TestLaunch_MissingShell(t *testing.T) {
	_, err := NewLauncher().Launch(Spec{Shell: "/nonexistent/shell", Command: "true"}, nil)
	if err == nil {
		t.Fatal("expected error for missing shell")
	}
}

func TestLaunch_BackgroundChildKilledOnExit(t *testing.T) {
	c := &capture{}
	h, err := NewLauncher().Launch(Spec{Command: "(sleep 30; echo late) & echo done"}, c.sink)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	pid := h.PID()

	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("Wait blocked on background child")
	}
	code, err := h.Wait()
	if err != nil || code != 0 {
		t.Fatalf("Wait() = %d, %v", code, err)
	}
	if out := c.get(Stdout); len(out) != 1 || out[0] != "done" {
		t.Errorf("stdout = %q", out)
	}
	if !groupGone(pid, 5*time.Second) {
		t.Errorf("process group %d still alive after exit", pid)
	}
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
