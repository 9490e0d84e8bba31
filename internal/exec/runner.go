package exec

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// drainDelay bounds how long output is read after the process group is
// gone, in case a descendant escaped the group and still holds the pipes.
const drainDelay = 2 * time.Second

// OSLauncher implements Launcher using os/exec.
type OSLauncher struct{}

// NewLauncher creates a new OSLauncher.
func NewLauncher() *OSLauncher {
	return &OSLauncher{}
}

// Verify OSLauncher implements Launcher at compile time.
var _ Launcher = (*OSLauncher)(nil)

// Launch starts the process described by spec. Output lines are pushed to
// sink as they arrive. When the leader exits, the rest of its process group
// is killed so nothing outlives the run.
func (l *OSLauncher) Launch(spec Spec, sink LineSink) (Handle, error) {
	shell := spec.Shell
	if shell == "" {
		shell = "sh"
	}
	if sink == nil {
		sink = func(Stream, string) {}
	}

	cmd := exec.Command(shell, "-c", spec.Command)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", shell, err)
	}

	go func() {
		_, _ = io.Copy(stdin, strings.NewReader(spec.Stdin))
		_ = stdin.Close()
	}()

	stdout := &lineWriter{stream: Stdout, sink: sink}
	stderr := &lineWriter{stream: Stderr, sink: sink}
	var drained sync.WaitGroup
	drained.Add(2)
	go pump(&drained, stdoutPipe, stdout)
	go pump(&drained, stderrPipe, stderr)

	p := &process{cmd: cmd, done: make(chan struct{})}
	go func() {
		state, err := cmd.Process.Wait()
		_ = killProcessGroup(cmd.Process)
		waitDrained(&drained, drainDelay, stdoutPipe, stderrPipe)
		stdout.flush()
		stderr.flush()

		p.exitCode = -1
		if state != nil {
			p.exitCode = state.ExitCode()
		}
		if err != nil {
			p.err = fmt.Errorf("wait %s: %w", shell, err)
		}
		close(p.done)
	}()

	return p, nil
}

func pump(wg *sync.WaitGroup, r io.Reader, w *lineWriter) {
	defer wg.Done()
	_, _ = io.Copy(w, r)
}

// waitDrained waits for both pumps to hit EOF. Past the delay the read
// ends are closed so the pumps return.
func waitDrained(wg *sync.WaitGroup, delay time.Duration, pipes ...io.Closer) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-done:
		return
	case <-timer.C:
	}
	for _, c := range pipes {
		_ = c.Close()
	}
	<-done
}

type process struct {
	cmd      *exec.Cmd
	done     chan struct{}
	exitCode int
	err      error
}

func (p *process) PID() int {
	return p.cmd.Process.Pid
}

func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) Wait() (int, error) {
	<-p.done
	return p.exitCode, p.err
}

func (p *process) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	return killProcessGroup(p.cmd.Process)
}

// lineWriter splits written bytes into lines for a LineSink.
type lineWriter struct {
	mu     sync.Mutex
	stream Stream
	sink   LineSink
	buf    bytes.Buffer
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(b)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(w.buf.Next(i + 1))
		w.sink(w.stream, strings.TrimRight(line, "\r\n"))
	}
	return len(b), nil
}

// flush emits a trailing partial line.
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.sink(w.stream, strings.TrimRight(w.buf.String(), "\r"))
		w.buf.Reset()
	}
}
