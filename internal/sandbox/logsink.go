package sandbox

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	iexec "github.com/ShayCichocki/swarm/internal/exec"
)

// tailLines is how many log lines a sink keeps in memory.
const tailLines = 200

// logSink appends timestamped output lines to execution.log and keeps the
// most recent lines in memory.
type logSink struct {
	mu   sync.Mutex
	file *os.File
	tail []string
}

func openLogSink(path string) (*logSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open execution log: %w", err)
	}
	return &logSink{file: f}, nil
}

// Line records one line from a process stream.
func (l *logSink) Line(stream iexec.Stream, line string) {
	l.write(string(stream), line)
}

// System records a line produced by the sandbox itself.
func (l *logSink) System(format string, args ...interface{}) {
	l.write("SYSTEM", fmt.Sprintf(format, args...))
}

func (l *logSink) write(source, line string) {
	entry := fmt.Sprintf("[%s] %s: %s", time.Now().UTC().Format(time.RFC3339Nano), source, line)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		fmt.Fprintln(l.file, entry)
	}
	l.tail = append(l.tail, entry)
	if len(l.tail) > tailLines {
		l.tail = l.tail[len(l.tail)-tailLines:]
	}
}

// Tail returns the buffered lines joined by newlines.
func (l *logSink) Tail() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tail) == 0 {
		return ""
	}
	return strings.Join(l.tail, "\n") + "\n"
}

func (l *logSink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
