// Package logging provides the timestamped file logger shared by swarm components.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger appends timestamped lines to a log file.
// A nil Logger, or one without a file, discards everything.
type Logger struct {
	mu     *sync.Mutex
	file   *os.File
	prefix string
}

// New creates a logger writing to the specified path.
// If the path is empty, returns a no-op logger.
// Creates parent directories if they don't exist.
func New(logPath string) (*Logger, error) {
	if logPath == "" {
		return Nop(), nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := &Logger{mu: &sync.Mutex{}, file: f}
	logger.Log("=== swarm log started at %s ===", time.Now().Format(time.RFC3339))
	return logger, nil
}

// ForWorkspace creates a logger under <workspace>/logs/swarm.log.
// Returns a no-op logger if the file cannot be opened.
func ForWorkspace(workspace string) *Logger {
	logger, err := New(filepath.Join(workspace, "logs", "swarm.log"))
	if err != nil {
		return Nop()
	}
	return logger
}

// Nop returns a logger that discards all output.
func Nop() *Logger {
	return &Logger{mu: &sync.Mutex{}}
}

// With returns a logger sharing the same file that prefixes every
// message with "[component] ".
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{mu: l.mu, file: l.file, prefix: "[" + component + "] "}
}

// Log writes a timestamped message.
func (l *Logger) Log(format string, args ...interface{}) {
	if l == nil || l.file == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(l.file, "[%s] %s%s\n", timestamp, l.prefix, msg)
	l.file.Sync()
}

// Close closes the log file.
// Safe to call on nil logger or logger without file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}
