package logging

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestNew_WritesTimestampedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "swarm.log")

	l, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Log("hello %s", "world")
	l.With("engine").Log("registered %d tasks", 4)
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), lines)
	}

	stamp := regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\.\d{3}\] `)
	for _, line := range lines {
		if !stamp.MatchString(line) {
			t.Errorf("line %q lacks timestamp prefix", line)
		}
	}
	if !strings.HasSuffix(lines[1], "hello world") {
		t.Errorf("line 2 = %q, want suffix %q", lines[1], "hello world")
	}
	if !strings.HasSuffix(lines[2], "[engine] registered 4 tasks") {
		t.Errorf("line 3 = %q, want component prefix", lines[2])
	}
}

func TestNop_IsSafe(t *testing.T) {
	var nilLogger *Logger
	nilLogger.Log("ignored")
	if err := nilLogger.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
	if nilLogger.With("x") != nil {
		t.Error("With on nil logger should return nil")
	}

	nop := Nop()
	nop.Log("ignored %d", 1)
	nop.With("sandbox").Log("ignored")
	if err := nop.Close(); err != nil {
		t.Errorf("Nop Close() error = %v", err)
	}
}

func TestNew_EmptyPath(t *testing.T) {
	l, err := New("")
	if err != nil {
		t.Fatalf("New(\"\") error = %v", err)
	}
	l.Log("discarded")
}
