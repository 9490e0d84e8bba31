package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Workspace.Dir != ".swarm" {
		t.Errorf("expected workspace dir '.swarm', got %q", cfg.Workspace.Dir)
	}
	if cfg.Sandbox.TimeoutBuffer != 5*time.Minute {
		t.Errorf("expected timeout buffer 5m, got %v", cfg.Sandbox.TimeoutBuffer)
	}
	if cfg.Orchestrator.PollInterval != 30*time.Second {
		t.Errorf("expected poll interval 30s, got %v", cfg.Orchestrator.PollInterval)
	}
	if cfg.Orchestrator.MaxConcurrent != 1 {
		t.Errorf("expected max concurrent 1, got %d", cfg.Orchestrator.MaxConcurrent)
	}
	if cfg.Orchestrator.DefaultAgent != "claude" {
		t.Errorf("expected default agent 'claude', got %q", cfg.Orchestrator.DefaultAgent)
	}
	if cfg.Classifier.Mode != "keyword" {
		t.Errorf("expected classifier mode 'keyword', got %q", cfg.Classifier.Mode)
	}
	if len(cfg.Agents) != 4 {
		t.Errorf("expected 4 built-in agents, got %d", len(cfg.Agents))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() does not validate: %v", err)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := Default()
	cfg.Workspace.Dir = "/data/ws"

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"knowledge root", cfg.KnowledgeRoot(), "/data/ws/kb"},
		{"sandbox root", cfg.SandboxRoot(), "/data/ws/sandboxes"},
		{"state path", cfg.StatePath(), "/data/ws/state.db"},
		{"log path", cfg.LogPath(), "/data/ws/logs/swarm.log"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}

	cfg.Sandbox.Root = "/tmp/boxes"
	if got := cfg.SandboxRoot(); got != "/tmp/boxes" {
		t.Errorf("explicit sandbox root ignored: got %q", got)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
workspace:
  dir: /srv/swarm
sandbox:
  timeout_buffer: 90s
  retain: false
orchestrator:
  poll_interval: 5s
  max_concurrent: 2
  default_agent: local
classifier:
  mode: llm
agents:
  local:
    capabilities: [execute, review]
    command: ./agent.sh
  codex:
    command: codex exec --full-auto -
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Workspace.Dir != "/srv/swarm" {
		t.Errorf("expected workspace '/srv/swarm', got %q", cfg.Workspace.Dir)
	}
	if cfg.Sandbox.TimeoutBuffer != 90*time.Second {
		t.Errorf("expected timeout buffer 90s, got %v", cfg.Sandbox.TimeoutBuffer)
	}
	if cfg.Sandbox.Retain {
		t.Error("expected sandbox.retain to be false")
	}
	if cfg.Sandbox.Shell != "sh" {
		t.Errorf("expected default shell 'sh', got %q", cfg.Sandbox.Shell)
	}
	if cfg.Orchestrator.MaxConcurrent != 2 {
		t.Errorf("expected max concurrent 2, got %d", cfg.Orchestrator.MaxConcurrent)
	}
	if cfg.Classifier.Mode != "llm" {
		t.Errorf("expected classifier 'llm', got %q", cfg.Classifier.Mode)
	}

	local, ok := cfg.Agents["local"]
	if !ok {
		t.Fatal("expected configured agent 'local'")
	}
	if local.Command != "./agent.sh" || len(local.Capabilities) != 2 {
		t.Errorf("unexpected local agent: %+v", local)
	}

	codex := cfg.Agents["codex"]
	if codex.Command != "codex exec --full-auto -" {
		t.Errorf("codex command not overridden: %q", codex.Command)
	}
	if len(codex.Capabilities) != 2 {
		t.Errorf("codex capabilities should keep defaults, got %v", codex.Capabilities)
	}
	if _, ok := cfg.Agents["claude"]; !ok {
		t.Error("built-in agents should survive merge")
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantSub string
	}{
		{"unknown classifier", "classifier:\n  mode: magic\n", "Mode"},
		{"zero concurrency", "orchestrator:\n  max_concurrent: 0\n", "MaxConcurrent"},
		{"undeclared default agent", "orchestrator:\n  default_agent: ghost\n", "ghost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, err := LoadFromPath(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "config.yaml")

	cfg := Default()
	cfg.Workspace.Dir = "/var/lib/swarm"
	cfg.Orchestrator.AutoMode = true
	cfg.Agents["local"] = AgentConfig{Capabilities: []string{"review"}, Command: "./review.sh"}

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Workspace.Dir != "/var/lib/swarm" {
		t.Errorf("workspace dir = %q", loaded.Workspace.Dir)
	}
	if !loaded.Orchestrator.AutoMode {
		t.Error("auto mode not persisted")
	}
	if loaded.Agents["local"].Command != "./review.sh" {
		t.Errorf("agent not persisted: %+v", loaded.Agents["local"])
	}
}

func TestAgentProfiles_Sorted(t *testing.T) {
	profiles := Default().AgentProfiles()
	want := []string{"claude", "codex", "gemini", "jules"}
	if len(profiles) != len(want) {
		t.Fatalf("got %d profiles, want %d", len(profiles), len(want))
	}
	for i, id := range want {
		if profiles[i].ID != id {
			t.Errorf("profiles[%d] = %q, want %q", i, profiles[i].ID, id)
		}
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	if got := expandEnv("prefix-${TEST_VAR}-suffix"); got != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", got)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	if dir := getUserConfigDir(); dir != "/custom/config/swarm" {
		t.Errorf("expected '/custom/config/swarm', got %q", dir)
	}
}

func TestSet(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		check   func(*Config) bool
		wantErr bool
	}{
		{"duration", "orchestrator.poll_interval", "5s", func(c *Config) bool { return c.Orchestrator.PollInterval == 5*time.Second }, false},
		{"int", "orchestrator.max_concurrent", "3", func(c *Config) bool { return c.Orchestrator.MaxConcurrent == 3 }, false},
		{"bool", "sandbox.retain", "true", func(c *Config) bool { return c.Sandbox.Retain }, false},
		{"string", "classifier.mode", "llm", func(c *Config) bool { return c.Classifier.Mode == "llm" }, false},
		{"unknown key", "nope.key", "x", nil, true},
		{"fails validation", "orchestrator.max_concurrent", "0", nil, true},
		{"unknown agent", "orchestrator.default_agent", "ghost", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := cfg.Set(tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Set() error = nil")
				}
				if cfg.Orchestrator.MaxConcurrent != 1 || cfg.Orchestrator.DefaultAgent != "claude" {
					t.Error("config changed after a failed Set")
				}
				return
			}
			if err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("%s not applied", tt.key)
			}
			if len(cfg.Agents) != 4 {
				t.Errorf("agents = %d, want 4", len(cfg.Agents))
			}
		})
	}
}
