package config

import "testing"

func TestGetAPIKey(t *testing.T) {
	t.Run("from environment variable", func(t *testing.T) {
		t.Setenv("SWARM_ANTHROPIC_API_KEY", "")
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test-key")

		key, err := GetAPIKey(&Config{})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if key != "sk-ant-test-key" {
			t.Errorf("expected 'sk-ant-test-key', got %q", key)
		}
	})

	t.Run("swarm variable wins", func(t *testing.T) {
		t.Setenv("SWARM_ANTHROPIC_API_KEY", "sk-ant-swarm-key")
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test-key")

		key, _ := GetAPIKey(&Config{})
		if key != "sk-ant-swarm-key" {
			t.Errorf("expected 'sk-ant-swarm-key', got %q", key)
		}
	})

	t.Run("from config", func(t *testing.T) {
		t.Setenv("SWARM_ANTHROPIC_API_KEY", "")
		t.Setenv("ANTHROPIC_API_KEY", "")

		cfg := &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config-key"}}
		key, err := GetAPIKey(cfg)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if key != "sk-ant-config-key" {
			t.Errorf("expected 'sk-ant-config-key', got %q", key)
		}
	})

	t.Run("no key configured", func(t *testing.T) {
		t.Setenv("SWARM_ANTHROPIC_API_KEY", "")
		t.Setenv("ANTHROPIC_API_KEY", "")

		if _, err := GetAPIKey(&Config{}); err != ErrNoAPIKey {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})
}

func TestGetAPIKeySource(t *testing.T) {
	t.Setenv("SWARM_ANTHROPIC_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	if src := GetAPIKeySource(&Config{}); src != KeySourceNone {
		t.Errorf("expected none, got %q", src)
	}
	if src := GetAPIKeySource(&Config{Anthropic: AnthropicConfig{UseBedrock: true}}); src != KeySourceBedrock {
		t.Errorf("expected bedrock, got %q", src)
	}
	if src := GetAPIKeySource(&Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-from-file-1234"}}); src != KeySourceConfig {
		t.Errorf("expected config_file, got %q", src)
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "(not set)"},
		{"short", "***"},
		{"sk-ant-REDACTED", "sk-ant-...mnop"},
	}
	for _, tt := range tests {
		if got := MaskAPIKey(tt.key); got != tt.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
