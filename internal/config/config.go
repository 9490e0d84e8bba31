// Package config handles configuration loading and management for swarm.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/ShayCichocki/swarm/pkg/models"
)

// ProjectConfigName is the per-project override file searched upward from cwd.
const ProjectConfigName = ".swarm.yaml"

// Config holds all configuration for swarm.
type Config struct {
	Workspace    WorkspaceConfig        `mapstructure:"workspace"`
	Knowledge    KnowledgeConfig        `mapstructure:"knowledge"`
	Sandbox      SandboxConfig          `mapstructure:"sandbox"`
	State        StateConfig            `mapstructure:"state"`
	Log          LogConfig              `mapstructure:"log"`
	Orchestrator OrchestratorConfig     `mapstructure:"orchestrator"`
	Classifier   ClassifierConfig       `mapstructure:"classifier"`
	Anthropic    AnthropicConfig        `mapstructure:"anthropic"`
	Agents       map[string]AgentConfig `mapstructure:"agents" validate:"dive"`
}

// WorkspaceConfig holds the base directory for all swarm data.
type WorkspaceConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// KnowledgeConfig locates the flat-file knowledge store.
type KnowledgeConfig struct {
	// Root defaults to <workspace>/kb.
	Root string `mapstructure:"root"`
}

// SandboxConfig holds sandbox execution settings.
type SandboxConfig struct {
	// Root defaults to <workspace>/sandboxes.
	Root string `mapstructure:"root"`
	// TimeoutBuffer is added to a task's estimated duration to get its deadline.
	TimeoutBuffer time.Duration `mapstructure:"timeout_buffer" validate:"gte=0"`
	// Retain keeps sandbox directories after execution for inspection.
	Retain bool `mapstructure:"retain"`
	// Shell runs agent commands as "<shell> -c <command>".
	Shell string `mapstructure:"shell" validate:"required"`
}

// StateConfig controls the SQLite task journal.
type StateConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// DBPath defaults to <workspace>/state.db.
	DBPath string `mapstructure:"db_path"`
}

// LogConfig controls the application log file.
type LogConfig struct {
	// Path defaults to <workspace>/logs/swarm.log.
	Path string `mapstructure:"path"`
}

// OrchestratorConfig holds scheduling loop settings.
type OrchestratorConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	MaxConcurrent int           `mapstructure:"max_concurrent" validate:"gte=1"`
	DefaultAgent  string        `mapstructure:"default_agent" validate:"required"`
	AutoMode      bool          `mapstructure:"auto_mode"`
	AutoDecompose bool          `mapstructure:"auto_decompose"`
}

// ClassifierConfig selects the phase classifier used by the decomposer.
type ClassifierConfig struct {
	Mode string `mapstructure:"mode" validate:"oneof=keyword llm"`
}

// AnthropicConfig holds Anthropic API settings for the LLM classifier.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// AgentConfig describes an agent CLI declared in configuration.
type AgentConfig struct {
	Type         string   `mapstructure:"type" yaml:"type,omitempty"`
	Capabilities []string `mapstructure:"capabilities" yaml:"capabilities" validate:"min=1"`
	Command      string   `mapstructure:"command" yaml:"command" validate:"required"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (SWARM_*, ANTHROPIC_API_KEY)
// 2. Project config (.swarm.yaml in current directory or parent)
// 3. User config (~/.config/swarm/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	bindEnv(v)

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file on top of the defaults.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Agents = mergeAgents(DefaultAgents(), cfg.Agents)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnv maps SWARM_WORKSPACE_DIR style variables onto nested keys.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("SWARM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("anthropic.api_key", "SWARM_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	return SaveTo(cfg, GetUserConfigPath())
}

// SaveTo writes the configuration to path as YAML.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	for key, value := range cfg.Settings() {
		v.Set(key, value)
	}
	if len(cfg.Agents) > 0 {
		agents := make(map[string]interface{}, len(cfg.Agents))
		for id, a := range cfg.Agents {
			agents[id] = map[string]interface{}{
				"type":         a.Type,
				"capabilities": a.Capabilities,
				"command":      a.Command,
			}
		}
		v.Set("agents", agents)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

// Settings returns the scalar settings as flat dotted keys.
func (c *Config) Settings() map[string]interface{} {
	return map[string]interface{}{
		"workspace.dir":               c.Workspace.Dir,
		"knowledge.root":              c.Knowledge.Root,
		"sandbox.root":                c.Sandbox.Root,
		"sandbox.timeout_buffer":      c.Sandbox.TimeoutBuffer.String(),
		"sandbox.retain":              c.Sandbox.Retain,
		"sandbox.shell":               c.Sandbox.Shell,
		"state.enabled":               c.State.Enabled,
		"state.db_path":               c.State.DBPath,
		"log.path":                    c.Log.Path,
		"orchestrator.poll_interval":  c.Orchestrator.PollInterval.String(),
		"orchestrator.max_concurrent": c.Orchestrator.MaxConcurrent,
		"orchestrator.default_agent":  c.Orchestrator.DefaultAgent,
		"orchestrator.auto_mode":      c.Orchestrator.AutoMode,
		"orchestrator.auto_decompose": c.Orchestrator.AutoDecompose,
		"classifier.mode":             c.Classifier.Mode,
		"anthropic.api_key":           c.Anthropic.APIKey,
		"anthropic.model":             c.Anthropic.Model,
		"anthropic.use_bedrock":       c.Anthropic.UseBedrock,
		"anthropic.aws_region":        c.Anthropic.AWSRegion,
		"anthropic.aws_profile":       c.Anthropic.AWSProfile,
	}
}

// SettingKeys returns the keys of Settings in sorted order.
func (c *Config) SettingKeys() []string {
	settings := c.Settings()
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns one of the Settings keys from its string form and
// revalidates. c is left unchanged on error.
func (c *Config) Set(key, value string) error {
	settings := c.Settings()
	if _, ok := settings[key]; !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	v := viper.New()
	for k, val := range settings {
		v.Set(k, val)
	}
	v.Set(key, value)

	next := &Config{}
	if err := v.Unmarshal(next); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	next.Agents = c.Agents
	if err := next.Validate(); err != nil {
		return err
	}
	*c = *next
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and that the default agent exists.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, ok := c.Agents[c.Orchestrator.DefaultAgent]; !ok {
		return fmt.Errorf("invalid config: default agent %q is not declared", c.Orchestrator.DefaultAgent)
	}
	return nil
}

// KnowledgeRoot returns the knowledge store directory.
func (c *Config) KnowledgeRoot() string {
	return c.resolve(c.Knowledge.Root, "kb")
}

// SandboxRoot returns the directory sandboxes are created under.
func (c *Config) SandboxRoot() string {
	return c.resolve(c.Sandbox.Root, "sandboxes")
}

// StatePath returns the SQLite journal path.
func (c *Config) StatePath() string {
	return c.resolve(c.State.DBPath, "state.db")
}

// LogPath returns the application log path.
func (c *Config) LogPath() string {
	return c.resolve(c.Log.Path, filepath.Join("logs", "swarm.log"))
}

func (c *Config) resolve(explicit, rel string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(c.Workspace.Dir, rel)
}

// AgentProfiles returns the configured agents as profiles, sorted by id.
func (c *Config) AgentProfiles() []models.AgentProfile {
	ids := make([]string, 0, len(c.Agents))
	for id := range c.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	profiles := make([]models.AgentProfile, 0, len(ids))
	for _, id := range ids {
		a := c.Agents[id]
		profiles = append(profiles, models.AgentProfile{
			ID:           id,
			Type:         a.Type,
			Capabilities: append([]string(nil), a.Capabilities...),
			Command:      a.Command,
		})
	}
	return profiles
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("workspace.dir", ".swarm")
	v.SetDefault("knowledge.root", "")

	v.SetDefault("sandbox.root", "")
	v.SetDefault("sandbox.timeout_buffer", "5m")
	v.SetDefault("sandbox.retain", true)
	v.SetDefault("sandbox.shell", "sh")

	v.SetDefault("state.enabled", true)
	v.SetDefault("state.db_path", "")
	v.SetDefault("log.path", "")

	v.SetDefault("orchestrator.poll_interval", "30s")
	v.SetDefault("orchestrator.max_concurrent", 1)
	v.SetDefault("orchestrator.default_agent", "claude")
	v.SetDefault("orchestrator.auto_mode", false)
	v.SetDefault("orchestrator.auto_decompose", false)

	v.SetDefault("classifier.mode", "keyword")

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")
}

// DefaultAgents returns the built-in agent set.
func DefaultAgents() map[string]AgentConfig {
	return map[string]AgentConfig{
		"claude": {Type: "claude", Capabilities: []string{"research", "plan", "execute", "review"}, Command: "claude -p"},
		"gemini": {Type: "gemini", Capabilities: []string{"research", "plan", "execute"}, Command: "gemini"},
		"codex":  {Type: "codex", Capabilities: []string{"execute", "code"}, Command: "codex exec -"},
		"jules":  {Type: "jules", Capabilities: []string{"execute", "fix"}, Command: "jules"},
	}
}

// mergeAgents overlays configured agents on the defaults. A configured
// agent replaces the default of the same id field by field.
func mergeAgents(base, override map[string]AgentConfig) map[string]AgentConfig {
	out := make(map[string]AgentConfig, len(base)+len(override))
	for id, a := range base {
		out[id] = a
	}
	for id, a := range override {
		merged := out[id]
		if a.Type != "" {
			merged.Type = a.Type
		}
		if len(a.Capabilities) > 0 {
			merged.Capabilities = a.Capabilities
		}
		if a.Command != "" {
			merged.Command = a.Command
		}
		out[id] = merged
	}
	return out
}

// getUserConfigDir returns the XDG config directory for swarm.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "swarm")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "swarm")
	}
	return filepath.Join(home, ".config", "swarm")
}

// findProjectConfig searches for .swarm.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{Dir: ".swarm"},
		Sandbox: SandboxConfig{
			TimeoutBuffer: 5 * time.Minute,
			Retain:        true,
			Shell:         "sh",
		},
		State: StateConfig{Enabled: true},
		Orchestrator: OrchestratorConfig{
			PollInterval:  30 * time.Second,
			MaxConcurrent: 1,
			DefaultAgent:  "claude",
		},
		Classifier: ClassifierConfig{Mode: "keyword"},
		Anthropic:  AnthropicConfig{Model: "claude-3-5-haiku-latest"},
		Agents:     DefaultAgents(),
	}
}
