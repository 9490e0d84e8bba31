package models

import "slices"

// AgentProfile describes an external agent CLI that can run tasks.
type AgentProfile struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id" yaml:"id" validate:"required"`
	// Type is a free-form agent family (e.g. "claude").
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
	// Capabilities lists the phases or task types the agent accepts.
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	// Command is the shell command that launches the agent.
	Command string `json:"command,omitempty" yaml:"command,omitempty"`
	// Instructions are standing orders prepended to every task prompt.
	Instructions string `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

// Can reports whether the agent advertises capability c.
func (a AgentProfile) Can(c string) bool {
	return slices.Contains(a.Capabilities, c)
}

// Matches reports whether the agent can take a task, by phase or by type.
func (a AgentProfile) Matches(t *Task) bool {
	return a.Can(string(t.Phase)) || a.Can(string(t.Type))
}

// DefaultCapabilities is the capability set of an agent with no profile.
func DefaultCapabilities() []string {
	return []string{"execute", "research", "plan", "review"}
}

// SandboxStatus represents the lifecycle state of a sandbox.
type SandboxStatus string

const (
	SandboxStatusIdle      SandboxStatus = "idle"
	SandboxStatusRunning   SandboxStatus = "running"
	SandboxStatusCompleted SandboxStatus = "completed"
	SandboxStatusFailed    SandboxStatus = "failed"
	SandboxStatusTimeout   SandboxStatus = "timeout"
)

// Valid returns true if the status is a known value.
func (s SandboxStatus) Valid() bool {
	switch s {
	case SandboxStatusIdle, SandboxStatusRunning, SandboxStatusCompleted,
		SandboxStatusFailed, SandboxStatusTimeout:
		return true
	default:
		return false
	}
}
