package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/ShayCichocki/swarm/internal/logging"
	"github.com/ShayCichocki/swarm/pkg/models"
)

// ErrNoAgent is returned when no capable or default agent can take a task.
var ErrNoAgent = errors.New("no agent available")

// ProfileSource supplies stored agent profiles.
type ProfileSource interface {
	ListAgentProfiles() ([]models.AgentProfile, error)
	GetAgentProfile(id string) (models.AgentProfile, error)
}

// Chooser picks one agent when several match a task.
type Chooser interface {
	Choose(ctx context.Context, task *models.Task, candidates []models.AgentProfile) (string, error)
}

// ChooserFunc adapts a function to the Chooser interface.
type ChooserFunc func(ctx context.Context, task *models.Task, candidates []models.AgentProfile) (string, error)

// Choose calls f.
func (f ChooserFunc) Choose(ctx context.Context, task *models.Task, candidates []models.AgentProfile) (string, error) {
	return f(ctx, task, candidates)
}

// FirstByID is the unattended chooser: the lowest agent id wins.
type FirstByID struct{}

// Choose returns the first candidate by id.
func (FirstByID) Choose(_ context.Context, _ *models.Task, candidates []models.AgentProfile) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoAgent
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return slices.Min(ids), nil
}

// Selection is the result of agent selection for one task.
type Selection struct {
	Agent models.AgentProfile
	// Candidates is how many agents matched by capability.
	Candidates int
	// Fallback is set when nothing matched and the default agent was used.
	Fallback bool
}

// AgentRegistry holds the known agent profiles.
// It provides thread-safe storage and retrieval of profiles.
type AgentRegistry struct {
	// profiles maps agent IDs to profiles.
	profiles map[string]models.AgentProfile
	// defaultID is the fallback agent for tasks nothing matches.
	defaultID string
	// source resolves the default agent when it is not registered.
	source ProfileSource
	logger *logging.Logger
	// mu protects profiles.
	mu sync.RWMutex
}

// NewAgentRegistry creates a registry with the given profiles.
func NewAgentRegistry(defaultID string, profiles []models.AgentProfile, logger *logging.Logger) *AgentRegistry {
	r := &AgentRegistry{
		profiles:  make(map[string]models.AgentProfile, len(profiles)),
		defaultID: defaultID,
		logger:    logger.With("agents"),
	}
	for _, p := range profiles {
		r.profiles[p.ID] = p
	}
	return r
}

// LoadFrom merges stored profiles over the registered ones. Stored fields
// win, except that an empty stored command keeps the registered command.
func (r *AgentRegistry) LoadFrom(src ProfileSource) error {
	stored, err := src.ListAgentProfiles()
	if err != nil {
		return fmt.Errorf("load agent profiles: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.source = src
	for _, p := range stored {
		if base, ok := r.profiles[p.ID]; ok {
			if p.Command == "" {
				p.Command = base.Command
			}
			if p.Type == "" {
				p.Type = base.Type
			}
			if len(p.Capabilities) == 0 {
				p.Capabilities = base.Capabilities
			}
		}
		r.profiles[p.ID] = p
	}
	return nil
}

// Register adds or replaces a profile.
func (r *AgentRegistry) Register(p models.AgentProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p
}

// Get retrieves a profile by ID.
func (r *AgentRegistry) Get(id string) (models.AgentProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	return p, ok
}

// All returns every profile ordered by id.
func (r *AgentRegistry) All() []models.AgentProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]models.AgentProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// DefaultID returns the fallback agent id.
func (r *AgentRegistry) DefaultID() string { return r.defaultID }

// Candidates returns the agents whose capabilities include the task's
// phase or type, ordered by id.
func (r *AgentRegistry) Candidates(task *models.Task) []models.AgentProfile {
	var matches []models.AgentProfile
	for _, p := range r.All() {
		if p.Matches(task) {
			matches = append(matches, p)
		}
	}
	return matches
}

// Select picks the agent for a task: the single match, the chooser's pick
// among several matches, or the default agent when nothing matches.
func (r *AgentRegistry) Select(ctx context.Context, task *models.Task, chooser Chooser) (Selection, error) {
	candidates := r.Candidates(task)

	switch len(candidates) {
	case 0:
		p, err := r.fallback()
		if err != nil {
			return Selection{}, fmt.Errorf("task %s (%s/%s): %w", task.ID, task.Type, task.Phase, err)
		}
		r.logger.Log("no agent can %s/%s task %s, falling back to %s", task.Type, task.Phase, task.ID, p.ID)
		return Selection{Agent: p, Fallback: true}, nil
	case 1:
		return Selection{Agent: candidates[0], Candidates: 1}, nil
	}

	if chooser == nil {
		chooser = FirstByID{}
	}
	id, err := chooser.Choose(ctx, task, candidates)
	if err != nil {
		return Selection{}, fmt.Errorf("choose agent for %s: %w", task.ID, err)
	}
	for _, c := range candidates {
		if c.ID == id {
			return Selection{Agent: c, Candidates: len(candidates)}, nil
		}
	}
	return Selection{}, fmt.Errorf("choose agent for %s: %q is not a candidate: %w", task.ID, id, ErrNoAgent)
}

func (r *AgentRegistry) fallback() (models.AgentProfile, error) {
	if r.defaultID == "" {
		return models.AgentProfile{}, ErrNoAgent
	}
	if p, ok := r.Get(r.defaultID); ok {
		return p, nil
	}

	r.mu.RLock()
	src := r.source
	r.mu.RUnlock()
	if src == nil {
		return models.AgentProfile{}, fmt.Errorf("default agent %s not registered: %w", r.defaultID, ErrNoAgent)
	}
	p, err := src.GetAgentProfile(r.defaultID)
	if err != nil {
		return models.AgentProfile{}, fmt.Errorf("default agent %s: %v: %w", r.defaultID, err, ErrNoAgent)
	}
	return p, nil
}
