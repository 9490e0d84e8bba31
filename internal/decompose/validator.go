package decompose

import (
	"errors"
	"fmt"

	"github.com/ShayCichocki/swarm/pkg/models"
)

// ErrBrokenChain is returned when a decomposition is not a strict linear chain.
var ErrBrokenChain = errors.New("task chain is not linear")

// ValidateChain checks that spec k depends on spec k-1 and the first spec
// has no dependency.
func ValidateChain(specs []models.TaskSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("%w: empty decomposition", ErrBrokenChain)
	}
	for i, s := range specs {
		if s.DependsOnIndex != i-1 {
			return fmt.Errorf("%w: spec %d (%q) depends on %d, want %d",
				ErrBrokenChain, i, s.Title, s.DependsOnIndex, i-1)
		}
		if !s.Type.Valid() || !s.Phase.Valid() {
			return fmt.Errorf("%w: spec %d (%q) has type %q phase %q",
				ErrBrokenChain, i, s.Title, s.Type, s.Phase)
		}
	}
	return nil
}

// ValidateTasks checks the same contract on registered tasks.
func ValidateTasks(tasks []*models.Task) error {
	for i, t := range tasks {
		want := ""
		if i > 0 {
			want = tasks[i-1].ID
		}
		if t.DependsOn != want {
			return fmt.Errorf("%w: task %s depends on %q, want %q", ErrBrokenChain, t.ID, t.DependsOn, want)
		}
	}
	return nil
}
