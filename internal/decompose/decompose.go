// Package decompose turns a note into an ordered chain of task specifications.
package decompose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/swarm/internal/classify"
	"github.com/ShayCichocki/swarm/pkg/models"
)

// ErrMalformedNote is returned for a note with no body.
var ErrMalformedNote = errors.New("malformed note")

// Decomposer breaks a note into research, plan, execute and review tasks.
type Decomposer struct {
	classifier classify.Classifier
}

// New creates a Decomposer. A nil classifier uses keyword matching.
func New(classifier classify.Classifier) *Decomposer {
	if classifier == nil {
		classifier = classify.KeywordClassifier{}
	}
	return &Decomposer{classifier: classifier}
}

// Decompose classifies the note and returns its task chain. Task k depends
// on task k-1; the first task has no dependency.
func (d *Decomposer) Decompose(ctx context.Context, note *models.Note) ([]models.TaskSpec, error) {
	if note == nil || strings.TrimSpace(note.Body) == "" {
		return nil, fmt.Errorf("decompose note: %w: empty body", ErrMalformedNote)
	}

	phases, err := d.classifier.Classify(ctx, note.Body)
	if err != nil {
		return nil, fmt.Errorf("classify note %s: %w", note.ID, err)
	}

	specs := Plan(note, phases)
	if err := ValidateChain(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// Plan builds the chain for a note given its phase set. It has no side
// effects. Enumerated lines in the body force an execution phase.
func Plan(note *models.Note, phases classify.PhaseSet) []models.TaskSpec {
	items := enumeratedItems(note.Body)
	if len(items) > 0 {
		phases.Execution = true
	}

	title := noteTitle(note)
	priority := note.Priority
	if !priority.Valid() {
		priority = models.PriorityMedium
	}
	elevated := models.PriorityMedium
	if priority == models.PriorityHigh {
		elevated = models.PriorityHigh
	}

	var specs []models.TaskSpec
	add := func(s models.TaskSpec) {
		s.DependsOnIndex = len(specs) - 1
		specs = append(specs, s)
	}

	if phases.Research {
		add(models.TaskSpec{
			Type:              models.TaskTypeResearch,
			Phase:             models.PhaseResearch,
			Title:             "Research: " + title,
			Description:       researchDescription(note),
			AgentType:         "researcher",
			Priority:          elevated,
			EstimatedDuration: 5,
			Checklist:         clone(researchChecklist),
		})
	}

	if phases.NeedsPlan() {
		add(models.TaskSpec{
			Type:              models.TaskTypePlanning,
			Phase:             models.PhasePlan,
			Title:             "Plan: " + title,
			Description:       planningDescription(note, phases.Research),
			AgentType:         "planner",
			Priority:          priority,
			EstimatedDuration: 10,
			Checklist:         clone(planningChecklist),
		})
	}

	if phases.Execution {
		for _, st := range executionSubtasks(note, items) {
			add(models.TaskSpec{
				Type:              models.TaskTypeExecution,
				Phase:             models.PhaseExecute,
				Title:             st.title,
				Description:       st.description,
				AgentType:         st.agentType,
				Priority:          priority,
				EstimatedDuration: st.duration,
				Checklist:         st.checklist,
			})
		}
	}

	add(models.TaskSpec{
		Type:              models.TaskTypeReview,
		Phase:             models.PhaseReview,
		Title:             "Review: " + title,
		Description:       reviewDescription(note),
		AgentType:         "reviewer",
		Priority:          elevated,
		EstimatedDuration: 5,
		Checklist:         clone(reviewChecklist),
	})

	return specs
}

// noteTitle falls back to the first body line when the note is untitled.
func noteTitle(note *models.Note) string {
	if t := strings.TrimSpace(note.Title); t != "" {
		return t
	}
	first, _, _ := strings.Cut(strings.TrimSpace(note.Body), "\n")
	return truncateRunes(strings.TrimSpace(first), 50)
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}
