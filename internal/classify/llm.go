package classify

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/swarm/internal/api"
	"github.com/ShayCichocki/swarm/internal/logging"
)

// TextRunner is the subset of api.Runner the LLM classifier needs.
type TextRunner interface {
	RunWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const llmSystemPrompt = `You classify software work notes into phases.
Answer with a single JSON object and nothing else:
{"research": bool, "planning": bool, "design": bool, "execution": bool}
research: the note needs investigation before acting.
planning: the note asks for a plan, structure or approach.
design: the note involves UI, interfaces, schemas, APIs or system design.
execution: the note asks for something to be created, changed or fixed.`

// LLMClassifier asks a model for the phase set and falls back to keyword
// matching when the model errors or answers with something unparsable.
type LLMClassifier struct {
	runner   TextRunner
	fallback Classifier
	logger   *logging.Logger
}

var _ Classifier = (*LLMClassifier)(nil)

// NewLLMClassifier creates an LLM-backed classifier.
func NewLLMClassifier(runner TextRunner, logger *logging.Logger) *LLMClassifier {
	return &LLMClassifier{
		runner:   runner,
		fallback: KeywordClassifier{},
		logger:   logger.With("classify"),
	}
}

// Classify returns the model's answer, or the keyword answer on any failure.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (PhaseSet, error) {
	set, err := c.ask(ctx, text)
	if err != nil {
		c.logger.Log("llm classification failed, using keywords: %v", err)
		return c.fallback.Classify(ctx, text)
	}
	return set, nil
}

func (c *LLMClassifier) ask(ctx context.Context, text string) (PhaseSet, error) {
	if c.runner == nil {
		return PhaseSet{}, fmt.Errorf("no model runner configured")
	}
	resp, err := c.runner.RunWithSystem(ctx, llmSystemPrompt, "NOTE:\n"+text)
	if err != nil {
		return PhaseSet{}, err
	}
	var set PhaseSet
	if err := api.DecodeJSON(resp, &set); err != nil {
		return PhaseSet{}, err
	}
	return set, nil
}
