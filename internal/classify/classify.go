// Package classify decides which work phases a note calls for.
package classify

import (
	"context"
	"strings"
	"unicode"

	"github.com/ShayCichocki/swarm/pkg/models"
)

// PhaseSet records which phases apply to a note. Review always applies.
type PhaseSet struct {
	Research  bool `json:"research"`
	Planning  bool `json:"planning"`
	Design    bool `json:"design"`
	Execution bool `json:"execution"`
}

// NeedsPlan reports whether a planning task is generated. Design work is
// planned in the same task.
func (p PhaseSet) NeedsPlan() bool {
	return p.Planning || p.Design
}

// Phases returns the applicable phases in chain order.
func (p PhaseSet) Phases() []models.Phase {
	var out []models.Phase
	if p.Research {
		out = append(out, models.PhaseResearch)
	}
	if p.NeedsPlan() {
		out = append(out, models.PhasePlan)
	}
	if p.Execution {
		out = append(out, models.PhaseExecute)
	}
	return append(out, models.PhaseReview)
}

// Classifier maps note text to the phases it needs.
type Classifier interface {
	Classify(ctx context.Context, text string) (PhaseSet, error)
}

var (
	researchKeywords  = []string{"investigate", "explore", "research", "analyze", "find", "evaluate", "assess", "study", "understand"}
	actionVerbs       = []string{"create", "build", "implement", "fix"}
	planningKeywords  = []string{"plan", "design", "architecture", "structure", "organize", "how to", "best approach"}
	designKeywords    = []string{"ui", "interface", "visual", "layout", "component", "schema", "api", "system"}
	executionKeywords = []string{"create", "build", "implement", "fix", "add", "write", "develop", "code"}
)

// KeywordClassifier is the default heuristic classifier.
type KeywordClassifier struct{}

var _ Classifier = KeywordClassifier{}

// Classify never fails.
func (KeywordClassifier) Classify(_ context.Context, text string) (PhaseSet, error) {
	return Keywords(text), nil
}

// Keywords classifies text by keyword sets. Research also applies when the
// text has no clear action verb.
func Keywords(text string) PhaseSet {
	lower := strings.ToLower(text)
	return PhaseSet{
		Research:  ContainsAny(lower, researchKeywords) || !ContainsAny(lower, actionVerbs),
		Planning:  ContainsAny(lower, planningKeywords),
		Design:    ContainsAny(lower, designKeywords),
		Execution: ContainsAny(lower, executionKeywords),
	}
}

// ContainsAny reports whether any keyword starts a word in lower.
// lower must already be lowercased.
func ContainsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if hasWordPrefix(lower, kw) {
			return true
		}
	}
	return false
}

// hasWordPrefix reports whether kw occurs in s at a word boundary.
// "fix" matches "fixes" but "api" does not match "rapid".
func hasWordPrefix(s, kw string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], kw)
		if j < 0 {
			return false
		}
		at := i + j
		if at == 0 || !isWordByte(s[at-1]) {
			return true
		}
		i = at + 1
	}
}

func isWordByte(b byte) bool {
	if b >= 0x80 {
		return true
	}
	r := rune(b)
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
