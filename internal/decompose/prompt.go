package decompose

import (
	"fmt"

	"github.com/ShayCichocki/swarm/pkg/models"
)

const researchPrompt = `Research Task: %s

USER NOTE:
%s

OBJECTIVES:
1. Understand the full scope and requirements
2. Identify technical constraints and dependencies
3. Find relevant patterns, examples, or best practices
4. Assess feasibility and potential risks

DELIVERABLES:
- Summary of requirements
- Technical constraints document
- Relevant patterns/references
- Feasibility assessment
- Recommendations for next steps`

const planningPrompt = `Planning Task: %s

USER NOTE:
%s

CONTEXT:
%s

OBJECTIVES:
1. Create a detailed implementation plan
2. Break down into clear subtasks
3. Identify dependencies and risks
4. Estimate resources and timeline
5. Design the architecture/approach

DELIVERABLES:
- Detailed implementation plan
- Subtask breakdown
- Dependency graph
- Risk assessment
- Resource estimates`

const reviewPrompt = `Review Task: %s

USER NOTE:
%s

OBJECTIVES:
1. Verify implementation matches original requirements
2. Test functionality and edge cases
3. Check code quality and documentation
4. Identify any issues or improvements
5. Approve or request changes

CHECKLIST:
- Requirements met?
- Tests pass?
- Documentation complete?
- No obvious bugs?
- Production ready?

DECISION:
APPROVE or REQUEST CHANGES (with specific feedback)`

func researchDescription(note *models.Note) string {
	return fmt.Sprintf(researchPrompt, note.Title, note.Body)
}

func planningDescription(note *models.Note, afterResearch bool) string {
	background := "No research phase - plan from scratch."
	if afterResearch {
		background = "Research phase completed. Use research findings."
	}
	return fmt.Sprintf(planningPrompt, note.Title, note.Body, background)
}

func reviewDescription(note *models.Note) string {
	return fmt.Sprintf(reviewPrompt, note.Title, note.Body)
}

var (
	researchChecklist = []string{
		"Identified key requirements",
		"Documented technical constraints",
		"Found relevant examples/patterns",
		"Assessed feasibility",
	}
	planningChecklist = []string{
		"Created detailed implementation plan",
		"Breakdown into subtasks",
		"Identified dependencies",
		"Estimated resources needed",
	}
	reviewChecklist = []string{
		"Verified against original requirements",
		"Tested edge cases",
		"Documentation complete",
		"Ready for deployment",
	}
)
