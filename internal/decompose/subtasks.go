package decompose

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ShayCichocki/swarm/internal/classify"
	"github.com/ShayCichocki/swarm/pkg/models"
)

// maxTitleRunes bounds titles taken from enumerated lines.
const maxTitleRunes = 80

// listItem matches "1. x", "1) x", "- x", "* x" and "+ x".
var listItem = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*+])\s+(.+?)\s*$`)

// subtask is one execution step before it becomes a TaskSpec.
type subtask struct {
	title       string
	description string
	agentType   string
	duration    int
	checklist   []string
}

// enumeratedItems returns the text of every list line in body.
func enumeratedItems(body string) []string {
	var items []string
	for _, line := range strings.Split(body, "\n") {
		if m := listItem.FindStringSubmatch(line); m != nil {
			items = append(items, m[1])
		}
	}
	return items
}

// executionSubtasks splits the execution phase of a note. Enumerated lines
// are taken verbatim; otherwise canned steps are chosen by vocabulary.
func executionSubtasks(note *models.Note, items []string) []subtask {
	if len(items) > 0 {
		out := make([]subtask, 0, len(items))
		for _, item := range items {
			out = append(out, subtask{
				title:       truncateRunes(item, maxTitleRunes),
				description: "Execute: " + item,
				agentType:   "executor",
				duration:    15,
				checklist:   []string{"Task completed", "Verified", "No errors"},
			})
		}
		return out
	}

	lower := strings.ToLower(note.Body)
	var out []subtask

	if classify.ContainsAny(lower, []string{"feature", "add"}) {
		out = append(out,
			subtask{
				title:       "Implement core functionality",
				description: fmt.Sprintf("Implement the main feature described in %q", note.Title),
				agentType:   "executor",
				duration:    20,
				checklist:   []string{"Core feature works", "Tests pass", "Code quality acceptable"},
			},
			subtask{
				title:       "Add tests",
				description: "Write tests for the implemented functionality",
				agentType:   "executor",
				duration:    10,
				checklist:   []string{"Test coverage adequate", "All tests pass"},
			},
		)
	}

	if classify.ContainsAny(lower, []string{"fix", "bug"}) {
		out = append(out,
			subtask{
				title:       "Diagnose issue",
				description: "Identify root cause of the bug",
				agentType:   "debugger",
				duration:    10,
				checklist:   []string{"Root cause identified"},
			},
			subtask{
				title:       "Implement fix",
				description: "Fix the identified issue",
				agentType:   "executor",
				duration:    15,
				checklist:   []string{"Fix verified", "No regressions"},
			},
		)
	}

	if len(out) == 0 {
		out = append(out, subtask{
			title:       "Implementation",
			description: note.Body,
			agentType:   "executor",
			duration:    20,
			checklist:   []string{"Implementation complete", "Tested", "Verified"},
		})
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
