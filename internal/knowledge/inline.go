package knowledge

import (
	"regexp"
	"strings"

	"github.com/ShayCichocki/swarm/pkg/models"
)

var (
	projectMarker = regexp.MustCompile(`#(\w+)`)
	tagMarker     = regexp.MustCompile(`@(\w+)`)
	innerSpaces   = regexp.MustCompile(`(\S)[ \t]{2,}`)
)

// Inline is a note typed on one line with "#project" and "@tag" markers.
type Inline struct {
	Content  string
	Project  string
	Tags     []string
	Priority models.Priority
}

// ParseInline extracts the first #project marker and every @tag marker
// from text and returns the remaining content. A tag naming a priority
// also sets Priority.
func ParseInline(text string) Inline {
	var in Inline
	content := text

	if m := projectMarker.FindStringSubmatchIndex(content); m != nil {
		in.Project = content[m[2]:m[3]]
		content = content[:m[0]] + content[m[1]:]
	}

	for _, m := range tagMarker.FindAllStringSubmatch(content, -1) {
		tag := m[1]
		in.Tags = append(in.Tags, tag)
		if p := models.Priority(strings.ToLower(tag)); p.Valid() {
			in.Priority = p
		}
	}
	content = tagMarker.ReplaceAllString(content, "")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(innerSpaces.ReplaceAllString(line, "$1 "), " \t")
	}
	in.Content = strings.TrimSpace(strings.Join(lines, "\n"))
	return in
}

// Meta converts the parsed markers into AddNote metadata.
func (in Inline) Meta() NoteMeta {
	return NoteMeta{Project: in.Project, Tags: in.Tags, Priority: in.Priority}
}
