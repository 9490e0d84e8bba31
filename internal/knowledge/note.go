package knowledge

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/swarm/pkg/models"
)

const frontmatterDelim = "---"

// frontmatter is the tolerant decoding form of a note header. Hand-written
// notes may carry tags as a comma-separated string.
type frontmatter struct {
	Title    string            `yaml:"title"`
	Project  string            `yaml:"project"`
	Tags     tagList           `yaml:"tags"`
	Priority models.Priority   `yaml:"priority"`
	Status   models.NoteStatus `yaml:"status"`
	Created  time.Time         `yaml:"created"`
	Updated  time.Time         `yaml:"updated"`
}

type tagList []string

func (t *tagList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*t = splitTags(value.Value)
		return nil
	case yaml.SequenceNode:
		var tags []string
		if err := value.Decode(&tags); err != nil {
			return err
		}
		*t = tags
		return nil
	default:
		return fmt.Errorf("tags: unexpected yaml kind %d", value.Kind)
	}
}

func splitTags(s string) []string {
	var tags []string
	for _, part := range strings.Split(s, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// splitFrontmatter separates a leading "---" delimited YAML block from the
// body. Content without a complete block is returned as body.
func splitFrontmatter(content string) (header []byte, body string) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != frontmatterDelim {
		return nil, strings.TrimSpace(content)
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterDelim {
			header = []byte(strings.Join(lines[1:i], "\n"))
			body = strings.Join(lines[i+1:], "\n")
			return header, strings.TrimSpace(body)
		}
	}
	return nil, strings.TrimSpace(content)
}

// parseNote decodes a note file. Missing fields are left zero.
func parseNote(content string) (frontmatter, string, error) {
	var fm frontmatter
	header, body := splitFrontmatter(content)
	if len(header) > 0 {
		if err := yaml.Unmarshal(header, &fm); err != nil {
			return fm, body, fmt.Errorf("parse frontmatter: %w", err)
		}
	}
	return fm, body, nil
}

// formatNote renders a note as frontmatter plus body.
func formatNote(n *models.Note) ([]byte, error) {
	header, err := yaml.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim + "\n")
	buf.Write(header)
	buf.WriteString(frontmatterDelim + "\n\n")
	buf.WriteString(n.Body)
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// normalize fills defaults the way every reader expects them.
func normalize(n *models.Note) {
	if n.Project == "" {
		n.Project = DefaultProject
	}
	if !n.Priority.Valid() {
		n.Priority = models.PriorityMedium
	}
	if !n.Status.Valid() {
		n.Status = models.NoteStatusPending
	}
	if n.Title == "" {
		n.Title = deriveTitle(n.Body)
	}
}

const maxTitleRunes = 80

// deriveTitle uses the first non-empty body line.
func deriveTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > maxTitleRunes {
			return string(r[:maxTitleRunes])
		}
		return line
	}
	return "Untitled"
}

var (
	slugStrip    = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces   = regexp.MustCompile(`\s+`)
	slugDashes   = regexp.MustCompile(`-+`)
	maxSlugBytes = 50
)

// slug turns a title into a lowercase dash-separated file stem.
func slug(title string) string {
	s := strings.ToLower(title)
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(strings.TrimSpace(s), "-")
	s = slugDashes.ReplaceAllString(s, "-")
	if len(s) > maxSlugBytes {
		s = s[:maxSlugBytes]
	}
	s = strings.Trim(s, "-")
	if s == "" {
		return "note"
	}
	return s
}

// validID rejects ids that would escape the store directories.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}
