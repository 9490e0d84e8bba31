// Package knowledge stores notes, projects and agent profiles as flat files:
// markdown notes with YAML frontmatter, and YAML project and agent records.
package knowledge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/swarm/internal/logging"
	"github.com/ShayCichocki/swarm/pkg/models"
)

// DefaultProject receives notes added without a project.
const DefaultProject = "general"

// Directory names under the store root.
const (
	NotesDir    = "notes"
	ProjectsDir = "projects"
	AgentsDir   = "agents"
)

var (
	// ErrNoteNotFound is returned for an unknown note id.
	ErrNoteNotFound = errors.New("note not found")
	// ErrProjectNotFound is returned for an unknown project id.
	ErrProjectNotFound = errors.New("project not found")
	// ErrInvalidID is returned for ids that are empty or contain path separators.
	ErrInvalidID = errors.New("invalid id")
)

// Store is the knowledge store contract consumed by the orchestrator.
type Store interface {
	GetNote(id string) (*models.Note, error)
	AddNote(content string, meta NoteMeta) (*models.Note, error)
	UpdateNote(id string, update NoteUpdate) (*models.Note, error)
	GetProject(id string) (*models.Project, error)
	EnsureProject(id string) (*models.Project, error)
	LinkTasks(projectID string, taskIDs ...string) error
	GetAgentProfile(id string) (models.AgentProfile, error)
	ListAgentProfiles() ([]models.AgentProfile, error)
}

// Verify interface compliance at compile time.
var _ Store = (*FileStore)(nil)

// NoteMeta is caller-supplied metadata for a new note. It overrides any
// frontmatter inside the content.
type NoteMeta struct {
	Title    string
	Project  string
	Tags     []string
	Priority models.Priority
	Status   models.NoteStatus
}

// NoteUpdate is a partial note update; nil fields are left unchanged.
type NoteUpdate struct {
	Title    *string
	Body     *string
	Project  *string
	Tags     []string
	Priority *models.Priority
	Status   *models.NoteStatus
}

// NoteFilter narrows ListNotes. Empty fields match everything.
type NoteFilter struct {
	Project string
	Status  models.NoteStatus
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithLogger sets the application logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *FileStore) { s.logger = l.With("kb") }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) { s.now = now }
}

// FileStore is a Store backed by a directory tree on an afero filesystem.
// Writes are serialized; every read goes to the filesystem.
type FileStore struct {
	fs       afero.Fs
	root     string
	logger   *logging.Logger
	now      func() time.Time
	validate *validator.Validate

	mu        sync.Mutex
	lastStamp int64
}

// NewFileStore creates a store rooted at root on fs.
func NewFileStore(fs afero.Fs, root string, opts ...Option) *FileStore {
	s := &FileStore{
		fs:       fs,
		root:     root,
		logger:   logging.Nop(),
		now:      time.Now,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates an initialized store on the OS filesystem.
func Open(root string, opts ...Option) (*FileStore, error) {
	s := NewFileStore(afero.NewOsFs(), root, opts...)
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

// Init creates the store directories.
func (s *FileStore) Init() error {
	for _, dir := range []string{NotesDir, ProjectsDir, AgentsDir} {
		if err := s.fs.MkdirAll(filepath.Join(s.root, dir), 0755); err != nil {
			return fmt.Errorf("create %s dir: %w", dir, err)
		}
	}
	return nil
}

// Root returns the store root directory.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) notePath(id string) string {
	return filepath.Join(s.root, NotesDir, id+".md")
}

func (s *FileStore) projectPath(id string) string {
	return filepath.Join(s.root, ProjectsDir, id+".yaml")
}

func (s *FileStore) agentPath(id string) string {
	return filepath.Join(s.root, AgentsDir, id+".yaml")
}

// GetNote loads a note by id. Hand-written notes may use a .txt extension.
func (s *FileStore) GetNote(id string) (*models.Note, error) {
	if !validID(id) {
		return nil, fmt.Errorf("get note %q: %w", id, ErrInvalidID)
	}
	for _, path := range []string{s.notePath(id), filepath.Join(s.root, NotesDir, id+".txt")} {
		n, err := s.readNote(path, id)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("get note %s: %w", id, ErrNoteNotFound)
}

func (s *FileStore) readNote(path, id string) (*models.Note, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, err
	}
	fm, body, err := parseNote(string(data))
	if err != nil {
		return nil, fmt.Errorf("read note %s: %w", id, err)
	}

	n := &models.Note{
		ID:        id,
		Title:     fm.Title,
		Body:      body,
		Project:   fm.Project,
		Tags:      []string(fm.Tags),
		Priority:  fm.Priority,
		Status:    fm.Status,
		CreatedAt: fm.Created,
		UpdatedAt: fm.Updated,
	}
	if n.Title == "" && body == "" {
		n.Title = id
	}
	normalize(n)
	if n.CreatedAt.IsZero() {
		if info, err := s.fs.Stat(path); err == nil {
			n.CreatedAt = info.ModTime()
		}
	}
	return n, nil
}

// AddNote stores a new note and links it into its project, creating the
// project when needed.
func (s *FileStore) AddNote(content string, meta NoteMeta) (*models.Note, error) {
	fm, body, err := parseNote(content)
	if err != nil {
		return nil, fmt.Errorf("add note: %w", err)
	}

	n := &models.Note{
		Title:    firstNonEmpty(meta.Title, fm.Title),
		Body:     body,
		Project:  firstNonEmpty(meta.Project, fm.Project),
		Tags:     []string(fm.Tags),
		Priority: fm.Priority,
		Status:   fm.Status,
	}
	if len(meta.Tags) > 0 {
		n.Tags = slices.Clone(meta.Tags)
	}
	if meta.Priority != "" {
		n.Priority = meta.Priority
	}
	if meta.Status != "" {
		n.Status = meta.Status
	}
	normalize(n)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n.CreatedAt = now
	n.ID = s.newNoteID(n.Title, now)

	if err := s.validate.Struct(n); err != nil {
		return nil, fmt.Errorf("add note: %w", err)
	}
	if _, err := s.ensureProject(n.Project); err != nil {
		return nil, fmt.Errorf("add note: %w", err)
	}
	if err := s.writeNote(n); err != nil {
		return nil, fmt.Errorf("add note: %w", err)
	}
	if err := s.link(n.Project, []string{n.ID}, nil); err != nil {
		return nil, fmt.Errorf("add note: %w", err)
	}

	s.logger.Log("added note %s to project %s", n.ID, n.Project)
	return n, nil
}

// newNoteID returns "<slug>-<base36 millis>", bumping the time part until
// the id is unused. Caller holds s.mu.
func (s *FileStore) newNoteID(title string, now time.Time) string {
	stamp := now.UnixMilli()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	base := slug(title)
	for {
		id := base + "-" + strconv.FormatInt(stamp, 36)
		if exists, _ := afero.Exists(s.fs, s.notePath(id)); !exists {
			s.lastStamp = stamp
			return id
		}
		stamp++
	}
}

func (s *FileStore) writeNote(n *models.Note) error {
	data, err := formatNote(n)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Join(s.root, NotesDir), 0755); err != nil {
		return fmt.Errorf("create notes dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.notePath(n.ID), data, 0644); err != nil {
		return fmt.Errorf("write note %s: %w", n.ID, err)
	}
	return nil
}

// UpdateNote applies a partial update and stamps UpdatedAt.
func (s *FileStore) UpdateNote(id string, update NoteUpdate) (*models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.GetNote(id)
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		n.Title = *update.Title
	}
	if update.Body != nil {
		n.Body = strings.TrimSpace(*update.Body)
	}
	if update.Project != nil {
		n.Project = *update.Project
	}
	if update.Tags != nil {
		n.Tags = slices.Clone(update.Tags)
	}
	if update.Priority != nil {
		n.Priority = *update.Priority
	}
	if update.Status != nil {
		n.Status = *update.Status
	}
	n.UpdatedAt = s.now()

	if err := s.validate.Struct(n); err != nil {
		return nil, fmt.Errorf("update note %s: %w", id, err)
	}
	normalize(n)

	if update.Project != nil {
		if _, err := s.ensureProject(n.Project); err != nil {
			return nil, fmt.Errorf("update note %s: %w", id, err)
		}
		if err := s.link(n.Project, []string{n.ID}, nil); err != nil {
			return nil, fmt.Errorf("update note %s: %w", id, err)
		}
	}
	if err := s.writeNote(n); err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}

	s.logger.Log("updated note %s status=%s", id, n.Status)
	return n, nil
}

// ListNotes returns notes matching filter, oldest first.
func (s *FileStore) ListNotes(filter NoteFilter) ([]*models.Note, error) {
	entries, err := afero.ReadDir(s.fs, filepath.Join(s.root, NotesDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list notes: %w", err)
	}

	var notes []*models.Note
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".md" && ext != ".txt") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ext)
		n, err := s.readNote(filepath.Join(s.root, NotesDir, e.Name()), id)
		if err != nil {
			s.logger.Log("skipping unreadable note %s: %v", e.Name(), err)
			continue
		}
		if filter.Project != "" && n.Project != filter.Project {
			continue
		}
		if filter.Status != "" && n.Status != filter.Status {
			continue
		}
		notes = append(notes, n)
	}

	sort.SliceStable(notes, func(i, j int) bool {
		if !notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].CreatedAt.Before(notes[j].CreatedAt)
		}
		return notes[i].ID < notes[j].ID
	})
	return notes, nil
}

// SearchResult is a note matching a search query.
type SearchResult struct {
	Note       *models.Note
	TitleMatch bool
	BodyMatch  bool
	TagMatch   bool
}

// SearchNotes finds notes whose title, body or tags contain query,
// case-insensitively. Title matches come first.
func (s *FileStore) SearchNotes(query string) ([]SearchResult, error) {
	notes, err := s.ListNotes(NoteFilter{})
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	var results []SearchResult
	for _, n := range notes {
		r := SearchResult{
			Note:       n,
			TitleMatch: strings.Contains(strings.ToLower(n.Title), q),
			BodyMatch:  strings.Contains(strings.ToLower(n.Body), q),
		}
		for _, tag := range n.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				r.TagMatch = true
				break
			}
		}
		if r.TitleMatch || r.BodyMatch || r.TagMatch {
			results = append(results, r)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].TitleMatch && !results[j].TitleMatch
	})
	return results, nil
}

// GetProject loads a project by id.
func (s *FileStore) GetProject(id string) (*models.Project, error) {
	if !validID(id) {
		return nil, fmt.Errorf("get project %q: %w", id, ErrInvalidID)
	}
	data, err := afero.ReadFile(s.fs, s.projectPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("get project %s: %w", id, ErrProjectNotFound)
		}
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	var p models.Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}

// EnsureProject returns the project, creating it if absent.
func (s *FileStore) EnsureProject(id string) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureProject(id)
}

func (s *FileStore) ensureProject(id string) (*models.Project, error) {
	p, err := s.GetProject(id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrProjectNotFound) {
		return nil, err
	}

	p = &models.Project{ID: id, Name: id, CreatedAt: s.now()}
	if err := s.saveProject(p); err != nil {
		return nil, err
	}
	s.logger.Log("created project %s", id)
	return p, nil
}

// LinkTasks records task ids on a project, creating it if absent.
func (s *FileStore) LinkTasks(projectID string, taskIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.ensureProject(projectID); err != nil {
		return err
	}
	return s.link(projectID, nil, taskIDs)
}

// link appends unseen note and task ids to a project. Caller holds s.mu.
func (s *FileStore) link(projectID string, noteIDs, taskIDs []string) error {
	p, err := s.GetProject(projectID)
	if err != nil {
		return err
	}
	changed := false
	for _, id := range noteIDs {
		if !slices.Contains(p.Notes, id) {
			p.Notes = append(p.Notes, id)
			changed = true
		}
	}
	for _, id := range taskIDs {
		if !slices.Contains(p.Tasks, id) {
			p.Tasks = append(p.Tasks, id)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.saveProject(p)
}

func (s *FileStore) saveProject(p *models.Project) error {
	if err := s.validate.Struct(p); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	if !validID(p.ID) {
		return fmt.Errorf("save project %q: %w", p.ID, ErrInvalidID)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project %s: %w", p.ID, err)
	}
	if err := s.fs.MkdirAll(filepath.Join(s.root, ProjectsDir), 0755); err != nil {
		return fmt.Errorf("create projects dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.projectPath(p.ID), data, 0644); err != nil {
		return fmt.Errorf("write project %s: %w", p.ID, err)
	}
	return nil
}

// ListProjects returns all projects ordered by id.
func (s *FileStore) ListProjects() ([]*models.Project, error) {
	ids, err := s.listYAML(ProjectsDir)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	projects := make([]*models.Project, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetProject(id)
		if err != nil {
			s.logger.Log("skipping unreadable project %s: %v", id, err)
			continue
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// defaultInstructions are given to agents without a stored profile.
const defaultInstructions = `You are %s, a specialized agent in the swarm.

Work only inside your sandbox workspace. Be transparent about what you are
doing, report mistakes immediately, verify your work before reporting, and
mark the task complete only when it is actually done.`

// DefaultAgentProfile is the profile of an agent with nothing stored.
func DefaultAgentProfile(id string) models.AgentProfile {
	return models.AgentProfile{
		ID:           id,
		Type:         "llm",
		Capabilities: models.DefaultCapabilities(),
		Instructions: fmt.Sprintf(defaultInstructions, id),
	}
}

// GetAgentProfile returns the stored profile for id, or the default
// profile when none is stored.
func (s *FileStore) GetAgentProfile(id string) (models.AgentProfile, error) {
	if !validID(id) {
		return models.AgentProfile{}, fmt.Errorf("get agent %q: %w", id, ErrInvalidID)
	}
	p, err := s.readAgent(id)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultAgentProfile(id), nil
	}
	if err != nil {
		return models.AgentProfile{}, err
	}
	return p, nil
}

// HasAgentProfile reports whether a profile is stored for id.
func (s *FileStore) HasAgentProfile(id string) bool {
	if !validID(id) {
		return false
	}
	ok, _ := afero.Exists(s.fs, s.agentPath(id))
	return ok
}

func (s *FileStore) readAgent(id string) (models.AgentProfile, error) {
	data, err := afero.ReadFile(s.fs, s.agentPath(id))
	if err != nil {
		return models.AgentProfile{}, err
	}
	var p models.AgentProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return models.AgentProfile{}, fmt.Errorf("decode agent %s: %w", id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

// ListAgentProfiles returns the stored profiles ordered by id.
func (s *FileStore) ListAgentProfiles() ([]models.AgentProfile, error) {
	ids, err := s.listYAML(AgentsDir)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	profiles := make([]models.AgentProfile, 0, len(ids))
	for _, id := range ids {
		p, err := s.readAgent(id)
		if err != nil {
			s.logger.Log("skipping unreadable agent %s: %v", id, err)
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// SaveAgentProfile validates and stores an agent profile.
func (s *FileStore) SaveAgentProfile(p models.AgentProfile) error {
	if err := s.validate.Struct(p); err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	if !validID(p.ID) {
		return fmt.Errorf("save agent %q: %w", p.ID, ErrInvalidID)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode agent %s: %w", p.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fs.MkdirAll(filepath.Join(s.root, AgentsDir), 0755); err != nil {
		return fmt.Errorf("create agents dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.agentPath(p.ID), data, 0644); err != nil {
		return fmt.Errorf("write agent %s: %w", p.ID, err)
	}
	s.logger.Log("saved agent profile %s", p.ID)
	return nil
}

// listYAML returns the sorted file stems of .yaml/.yml files in dir.
func (s *FileStore) listYAML(dir string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, filepath.Join(s.root, dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(ids)
	return ids, nil
}

// Stats summarizes the store contents.
type Stats struct {
	Notes     int `json:"notes"`
	Projects  int `json:"projects"`
	Agents    int `json:"agents"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

// Stats counts notes by status, projects and stored agent profiles.
func (s *FileStore) Stats() (Stats, error) {
	notes, err := s.ListNotes(NoteFilter{})
	if err != nil {
		return Stats{}, err
	}
	projects, err := s.listYAML(ProjectsDir)
	if err != nil {
		return Stats{}, fmt.Errorf("count projects: %w", err)
	}
	agents, err := s.listYAML(AgentsDir)
	if err != nil {
		return Stats{}, fmt.Errorf("count agents: %w", err)
	}

	st := Stats{Notes: len(notes), Projects: len(projects), Agents: len(agents)}
	for _, n := range notes {
		switch n.Status {
		case models.NoteStatusCompleted:
			st.Completed++
		default:
			st.Pending++
		}
	}
	return st, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
