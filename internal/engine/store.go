package engine

import (
	"github.com/ShayCichocki/swarm/pkg/models"
)

// store is the in-memory task arena. Insertion order of tasks is the ready
// list order. Callers must hold the engine lock.
type store struct {
	tasks []*models.Task
	index map[string]int
}

func newStore() *store {
	return &store{index: make(map[string]int)}
}

func (s *store) get(id string) (*models.Task, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.tasks[i], true
}

func (s *store) has(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *store) add(t *models.Task) {
	s.index[t.ID] = len(s.tasks)
	s.tasks = append(s.tasks, t)
}

func (s *store) statusOf(id string) (models.TaskStatus, bool) {
	t, ok := s.get(id)
	if !ok {
		return "", false
	}
	return t.Status, true
}

// filter returns clones of tasks matching keep, in insertion order.
func (s *store) filter(keep func(*models.Task) bool) []*models.Task {
	var out []*models.Task
	for _, t := range s.tasks {
		if keep == nil || keep(t) {
			out = append(out, cloneTask(t))
		}
	}
	return out
}

// blockedBy returns the failed task upstream of t, if any.
func (s *store) blockedBy(t *models.Task) (*models.Task, bool) {
	seen := map[string]bool{t.ID: true}
	for dep := t.DependsOn; dep != "" && !seen[dep]; {
		seen[dep] = true
		up, ok := s.get(dep)
		if !ok {
			return nil, false
		}
		if up.Status == models.TaskStatusFailed {
			return up, true
		}
		dep = up.DependsOn
	}
	return nil, false
}

func cloneTask(t *models.Task) *models.Task {
	c := *t
	c.Checklist = append([]string(nil), t.Checklist...)
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.Output != nil {
		o := *t.Output
		c.Output = &o
	}
	return &c
}
