package memory

import (
	"context"
	"sync"

	"github.com/blogboost/ranktracker/internal/rank"
)

// TaskRunStore keeps task audit records in a map.
type TaskRunStore struct {
	mu    sync.RWMutex
	runs  map[string]rank.TaskRun
	order []string
}

// NewTaskRunStore returns an empty in-memory task run store.
func NewTaskRunStore() *TaskRunStore {
	return &TaskRunStore{runs: make(map[string]rank.TaskRun)}
}

// Begin records a freshly started run.
func (s *TaskRunStore) Begin(_ context.Context, run rank.TaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// Finish moves the run to its terminal state.
func (s *TaskRunStore) Finish(_ context.Context, run rank.TaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return rank.ErrTaskRunNotFound
	}
	s.runs[run.ID] = run
	return nil
}

// Latest returns the most recently started run of the named task.
func (s *TaskRunStore) Latest(_ context.Context, name string) (rank.TaskRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		latest rank.TaskRun
		found  bool
	)
	for _, id := range s.order {
		run := s.runs[id]
		if run.Name != name {
			continue
		}
		if !found || run.StartedAt.After(latest.StartedAt) {
			latest = run
			found = true
		}
	}
	if !found {
		return rank.TaskRun{}, rank.ErrTaskRunNotFound
	}
	return latest, nil
}

// Runs returns every recorded run of the named task in insertion order.
func (s *TaskRunStore) Runs(name string) []rank.TaskRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rank.TaskRun
	for _, id := range s.order {
		if run := s.runs[id]; run.Name == name {
			out = append(out, run)
		}
	}
	return out
}
