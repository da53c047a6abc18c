package cache

import (
	"context"
	"sync"

	"github.com/blogboost/ranktracker/internal/rank"
)

// Memory is an in-process history cache for development and tests.
// It applies no TTL; entries live until invalidated.
type Memory struct {
	mu        sync.RWMutex
	entries   map[int64]rank.RankHistory
	byKeyword map[string]map[int64]struct{}
}

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries:   make(map[int64]rank.RankHistory),
		byKeyword: make(map[string]map[int64]struct{}),
	}
}

// Get returns the cached history for a tracking subscription.
func (m *Memory) Get(_ context.Context, trackingID int64) (rank.RankHistory, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history, ok := m.entries[trackingID]
	return history, ok
}

// Set stores the history and indexes it under its keyword.
func (m *Memory) Set(_ context.Context, keyword string, history rank.RankHistory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[history.TrackingID] = history
	ids, ok := m.byKeyword[keyword]
	if !ok {
		ids = make(map[int64]struct{})
		m.byKeyword[keyword] = ids
	}
	ids[history.TrackingID] = struct{}{}
}

// InvalidateKeyword drops every cached history indexed under the keyword.
func (m *Memory) InvalidateKeyword(_ context.Context, keyword string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.byKeyword[keyword] {
		delete(m.entries, id)
	}
	delete(m.byKeyword, keyword)
}
