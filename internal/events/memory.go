package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/blogboost/ranktracker/internal/rank"
)

// Memory records published events for inspection in tests.
type Memory struct {
	mu     sync.RWMutex
	events []rank.CollectionEvent
}

// NewMemory returns an empty recorder.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish stores the event and returns a pseudo message ID.
func (m *Memory) Publish(_ context.Context, event rank.CollectionEvent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return fmt.Sprintf("memory-%d", len(m.events)), nil
}

// Events returns the recorded publishes.
func (m *Memory) Events() []rank.CollectionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]rank.CollectionEvent, len(m.events))
	copy(out, m.events)
	return out
}
