package store

import (
	"context"
	"sync"
)

// Memory is a process-local Store, used by tests and the "memory" backend.
type Memory struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]string{}}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *Memory) Apply(_ context.Context, b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range b.Ops() {
		if op.Delete {
			delete(m.entries, op.Key)
			continue
		}
		m.entries[op.Key] = op.Value
	}
	return nil
}

// Len reports how many entries are held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
