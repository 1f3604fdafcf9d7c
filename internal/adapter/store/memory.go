package store

import (
	"context"
	"sync"

	"uplevel-orchestrator/internal/domain"
)

// MemoryKV is a process-local KV used both as the standalone memory backend
// and as the fallback side of FailoverKV. Values are copied on read and
// write so callers cannot alias internal state.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	if !ok {
		return nil, domain.NewDomainError("memory.Get", domain.ErrNotFound, key)
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *MemoryKV) Set(ctx context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	m.mu.Lock()
	m.data[key] = stored
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Ping(ctx context.Context) error { return nil }
func (m *MemoryKV) Name() string                   { return "memory" }

func (m *MemoryKV) Close() error {
	m.mu.Lock()
	m.data = make(map[string][]byte)
	m.mu.Unlock()
	return nil
}

// Keys returns a snapshot of all stored keys.
func (m *MemoryKV) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}
