package storage

import (
	"context"
	"sync"
)

// MemoryBackend is an in-memory implementation of Backend. Its contents do
// not survive the process.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string][]byte
	closed bool
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		values: make(map[string][]byte),
	}
}

// Get returns a copy of the value stored under key
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, false, ErrClosed
	}

	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}

	return append([]byte(nil), value...), true, nil
}

// Set stores a copy of value under key
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.values[key] = append([]byte(nil), value...)
	return nil
}

// Ping fails only once the backend is closed
func (m *MemoryBackend) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	return nil
}

// Size returns the number of stored keys
func (m *MemoryBackend) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// Close marks the backend closed. Later calls fail with ErrClosed.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
