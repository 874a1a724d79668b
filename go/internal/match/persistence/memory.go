package persistence

import (
	"context"
	"fmt"
	"sync"
)

// MemoryKV is an in-process KV with a per-value size limit.
type MemoryKV struct {
	mu       sync.RWMutex
	data     map[string]string
	maxBytes int
	writes   map[string]int
}

// NewMemoryKV returns an empty store. A maxBytes of zero or less means
// DefaultMaxValueBytes.
func NewMemoryKV(maxBytes int) *MemoryKV {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxValueBytes
	}
	return &MemoryKV{
		data:     make(map[string]string),
		maxBytes: maxBytes,
		writes:   make(map[string]int),
	}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	if len(value) > m.maxBytes {
		return fmt.Errorf("set %q (%d bytes): %w", key, len(value), ErrQuotaExceeded)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.writes[key]++
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Writes returns how many successful Set calls key has received.
func (m *MemoryKV) Writes(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes[key]
}
