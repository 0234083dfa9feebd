package store

import (
	"context"
	"sync"

	"jlpt-snap/api/internal/settings"
)

// MemorySettings keeps encoded envelopes in process memory.
type MemorySettings struct {
	mu       sync.RWMutex
	data     map[string][]byte
	defaults settings.Settings
}

func NewMemorySettings(defaults settings.Settings) *MemorySettings {
	return &MemorySettings{data: make(map[string][]byte), defaults: defaults}
}

func (m *MemorySettings) Load(ctx context.Context, key string) (settings.Settings, error) {
	m.mu.RLock()
	b, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return m.defaults, nil
	}
	s, err := decode(b, m.defaults)
	if err != nil {
		_ = m.Delete(ctx, key)
		return m.defaults, nil
	}
	return s, nil
}

func (m *MemorySettings) Save(_ context.Context, key string, s settings.Settings) error {
	b, err := encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = b
	m.mu.Unlock()
	return nil
}

func (m *MemorySettings) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// putRaw stores bytes as-is; tests use it to plant stale data.
func (m *MemorySettings) putRaw(key string, b []byte) {
	m.mu.Lock()
	m.data[key] = b
	m.mu.Unlock()
}
