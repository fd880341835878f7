package persist

import (
	"context"
	"sync"
)

var _ Medium = (*MemoryMedium)(nil)

// MemoryMedium keeps values in process memory.
type MemoryMedium struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryMedium creates an empty MemoryMedium.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{values: make(map[string][]byte)}
}

func (m *MemoryMedium) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, ErrNoState
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryMedium) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryMedium) Ping(context.Context) error { return nil }

func (m *MemoryMedium) Close() error { return nil }
