package credstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store. Nothing survives a restart.
type Memory struct {
	mu   sync.RWMutex
	pair *Pair
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Save(_ context.Context, p Pair) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.pair = &cp
	return nil
}

func (m *Memory) Load(_ context.Context) (Pair, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pair == nil {
		return Pair{}, false, nil
	}
	return *m.pair, true, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = nil
	return nil
}
