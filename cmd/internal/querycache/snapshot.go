package querycache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Snapshot is the persisted first page of a query.
type Snapshot struct {
	Key      string
	Payload  json.RawMessage
	SyncedAt time.Time
}

// SnapshotStore persists first-page snapshots.
type SnapshotStore interface {
	Get(ctx context.Context, key string) (Snapshot, bool, error)
	Put(ctx context.Context, s Snapshot) error
	// Clear removes every snapshot (logout).
	Clear(ctx context.Context) error
}

// MemorySnapshots is an in-process SnapshotStore.
type MemorySnapshots struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

// NewMemorySnapshots returns an empty store.
func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{snaps: make(map[string]Snapshot)}
}

func (m *MemorySnapshots) Get(_ context.Context, key string) (Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snaps[key]
	if !ok {
		return Snapshot{}, false, nil
	}
	s.Payload = append(json.RawMessage(nil), s.Payload...)
	return s, true, nil
}

func (m *MemorySnapshots) Put(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Payload = append(json.RawMessage(nil), s.Payload...)
	m.snaps[s.Key] = s
	return nil
}

func (m *MemorySnapshots) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = make(map[string]Snapshot)
	return nil
}
