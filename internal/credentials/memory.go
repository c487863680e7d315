package credentials

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps credentials for the lifetime of the process.
type MemoryStore struct {
	mu  sync.RWMutex
	rec record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Read(ctx context.Context) (Pair, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rec.pair()
}

func (m *MemoryStore) Write(ctx context.Context, p Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = newRecord(p)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, fn func(Pair) Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, _ := m.rec.pair()
	m.rec = newRecord(fn(cur))
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = record{}
	return nil
}

func (m *MemoryStore) Expiry(ctx context.Context) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rec.expiry()
}
