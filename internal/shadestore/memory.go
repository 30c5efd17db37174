package shadestore

import (
	"context"
	"sort"
	"sync"
)

// MemoryDirectory is an in-memory fixture Directory, used for local
// development (no SHADE_DB_DSN configured) and tests — the same role
// control_plane/store/memory.go plays for the teacher's agent/state tables.
type MemoryDirectory struct {
	mu     sync.RWMutex
	shades map[int64]*ShadeRecord
}

// NewMemoryDirectory builds a directory pre-seeded with records.
func NewMemoryDirectory(records ...*ShadeRecord) *MemoryDirectory {
	m := &MemoryDirectory{shades: make(map[int64]*ShadeRecord, len(records))}
	for _, r := range records {
		m.shades[r.ShadeID] = r
	}
	return m
}

// Put inserts or replaces a record; used by tests to build fixtures.
func (m *MemoryDirectory) Put(r *ShadeRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shades[r.ShadeID] = r
}

func (m *MemoryDirectory) Lookup(_ context.Context, shadeID int64) (*ShadeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.shades[shadeID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryDirectory) ListAll(_ context.Context) ([]*ShadeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ShadeRecord, 0, len(m.shades))
	for _, r := range m.shades {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShadeID < out[j].ShadeID })
	return out, nil
}
