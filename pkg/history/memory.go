package history

import (
	"context"
	"sync"
)

// Memory is an in-process Store keeping the most recent records.
type Memory struct {
	mu   sync.RWMutex
	keep int
	recs []*Record // oldest first
}

// NewMemory creates a store retaining up to keep records. keep <= 0 uses
// DefaultKeep.
func NewMemory(keep int) *Memory {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Memory{keep: keep}
}

func (m *Memory) Add(_ context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	cp := *rec
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, &cp)
	if over := len(m.recs) - m.keep; over > 0 {
		m.recs = append(m.recs[:0], m.recs[over:]...)
	}
	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.recs) {
		limit = len(m.recs)
	}
	out := make([]*Record, 0, limit)
	for i := len(m.recs) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *m.recs[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
