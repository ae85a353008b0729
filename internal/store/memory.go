package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elonfeng/jokemachine/pkg/politeness"
	"github.com/elonfeng/jokemachine/pkg/record"
)

// MemoryStore implements Store in process memory. Nothing survives Close.
type MemoryStore struct {
	mu      sync.RWMutex
	records []record.Stored
	access  map[string]time.Time
	now     func() time.Time
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{access: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) FindByTitleHash(_ context.Context, hash string) ([]record.Stored, error) {
	return m.filter(func(r *record.Stored) bool { return r.TitleHash == hash }), nil
}

func (m *MemoryStore) FindByContentHash(_ context.Context, hash string) ([]record.Stored, error) {
	return m.filter(func(r *record.Stored) bool { return r.ContentHash == hash }), nil
}

func (m *MemoryStore) ExistsByTitleAuthor(_ context.Context, title, author string) (bool, error) {
	return len(m.filter(func(r *record.Stored) bool { return r.Title == title && r.Author == author })) > 0, nil
}

func (m *MemoryStore) Insert(_ context.Context, c *record.Candidate) (*record.Stored, error) {
	if c == nil {
		return nil, errors.New("insert record: nil candidate")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := record.Stored{ID: uuid.NewString(), StoredAt: m.now().UTC(), Candidate: *c}
	m.records = append(m.records, rec)
	return &rec, nil
}

func (m *MemoryStore) ListRecords(_ context.Context, opts ListOpts) ([]record.Stored, error) {
	recs := m.filter(func(r *record.Stored) bool { return opts.Source == "" || r.Source == opts.Source })
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].StoredAt.After(recs[j].StoredAt) })

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (m *MemoryStore) CountBySource(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for i := range m.records {
		counts[m.records[i].Source]++
	}
	return counts, nil
}

func (m *MemoryStore) GetAccessState(_ context.Context, source string) (*politeness.AccessState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	last, ok := m.access[source]
	if !ok {
		return nil, fmt.Errorf("access state %s: %w", source, record.ErrNotFound)
	}
	return &politeness.AccessState{Source: source, LastAccess: last}, nil
}

func (m *MemoryStore) PutAccessState(_ context.Context, st *politeness.AccessState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.access[st.Source] = st.LastAccess.UTC()
	return nil
}

func (m *MemoryStore) ListAccessStates(_ context.Context) ([]politeness.AccessState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]politeness.AccessState, 0, len(m.access))
	for name, last := range m.access {
		states = append(states, politeness.AccessState{Source: name, LastAccess: last})
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Source < states[j].Source })
	return states, nil
}

func (m *MemoryStore) filter(keep func(*record.Stored) bool) []record.Stored {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []record.Stored
	for i := range m.records {
		if keep(&m.records[i]) {
			out = append(out, m.records[i])
		}
	}
	return out
}
