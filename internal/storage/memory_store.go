package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nfrund/hexarena/internal/domain"
)

// MemoryStore keeps records in a map. Save can be made to fail for tests
// that exercise persistence retries.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	saveErr error
	saves   int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// FailSaves makes every subsequent Save return err until called with nil.
func (m *MemoryStore) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// Saves returns how many Save calls succeeded.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *MemoryStore) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[rec.BattleID] = cloneRecord(rec)
	m.saves++
	return nil
}

func (m *MemoryStore) Load(_ context.Context, battleID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[battleID]
	if !ok {
		return Record{}, fmt.Errorf("snapshot %s: %w", battleID, domain.ErrNotFound)
	}
	return cloneRecord(rec), nil
}

func (m *MemoryStore) List(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BattleID < out[j].BattleID })
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, battleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, battleID)
	return nil
}

func cloneRecord(rec Record) Record {
	rec.Blob = append([]byte(nil), rec.Blob...)
	ids := make(map[string]int, len(rec.NumericIDs))
	for k, v := range rec.NumericIDs {
		ids[k] = v
	}
	rec.NumericIDs = ids
	return rec
}

var _ SnapshotStore = (*MemoryStore)(nil)
