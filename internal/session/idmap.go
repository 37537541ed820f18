package session

import "maps"

// IDMap hands out small integers for participant ids in join order. The
// numbers are stable for the life of a battle and persisted alongside its
// snapshot.
type IDMap struct {
	ids  map[string]int
	next int
}

// NewIDMap restores a map from its persisted form.
func NewIDMap(persisted map[string]int) *IDMap {
	m := &IDMap{ids: make(map[string]int, len(persisted)), next: 1}
	for id, n := range persisted {
		m.ids[id] = n
		m.next = max(m.next, n+1)
	}
	return m
}

// Assign returns the number for id, allocating one if needed.
func (m *IDMap) Assign(id string) int {
	if n, ok := m.ids[id]; ok {
		return n
	}
	n := m.next
	m.ids[id] = n
	m.next++
	return n
}

// Lookup returns the number for id.
func (m *IDMap) Lookup(id string) (int, bool) {
	n, ok := m.ids[id]
	return n, ok
}

// Map returns a copy for persistence.
func (m *IDMap) Map() map[string]int {
	return maps.Clone(m.ids)
}

// Clone returns an independent copy.
func (m *IDMap) Clone() *IDMap {
	return &IDMap{ids: maps.Clone(m.ids), next: m.next}
}
