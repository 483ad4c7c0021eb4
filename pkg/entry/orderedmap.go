package entry

import "sync"

// OrderedMap is an insertion-ordered map from content-address string to
// entry. It backs the log's entry and heads indices, where deterministic
// iteration order is part of the merge semantics.
type OrderedMap struct {
	mu     sync.RWMutex
	keys   []string
	values map[string]*Entry
}

// NewOrderedMap returns an empty map.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]*Entry)}
}

// NewOrderedMapFromEntries indexes entries by hash in the given order. Nil
// entries are skipped, duplicates keep their first position with the last
// value.
func NewOrderedMapFromEntries(entries []*Entry) *OrderedMap {
	m := NewOrderedMap()
	for _, e := range entries {
		if e == nil {
			continue
		}
		m.Set(e.HashString(), e)
	}
	return m
}

// Get returns the entry for key.
func (m *OrderedMap) Get(key string) (*Entry, bool) {
	m.mu.RLock()
	e, ok := m.values[key]
	m.mu.RUnlock()
	return e, ok
}

// UnsafeGet returns the entry for key, or nil. Use when the key is known to
// be present.
func (m *OrderedMap) UnsafeGet(key string) *Entry {
	e, _ := m.Get(key)
	return e
}

// Set inserts or replaces the entry for key.
func (m *OrderedMap) Set(key string, e *Entry) {
	m.mu.Lock()
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = e
	m.mu.Unlock()
}

// Delete removes the entry for key, if present.
func (m *OrderedMap) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m *OrderedMap) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Slice returns the entries in insertion order.
func (m *OrderedMap) Slice() []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Entry, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.values[k])
	}
	return out
}

// Len returns the number of entries.
func (m *OrderedMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// Copy returns an independent map with the same contents and order.
func (m *OrderedMap) Copy() *OrderedMap {
	c := NewOrderedMap()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range m.keys {
		c.Set(k, m.values[k])
	}
	return c
}

// Merge returns a new map holding the receiver's entries followed by the
// other map's entries not already present.
func (m *OrderedMap) Merge(other *OrderedMap) *OrderedMap {
	merged := m.Copy()
	if other == nil {
		return merged
	}
	for _, k := range other.Keys() {
		if _, ok := merged.Get(k); !ok {
			merged.Set(k, other.UnsafeGet(k))
		}
	}
	return merged
}
