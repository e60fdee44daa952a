// Package keymap implements the keyed associative store spec.md §6
// requires of the sampler and elider's backing map: get/put/size/
// tablesize/iter/filter, with a tri-state visitor controlling per-entry
// Keep/Delete/Stop semantics during iteration (the redesign spec.md §9
// recommends over a stateful callback-driven iterator). It is a plain
// separate-chaining hash table keyed by string, hashed with
// github.com/cespare/xxhash/v2 — the "implementation-defined hash" the
// spec leaves open, matching the hashing choice already present elsewhere
// in the retrieved pack (carbon-relay-ng, vsa).
package keymap

import "github.com/cespare/xxhash/v2"

// Action is the per-entry instruction an Iter/Filter callback returns.
type Action int

const (
	Keep Action = iota
	Delete
	Stop
)

type entry[V any] struct {
	key   string
	value V
	next  *entry[V]
}

// Map is a generic string-keyed hash table with a fixed initial bucket
// count, growing by doubling once its load factor crosses 4.
type Map[V any] struct {
	buckets []*entry[V]
	size    int
}

// New allocates a Map with the given initial table size (spec.md §4.2
// names 32768 for the sampler's bucket map).
func New[V any](initialTableSize int) *Map[V] {
	if initialTableSize < 1 {
		initialTableSize = 1
	}
	return &Map[V]{buckets: make([]*entry[V], initialTableSize)}
}

func (m *Map[V]) index(key string, tableLen int) int {
	return int(xxhash.Sum64String(key) % uint64(tableLen))
}

// Get returns the value for key and whether it was present.
func (m *Map[V]) Get(key string) (V, bool) {
	i := m.index(key, len(m.buckets))
	for e := m.buckets[i]; e != nil; e = e.next {
		if e.key == key {
			return e.value, true
		}
	}
	var zero V
	return zero, false
}

// Put inserts or overwrites the value for key.
func (m *Map[V]) Put(key string, value V) {
	i := m.index(key, len(m.buckets))
	for e := m.buckets[i]; e != nil; e = e.next {
		if e.key == key {
			e.value = value
			return
		}
	}
	m.buckets[i] = &entry[V]{key: key, value: value, next: m.buckets[i]}
	m.size++
	if m.size > len(m.buckets)*4 {
		m.grow()
	}
}

func (m *Map[V]) grow() {
	next := make([]*entry[V], len(m.buckets)*2)
	for _, head := range m.buckets {
		for e := head; e != nil; {
			n := e.next
			i := m.index(e.key, len(next))
			e.next = next[i]
			next[i] = e
			e = n
		}
	}
	m.buckets = next
}

// Delete removes key if present, reporting whether it was found.
func (m *Map[V]) Delete(key string) bool {
	i := m.index(key, len(m.buckets))
	var prev *entry[V]
	for e := m.buckets[i]; e != nil; e = e.next {
		if e.key == key {
			if prev == nil {
				m.buckets[i] = e.next
			} else {
				prev.next = e.next
			}
			m.size--
			return true
		}
		prev = e
	}
	return false
}

// Size is the current entry count.
func (m *Map[V]) Size() int { return m.size }

// TableSize is the current bucket-array length.
func (m *Map[V]) TableSize() int { return len(m.buckets) }

// Iter visits every entry. The callback's Action controls whether the
// entry is kept as-is, deleted in place, or whether iteration stops
// immediately (remaining entries, including the rest of the current
// bucket chain, are left untouched).
func (m *Map[V]) Iter(cb func(key string, value V) Action) {
	for i, head := range m.buckets {
		var prev *entry[V]
		e := head
		for e != nil {
			next := e.next
			switch cb(e.key, e.value) {
			case Delete:
				if prev == nil {
					m.buckets[i] = next
				} else {
					prev.next = next
				}
				m.size--
			case Stop:
				return
			default:
				prev = e
			}
			e = next
		}
	}
}

// Filter deletes every entry for which cb returns true.
func (m *Map[V]) Filter(cb func(key string, value V) bool) {
	m.Iter(func(k string, v V) Action {
		if cb(k, v) {
			return Delete
		}
		return Keep
	})
}
