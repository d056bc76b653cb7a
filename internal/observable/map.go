package observable

import (
	"sync"
)

// ChangeType describes what happened to a key in a Map.
type ChangeType int

const (
	// Added is emitted when a key is set for the first time.
	Added ChangeType = iota + 1
	// Updated is emitted when an existing key is overwritten.
	Updated
	// Deleted is emitted when a key is removed.
	Deleted
)

// String returns the lower-case name of the change type.
func (t ChangeType) String() string {
	switch t {
	case Added:
		return "add"
	case Updated:
		return "update"
	case Deleted:
		return "delete"
	default:
		return "unknown"
	}
}

// Change is delivered to Map listeners for every mutation.
// OldValue is set for Updated and Deleted changes.
type Change[K comparable, V any] struct {
	Type     ChangeType
	Key      K
	Value    V
	OldValue V
}

// Map is a thread-safe map that notifies subscribers of every mutation.
//
// Listeners are invoked synchronously on the goroutine that performed the
// mutation, after the data lock has been released. A listener may read the
// map but must not mutate it.
type Map[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V

	// notifyMu serializes delivery so listeners observe changes in
	// mutation order even when several goroutines mutate the map.
	notifyMu  sync.Mutex
	listeners map[uint64]func(Change[K, V])
	nextID    uint64
}

// NewMap creates an empty Map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		items:     make(map[K]V),
		listeners: make(map[uint64]func(Change[K, V])),
	}
}

// Get returns the value stored under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Keys returns the keys in unspecified order.
func (m *Map[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]K, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	return keys
}

// Values returns the values in unspecified order.
func (m *Map[K, V]) Values() []V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values := make([]V, 0, len(m.items))
	for _, v := range m.items {
		values = append(values, v)
	}
	return values
}

// Snapshot returns a copy of the current contents.
func (m *Map[K, V]) Snapshot() map[K]V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[K]V, len(m.items))
	for k, v := range m.items {
		out[k] = v
	}
	return out
}

// Set stores value under key and emits Added or Updated.
func (m *Map[K, V]) Set(key K, value V) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	old, existed := m.items[key]
	m.items[key] = value
	m.mu.Unlock()

	change := Change[K, V]{Type: Added, Key: key, Value: value}
	if existed {
		change.Type = Updated
		change.OldValue = old
	}
	m.emit(change)
}

// GetOrInsert returns the value under key, creating it with create when
// absent. The boolean reports whether the value was created.
func (m *Map[K, V]) GetOrInsert(key K, create func() V) (V, bool) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if v, ok := m.items[key]; ok {
		m.mu.Unlock()
		return v, false
	}
	v := create()
	m.items[key] = v
	m.mu.Unlock()

	m.emit(Change[K, V]{Type: Added, Key: key, Value: v})
	return v, true
}

// Delete removes key and emits Deleted. It reports whether the key existed.
func (m *Map[K, V]) Delete(key K) bool {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	old, existed := m.items[key]
	if existed {
		delete(m.items, key)
	}
	m.mu.Unlock()

	if existed {
		m.emit(Change[K, V]{Type: Deleted, Key: key, OldValue: old})
	}
	return existed
}

// Clear removes every entry, emitting one Deleted change per key.
func (m *Map[K, V]) Clear() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	removed := m.items
	m.items = make(map[K]V)
	m.mu.Unlock()

	for k, v := range removed {
		m.emit(Change[K, V]{Type: Deleted, Key: k, OldValue: v})
	}
}

// Subscribe registers fn for every subsequent change and returns a function
// that removes the subscription. Calling the returned function more than
// once is safe.
func (m *Map[K, V]) Subscribe(fn func(Change[K, V])) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Map[K, V]) emit(change Change[K, V]) {
	m.mu.RLock()
	listeners := make([]func(Change[K, V]), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn(change)
	}
}
