package observable

import (
	"sync"
)

// Computed is a lazily evaluated value derived from other observables.
//
// The compute function runs on the first Get after an invalidation, and its
// result is cached until the next Invalidate. Subscribers are told about
// invalidations, not about new values; they call Get when they need one.
type Computed[T any] struct {
	compute func() T

	mu    sync.Mutex
	value T
	stale bool

	subsMu sync.Mutex
	subs   map[uint64]func()
	nextID uint64
}

// NewComputed creates a Computed backed by compute. The value starts stale.
func NewComputed[T any](compute func() T) *Computed[T] {
	return &Computed[T]{
		compute: compute,
		stale:   true,
		subs:    make(map[uint64]func()),
	}
}

// Get returns the cached value, recomputing it when stale.
func (c *Computed[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale {
		c.value = c.compute()
		c.stale = false
	}
	return c.value
}

// Invalidate marks the value stale and notifies subscribers.
func (c *Computed[T]) Invalidate() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()

	c.subsMu.Lock()
	subs := make([]func(), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// Subscribe registers fn to run after every invalidation and returns the
// matching unsubscribe function.
func (c *Computed[T]) Subscribe(fn func()) func() {
	c.subsMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

// InvalidateOn invalidates c whenever m changes and returns the unsubscribe
// function.
func InvalidateOn[K comparable, V any, T any](c *Computed[T], m *Map[K, V]) func() {
	return m.Subscribe(func(Change[K, V]) {
		c.Invalidate()
	})
}
