package catalog

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/giantswarm/kubeconfig-sync/internal/observable"
)

// Source is a live list of entities contributed by one provider.
type Source = observable.Computed[[]Entity]

type registeredSource struct {
	id          uint64
	name        string
	source      *Source
	unsubscribe func()
}

// Registry aggregates entity sources into one catalog.
type Registry struct {
	mu      sync.RWMutex
	sources map[uint64]*registeredSource
	nextID  uint64

	subsMu sync.Mutex
	subs   map[uint64]func()
	subID  uint64

	logger *slog.Logger
}

// RegistryOption is a functional option for configuring Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger for the Registry.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		sources: make(map[uint64]*registeredSource),
		subs:    make(map[uint64]func()),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddSource registers src under name and returns the function that removes
// it again. The remove function is safe to call more than once.
func (r *Registry) AddSource(name string, src *Source) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	reg := &registeredSource{id: id, name: name, source: src}
	reg.unsubscribe = src.Subscribe(r.notify)
	r.sources[id] = reg
	r.mu.Unlock()

	r.logger.Debug("Catalog source added", "source", name)
	r.notify()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			_, ok := r.sources[id]
			delete(r.sources, id)
			r.mu.Unlock()
			if !ok {
				return
			}
			reg.unsubscribe()
			r.logger.Debug("Catalog source removed", "source", name)
			r.notify()
		})
	}
}

// Sources returns the names of registered sources in registration order.
func (r *Registry) Sources() []string {
	regs := r.ordered()
	names := make([]string, 0, len(regs))
	for _, reg := range regs {
		names = append(names, reg.name)
	}
	return names
}

// Items returns every entity of every registered source, in source
// registration order.
func (r *Registry) Items() []Entity {
	var items []Entity
	for _, reg := range r.ordered() {
		for _, e := range reg.source.Get() {
			items = append(items, e.Clone())
		}
	}
	return items
}

// Subscribe registers fn to run whenever any source changes or sources are
// added or removed.
func (r *Registry) Subscribe(fn func()) func() {
	r.subsMu.Lock()
	id := r.subID
	r.subID++
	r.subs[id] = fn
	r.subsMu.Unlock()

	return func() {
		r.subsMu.Lock()
		delete(r.subs, id)
		r.subsMu.Unlock()
	}
}

func (r *Registry) ordered() []*registeredSource {
	r.mu.RLock()
	regs := make([]*registeredSource, 0, len(r.sources))
	for _, reg := range r.sources {
		regs = append(regs, reg)
	}
	r.mu.RUnlock()

	sort.Slice(regs, func(i, j int) bool { return regs[i].id < regs[j].id })
	return regs
}

func (r *Registry) notify() {
	r.subsMu.Lock()
	subs := make([]func(), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.subsMu.Unlock()

	for _, fn := range subs {
		fn()
	}
}
