package kubesync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/giantswarm/kubeconfig-sync/internal/catalog"
	"github.com/giantswarm/kubeconfig-sync/internal/disposer"
	"github.com/giantswarm/kubeconfig-sync/internal/logging"
	"github.com/giantswarm/kubeconfig-sync/internal/observable"
	"github.com/giantswarm/kubeconfig-sync/internal/preferences"
)

// DefaultSourceName is the catalog source name used by the Manager.
const DefaultSourceName = "kubeconfig-sync"

// ManagerOption is a functional option for configuring Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for the Manager and its watchers.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithManagerMetrics sets the metrics recorder for the Manager and its
// watchers.
func WithManagerMetrics(metrics MetricsRecorder) ManagerOption {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithDefaultDir sets the directory that is always watched.
func WithDefaultDir(dir string) ManagerOption {
	return func(m *Manager) {
		m.defaultDir = dir
	}
}

// WithWatcherOptions sets options passed to every watcher.
func WithWatcherOptions(opts ...WatcherOption) ManagerOption {
	return func(m *Manager) {
		m.watcherOpts = append(m.watcherOpts, opts...)
	}
}

type watchHandle struct {
	source      *catalog.Source
	stop        func()
	unsubscribe func()
}

// syncSession is one StartSync..StopSync run. A session owns its watchers,
// so one that is still shutting down never touches those of the next.
type syncSession struct {
	watchers  *observable.Map[string, *watchHandle]
	aggregate *catalog.Source
	disposers *disposer.Stack
}

// collect flattens the sources of all watchers, ordered by watched path.
func (s *syncSession) collect() []catalog.Entity {
	snapshot := s.watchers.Snapshot()
	paths := make([]string, 0, len(snapshot))
	for path := range snapshot {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var entities []catalog.Entity
	for _, path := range paths {
		entities = append(entities, snapshot[path].source.Get()...)
	}
	return entities
}

// Manager runs one Watcher for the default directory and one per sync
// entry, and publishes their combined entities as a catalog source.
type Manager struct {
	differ      *Differ
	registry    CatalogRegistry
	entries     *observable.Map[string, preferences.SyncEntry]
	defaultDir  string
	watcherOpts []WatcherOption
	logger      *slog.Logger
	metrics     MetricsRecorder

	mu      sync.Mutex
	session *syncSession
}

// NewManager creates an idle Manager. entries is the live set of sync
// entries keyed by path.
func NewManager(differ *Differ, registry CatalogRegistry, entries *observable.Map[string, preferences.SyncEntry], opts ...ManagerOption) *Manager {
	m := &Manager{
		differ:     differ,
		registry:   registry,
		entries:    entries,
		defaultDir: preferences.DefaultKubeconfigDir(),
		logger:     slog.Default(),
		metrics:    noopMetricsRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.defaultDir = filepath.Clean(m.defaultDir)
	return m
}

// DefaultDir returns the directory that is always watched.
func (m *Manager) DefaultDir() string {
	return m.defaultDir
}

// StartSync registers the catalog source and starts watching the default
// directory and every sync entry. Calling it while syncing does nothing.
func (m *Manager) StartSync() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.logger.Debug("Sync already running")
		return
	}
	m.logger.Info("Starting kubeconfig sync", logging.SyncPath(m.defaultDir))

	s := &syncSession{
		watchers:  observable.NewMap[string, *watchHandle](),
		disposers: disposer.New(),
	}
	s.aggregate = observable.NewComputed(s.collect)
	m.session = s

	d := s.disposers
	d.Push(observable.InvalidateOn(s.aggregate, s.watchers))
	d.Push(m.registry.AddSource(DefaultSourceName, s.aggregate))
	d.Push(func() { m.stopAllWatchers(s) })
	d.Push(m.publishEntityCount(s))

	if err := os.MkdirAll(m.defaultDir, 0o750); err != nil {
		m.logger.Warn("Failed to create default kubeconfig directory", logging.SyncPath(m.defaultDir), logging.Err(err))
	}
	m.startWatchLocked(s, m.defaultDir)

	// Subscribe before listing so an entry added in between is not missed.
	// Starting a watch twice is a no-op.
	d.Push(m.entries.Subscribe(func(change observable.Change[string, preferences.SyncEntry]) {
		switch change.Type {
		case observable.Added:
			m.startWatch(s, change.Key)
		case observable.Deleted:
			m.stopWatch(s, change.Key)
		}
	}))
	for _, entry := range m.entries.Values() {
		m.startWatchLocked(s, entry.FilePath)
	}
}

// StopSync stops every watcher and unregisters the catalog source. Calling
// it while idle does nothing.
func (m *Manager) StopSync() {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()

	if s == nil {
		m.logger.Debug("Sync not running")
		return
	}

	// Watchers are stopped outside the lock: their event loops may be
	// delivering changes that end in code calling back into the Manager.
	s.disposers.Dispose()
	m.logger.Info("Stopped kubeconfig sync")
}

// IsSyncing reports whether the Manager is running.
func (m *Manager) IsSyncing() bool {
	return m.current() != nil
}

// WatchedPaths returns the watched paths, sorted.
func (m *Manager) WatchedPaths() []string {
	s := m.current()
	if s == nil {
		return nil
	}
	paths := s.watchers.Keys()
	sort.Strings(paths)
	return paths
}

// Entities returns the entities currently published by the Manager.
func (m *Manager) Entities() []catalog.Entity {
	s := m.current()
	if s == nil {
		return nil
	}
	return s.aggregate.Get()
}

func (m *Manager) current() *syncSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *Manager) startWatch(s *syncSession, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != s {
		return
	}
	m.startWatchLocked(s, path)
}

func (m *Manager) startWatchLocked(s *syncSession, path string) {
	path = filepath.Clean(path)
	if s.watchers.Has(path) {
		m.logger.Debug("Already watching sync path", logging.SyncPath(path))
		return
	}

	opts := append([]WatcherOption{
		WithWatcherLogger(m.logger),
		WithWatcherMetrics(m.metrics),
	}, m.watcherOpts...)
	source, stop := Watch(path, m.differ, opts...)

	handle := &watchHandle{
		source:      source,
		stop:        stop,
		unsubscribe: source.Subscribe(s.aggregate.Invalidate),
	}
	s.watchers.Set(path, handle)
	m.metrics.SetWatchedPaths(context.Background(), s.watchers.Len())
	m.logger.Info("Watching sync path", logging.SyncPath(path))
}

// stopWatch stops the watcher of a removed sync entry and releases the
// clusters that no other watched path still publishes.
func (m *Manager) stopWatch(s *syncSession, path string) {
	path = filepath.Clean(path)

	m.mu.Lock()
	if m.session != s {
		m.mu.Unlock()
		return
	}
	if path == m.defaultDir {
		m.mu.Unlock()
		m.logger.Debug("Default directory is always watched", logging.SyncPath(path))
		return
	}
	handle, ok := s.watchers.Get(path)
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("Sync path not watched", logging.SyncPath(path))
		return
	}
	s.watchers.Delete(path)
	m.metrics.SetWatchedPaths(context.Background(), s.watchers.Len())
	m.mu.Unlock()

	m.release(handle)
	m.releaseClusters(handle.source.Get(), s.aggregate.Get())
	m.logger.Info("Stopped watching sync path", logging.SyncPath(path))
}

// releaseClusters hands the clusters of dropped entities that are not in
// kept back to the Differ for teardown.
func (m *Manager) releaseClusters(dropped, kept []catalog.Entity) {
	published := make(map[string]struct{}, len(kept))
	for _, e := range kept {
		published[e.Metadata.UID] = struct{}{}
	}
	for _, e := range dropped {
		if _, ok := published[e.Metadata.UID]; ok {
			continue
		}
		m.differ.ReleaseCluster(e.Metadata.UID)
	}
}

func (m *Manager) stopAllWatchers(s *syncSession) {
	for _, path := range s.watchers.Keys() {
		handle, ok := s.watchers.Get(path)
		if !ok {
			continue
		}
		s.watchers.Delete(path)
		m.release(handle)
	}
	m.metrics.SetWatchedPaths(context.Background(), 0)
}

func (m *Manager) release(handle *watchHandle) {
	handle.unsubscribe()
	handle.stop()
}

// publishEntityCount keeps the entity gauge current. The aggregate is
// invalidated once per RootSource mutation; bursts are coalesced into a
// single recount. The returned function stops publishing.
func (m *Manager) publishEntityCount(s *syncSession) func() {
	changed := make(chan struct{}, 1)
	unsubscribe := s.aggregate.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	changed <- struct{}{}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case <-changed:
				m.metrics.SetEntities(context.Background(), len(s.aggregate.Get()))
			}
		}
	}()

	return func() {
		unsubscribe()
		close(stop)
		<-done
		m.metrics.SetEntities(context.Background(), 0)
	}
}
