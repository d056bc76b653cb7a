package cluster

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/giantswarm/kubeconfig-sync/internal/kubeconfig"
)

// Store holds clusters by ID.
type Store struct {
	mu       sync.RWMutex
	clusters map[string]*Cluster
	deleting sets.Set[string]

	clientFactory ClientFactory
	metrics       MetricsRecorder
	logger        *slog.Logger
}

// StoreOption is a functional option for configuring Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger for the Store and the clusters it creates.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClientFactory sets the factory clusters use to build clients.
func WithClientFactory(factory ClientFactory) StoreOption {
	return func(s *Store) {
		s.clientFactory = factory
	}
}

// WithMetrics sets the recorder clusters report connection attempts to.
func WithMetrics(metrics MetricsRecorder) StoreOption {
	return func(s *Store) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		clusters:      make(map[string]*Cluster),
		deleting:      sets.New[string](),
		clientFactory: DefaultClientFactory,
		metrics:       noopMetricsRecorder{},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create builds a cluster for model under id and adds it to the store.
// It fails with ErrNoAPIURL when the model has no usable API server URL and
// with ErrAlreadyExists when id is taken.
func (s *Store) Create(model kubeconfig.ContextModel, id string) (*Cluster, error) {
	c, err := newCluster(id, model, s.clientFactory, s.metrics, s.logger)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clusters[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}
	s.clusters[id] = c
	return c, nil
}

// GetByID returns the cluster with the given id.
func (s *Store) GetByID(id string) (*Cluster, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clusters[id]
	return c, ok
}

// List returns all clusters sorted by ID.
func (s *Store) List() []*Cluster {
	s.mu.RLock()
	out := make([]*Cluster, 0, len(s.clusters))
	for _, c := range s.clusters {
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Len returns the number of clusters in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clusters)
}

// Remove disconnects and removes the cluster with the given id. It reports
// whether a cluster was removed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	c, ok := s.clusters[id]
	delete(s.clusters, id)
	s.deleting.Delete(id)
	s.mu.Unlock()

	if ok {
		c.Disconnect()
	}
	return ok
}

// MarkDeleting records that a deletion of id is in progress.
func (s *Store) MarkDeleting(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleting.Insert(id)
}

// ClearAsDeleting drops the deletion marker for id, if any.
func (s *Store) ClearAsDeleting(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleting.Delete(id)
}

// IsDeleting reports whether id is marked as being deleted.
func (s *Store) IsDeleting(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deleting.Has(id)
}
