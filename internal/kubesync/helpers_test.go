package kubesync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/giantswarm/kubeconfig-sync/internal/catalog"
	"github.com/giantswarm/kubeconfig-sync/internal/cluster"
	"github.com/giantswarm/kubeconfig-sync/internal/kubeconfig"
)

// kubeconfigWith renders a kubeconfig with one cluster and context per name.
// A name prefixed with "noserver:" gets a cluster without a server and a
// name prefixed with "broken:" references a cluster that does not exist.
func kubeconfigWith(names ...string) string {
	var clusters, contexts strings.Builder
	for _, name := range names {
		switch {
		case strings.HasPrefix(name, "broken:"):
			name = strings.TrimPrefix(name, "broken:")
			fmt.Fprintf(&contexts, "- name: %s\n  context:\n    cluster: missing-%s\n    user: admin\n", name, name)
			continue
		case strings.HasPrefix(name, "noserver:"):
			name = strings.TrimPrefix(name, "noserver:")
			fmt.Fprintf(&clusters, "- name: %s\n  cluster:\n    insecure-skip-tls-verify: true\n", name)
		default:
			fmt.Fprintf(&clusters, "- name: %s\n  cluster:\n    server: https://%s.example.com\n", name, name)
		}
		fmt.Fprintf(&contexts, "- name: %s\n  context:\n    cluster: %s\n    user: admin\n", name, name)
	}

	return "apiVersion: v1\nkind: Config\nclusters:\n" + clusters.String() +
		"contexts:\n" + contexts.String() +
		"users:\n- name: admin\n  user:\n    token: test-token\n"
}

type fakeCluster struct {
	id string

	mu          sync.Mutex
	model       kubeconfig.ContextModel
	apiURL      string
	updates     int
	disconnects int
}

func (c *fakeCluster) ID() string { return c.id }

func (c *fakeCluster) APIURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apiURL
}

func (c *fakeCluster) UpdateModel(model kubeconfig.ContextModel) error {
	apiURL, err := cluster.APIURLFor(model)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = model
	c.apiURL = apiURL
	c.updates++
	return nil
}

func (c *fakeCluster) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
}

func (c *fakeCluster) Info() catalog.ClusterInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return catalog.ClusterInfo{
		ID:             c.id,
		KubeconfigPath: c.model.KubeconfigPath,
		ContextName:    c.model.ContextName,
		APIURL:         c.apiURL,
	}
}

func (c *fakeCluster) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

type fakeClusterStore struct {
	mu       sync.Mutex
	clusters map[string]*fakeCluster
	deleting map[string]bool
	cleared  []string
	creates  int
}

func newFakeClusterStore() *fakeClusterStore {
	return &fakeClusterStore{
		clusters: make(map[string]*fakeCluster),
		deleting: make(map[string]bool),
	}
}

func (s *fakeClusterStore) GetClusterByID(id string) (Cluster, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clusters[id]
	if !ok {
		return nil, false
	}
	return c, true
}

func (s *fakeClusterStore) CreateCluster(id string, model kubeconfig.ContextModel) (Cluster, error) {
	apiURL, err := cluster.APIURLFor(model)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &fakeCluster{id: id, model: model, apiURL: apiURL}
	s.clusters[id] = c
	s.creates++
	return c, nil
}

func (s *fakeClusterStore) RemoveCluster(id string) bool {
	s.mu.Lock()
	c, ok := s.clusters[id]
	delete(s.clusters, id)
	delete(s.deleting, id)
	s.mu.Unlock()

	if ok {
		c.Disconnect()
	}
	return ok
}

func (s *fakeClusterStore) MarkDeleting(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleting[id] = true
}

func (s *fakeClusterStore) ClearAsDeleting(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deleting, id)
	s.cleared = append(s.cleared, id)
}

func (s *fakeClusterStore) IsDeleting(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleting[id]
}

func (s *fakeClusterStore) get(id string) *fakeCluster {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clusters[id]
}

func (s *fakeClusterStore) clearedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cleared...)
}

// fakeMetrics records what the sync engine reports.
type fakeMetrics struct {
	mu           sync.Mutex
	events       map[string]int
	readFailures []string
	entities     int
	watchedPaths int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{events: make(map[string]int)}
}

func (m *fakeMetrics) RecordFileEvent(_ context.Context, event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event]++
}

func (m *fakeMetrics) RecordDiff(context.Context, string, time.Duration) {}

func (m *fakeMetrics) RecordReadFailure(_ context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readFailures = append(m.readFailures, reason)
}

func (m *fakeMetrics) SetWatchedPaths(_ context.Context, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchedPaths = count
}

func (m *fakeMetrics) SetEntities(_ context.Context, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities = count
}

func (m *fakeMetrics) eventCount(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[event]
}

func (m *fakeMetrics) failures() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.readFailures...)
}

func (m *fakeMetrics) entityGauge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entities
}

// gatedClusterStore holds every CreateCluster call until gate is closed.
type gatedClusterStore struct {
	*fakeClusterStore
	entered chan struct{}
	gate    chan struct{}
}

func newGatedClusterStore() *gatedClusterStore {
	return &gatedClusterStore{
		fakeClusterStore: newFakeClusterStore(),
		entered:          make(chan struct{}, 1),
		gate:             make(chan struct{}),
	}
}

func (s *gatedClusterStore) CreateCluster(id string, model kubeconfig.ContextModel) (Cluster, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.gate
	return s.fakeClusterStore.CreateCluster(id, model)
}

// sortedKeys returns the context names in a RootSource.
func sortedKeys(src *RootSource) []string {
	var names []string
	for _, e := range sourceEntities(src) {
		names = append(names, e.Spec.KubeconfigContext)
	}
	return names
}
