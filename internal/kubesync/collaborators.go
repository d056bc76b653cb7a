package kubesync

import (
	"github.com/giantswarm/kubeconfig-sync/internal/catalog"
	"github.com/giantswarm/kubeconfig-sync/internal/cluster"
	"github.com/giantswarm/kubeconfig-sync/internal/kubeconfig"
)

// Cluster is the part of a cluster the sync engine drives.
type Cluster interface {
	ID() string
	APIURL() string
	UpdateModel(model kubeconfig.ContextModel) error
	Disconnect()
	Info() catalog.ClusterInfo
}

// ClusterStore looks up, creates and tears down clusters. A cluster marked
// as deleting is on its way out and must not be handed to a context.
type ClusterStore interface {
	GetClusterByID(id string) (Cluster, bool)
	CreateCluster(id string, model kubeconfig.ContextModel) (Cluster, error)
	RemoveCluster(id string) bool
	MarkDeleting(id string)
	ClearAsDeleting(id string)
	IsDeleting(id string) bool
}

// CatalogRegistry accepts entity sources.
type CatalogRegistry interface {
	AddSource(name string, src *catalog.Source) func()
}

// NewClusterStore adapts a cluster.Store to ClusterStore.
func NewClusterStore(store *cluster.Store) ClusterStore {
	return &clusterStoreAdapter{store: store}
}

type clusterStoreAdapter struct {
	store *cluster.Store
}

func (a *clusterStoreAdapter) GetClusterByID(id string) (Cluster, bool) {
	c, ok := a.store.GetByID(id)
	if !ok {
		return nil, false
	}
	return c, true
}

func (a *clusterStoreAdapter) CreateCluster(id string, model kubeconfig.ContextModel) (Cluster, error) {
	c, err := a.store.Create(model, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (a *clusterStoreAdapter) RemoveCluster(id string) bool {
	return a.store.Remove(id)
}

func (a *clusterStoreAdapter) MarkDeleting(id string) {
	a.store.MarkDeleting(id)
}

func (a *clusterStoreAdapter) ClearAsDeleting(id string) {
	a.store.ClearAsDeleting(id)
}

func (a *clusterStoreAdapter) IsDeleting(id string) bool {
	return a.store.IsDeleting(id)
}
