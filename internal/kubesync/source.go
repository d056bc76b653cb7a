package kubesync

import (
	"crypto/md5" //nolint:gosec // identifier derivation, not a security boundary
	"encoding/hex"
	"sort"

	"github.com/giantswarm/kubeconfig-sync/internal/catalog"
	"github.com/giantswarm/kubeconfig-sync/internal/observable"
)

// SourceEntry pairs a cluster with the entity currently published for it.
type SourceEntry struct {
	Cluster Cluster
	Entity  catalog.Entity
}

// RootSource holds the entries of one kubeconfig file, keyed by context name.
type RootSource = observable.Map[string, SourceEntry]

// NewRootSource creates an empty RootSource.
func NewRootSource() *RootSource {
	return observable.NewMap[string, SourceEntry]()
}

// ClusterID returns the identifier of the cluster for contextName in the
// kubeconfig at filePath: the hex MD5 of "filePath:contextName".
func ClusterID(filePath, contextName string) string {
	sum := md5.Sum([]byte(filePath + ":" + contextName)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// sourceEntities returns the entities of src ordered by context name.
func sourceEntities(src *RootSource) []catalog.Entity {
	snapshot := src.Snapshot()
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	entities := make([]catalog.Entity, 0, len(names))
	for _, name := range names {
		entities = append(entities, snapshot[name].Entity)
	}
	return entities
}
