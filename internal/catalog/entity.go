package catalog

import (
	"maps"
	"slices"
)

// Entity API constants.
const (
	EntityAPIVersion = "entity.kubeconfig-sync.giantswarm.io/v1alpha1"
	KindCluster      = "KubernetesCluster"

	// SourceLocal marks entities discovered from local kubeconfig files.
	SourceLocal = "local"

	// LabelFile carries the human friendly path of the kubeconfig an
	// entity came from, for files outside the default directory.
	LabelFile = "file"
)

// Cluster phases reported in EntityStatus.
const (
	PhaseDisconnected = "disconnected"
	PhaseConnected    = "connected"
	PhaseOffline      = "offline"
)

// Entity is the catalog projection of a cluster. Entities are disposable:
// a new one is built whenever the backing cluster changes.
type Entity struct {
	APIVersion string         `json:"apiVersion" yaml:"apiVersion"`
	Kind       string         `json:"kind" yaml:"kind"`
	Metadata   EntityMetadata `json:"metadata" yaml:"metadata"`
	Spec       ClusterSpec    `json:"spec" yaml:"spec"`
	Status     EntityStatus   `json:"status" yaml:"status"`
}

// EntityMetadata identifies an entity.
type EntityMetadata struct {
	UID    string            `json:"uid" yaml:"uid"`
	Name   string            `json:"name" yaml:"name"`
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Source string            `json:"source" yaml:"source"`
}

// ClusterSpec describes where the cluster configuration lives.
type ClusterSpec struct {
	KubeconfigPath    string `json:"kubeconfigPath" yaml:"kubeconfigPath"`
	KubeconfigContext string `json:"kubeconfigContext" yaml:"kubeconfigContext"`
	APIURL            string `json:"apiUrl,omitempty" yaml:"apiUrl,omitempty"`
}

// EntityStatus reports the last known cluster phase. Version and
// Namespaces are only known after the cluster was contacted.
type EntityStatus struct {
	Phase      string   `json:"phase" yaml:"phase"`
	Version    string   `json:"version,omitempty" yaml:"version,omitempty"`
	Namespaces []string `json:"namespaces,omitempty" yaml:"namespaces,omitempty"`
}

// ClusterInfo is the subset of cluster state an entity is built from.
type ClusterInfo struct {
	ID             string
	Name           string
	KubeconfigPath string
	ContextName    string
	APIURL         string
	Phase          string
}

// NewClusterEntity builds the catalog entity for a cluster.
func NewClusterEntity(info ClusterInfo) Entity {
	name := info.Name
	if name == "" {
		name = info.ContextName
	}
	phase := info.Phase
	if phase == "" {
		phase = PhaseDisconnected
	}
	return Entity{
		APIVersion: EntityAPIVersion,
		Kind:       KindCluster,
		Metadata: EntityMetadata{
			UID:    info.ID,
			Name:   name,
			Labels: map[string]string{},
			Source: SourceLocal,
		},
		Spec: ClusterSpec{
			KubeconfigPath:    info.KubeconfigPath,
			KubeconfigContext: info.ContextName,
			APIURL:            info.APIURL,
		},
		Status: EntityStatus{Phase: phase},
	}
}

// WithLabel returns a copy of e with the label set.
func (e Entity) WithLabel(key, value string) Entity {
	out := e.Clone()
	if out.Metadata.Labels == nil {
		out.Metadata.Labels = map[string]string{}
	}
	out.Metadata.Labels[key] = value
	return out
}

// Clone returns a deep copy of e.
func (e Entity) Clone() Entity {
	out := e
	if e.Metadata.Labels != nil {
		out.Metadata.Labels = maps.Clone(e.Metadata.Labels)
	}
	if e.Status.Namespaces != nil {
		out.Status.Namespaces = slices.Clone(e.Status.Namespaces)
	}
	return out
}
