// Package cluster keeps the clusters backed by kubeconfig contexts.
//
// A Cluster is created from a kubeconfig.ContextModel and is identified by a
// stable ID chosen by the caller. Connecting is lazy: a Cluster only builds a
// Kubernetes client when Connect is called, and concurrent Connect calls share
// one attempt.
//
// The Store holds clusters by ID and tracks IDs that are being deleted, so a
// removal in progress can be distinguished from a cluster that never existed.
package cluster
