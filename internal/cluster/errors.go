package cluster

import (
	"errors"
)

// Sentinel errors for cluster store operations.
// These errors can be checked using errors.Is() for programmatic error handling.
var (
	// ErrNoAPIURL indicates that no usable http(s) API server URL could be
	// derived from the kubeconfig context. Such a context cannot back a
	// cluster.
	ErrNoAPIURL = errors.New("cluster has no usable API server URL")

	// ErrAlreadyExists indicates that a cluster with the same ID is already
	// in the store.
	ErrAlreadyExists = errors.New("cluster already exists")

	// ErrNotConnected indicates an operation that requires an established
	// connection was attempted on a disconnected cluster.
	ErrNotConnected = errors.New("cluster is not connected")

	// ErrConnectionFailed indicates a network, TLS or authentication error
	// when attempting to reach the cluster API server.
	ErrConnectionFailed = errors.New("failed to connect to cluster")
)
