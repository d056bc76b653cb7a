package kubeconfig

import (
	"errors"
	"fmt"
)

// Sentinel errors for kubeconfig parsing and validation.
// These can be checked using errors.Is().
var (
	// ErrMalformedConfig indicates the document is not valid kubeconfig
	// YAML or JSON. The whole file is unusable.
	ErrMalformedConfig = errors.New("malformed kubeconfig")

	// ErrContextNotFound indicates a context name that is not defined.
	ErrContextNotFound = errors.New("context not found")

	// ErrEmptyContextName indicates a context with an empty name.
	ErrEmptyContextName = errors.New("context name is empty")

	// ErrClusterNotFound indicates a context that references a missing
	// cluster entry.
	ErrClusterNotFound = errors.New("no valid cluster object provided in kubeconfig context")

	// ErrUserNotFound indicates a context that references a missing user
	// entry.
	ErrUserNotFound = errors.New("no valid user object provided in kubeconfig context")
)

// ContextError records why a single context was rejected.
type ContextError struct {
	ContextName string
	Err         error
}

// Error implements the error interface.
func (e *ContextError) Error() string {
	return fmt.Sprintf("invalid context %q: %v", e.ContextName, e.Err)
}

// Unwrap returns the underlying validation error.
func (e *ContextError) Unwrap() error {
	return e.Err
}
