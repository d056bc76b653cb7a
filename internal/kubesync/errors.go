package kubesync

import (
	"errors"
	"fmt"
)

// Sentinel errors for file reads and cluster resolution.
var (
	// ErrFileTooLarge indicates the file size reached the read ceiling of its
	// sync mode. The file is not read.
	ErrFileTooLarge = errors.New("file exceeds the maximum read size")

	// ErrInvalidEncoding indicates the file is not valid UTF-8.
	ErrInvalidEncoding = errors.New("file is not valid UTF-8")

	// ErrClusterDeleting indicates the cluster for a context is being torn
	// down and cannot be reused yet.
	ErrClusterDeleting = errors.New("cluster is being deleted")
)

// Read failure reasons, used as metric labels.
const (
	ReasonOversized = "oversized"
	ReasonEncoding  = "encoding"
	ReasonIO        = "io"
)

// ReadError describes why a kubeconfig file could not be read.
type ReadError struct {
	Path   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read %s (%s): %v", e.Path, e.Reason, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReadError) Unwrap() error {
	return e.Err
}

// readFailureReason returns the metric label for a read error.
func readFailureReason(err error) string {
	var readErr *ReadError
	if errors.As(err, &readErr) {
		return readErr.Reason
	}
	return ReasonIO
}
