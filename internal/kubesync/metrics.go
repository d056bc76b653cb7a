package kubesync

import (
	"context"
	"time"
)

// File event kinds, used in logs and as metric labels.
const (
	EventAdd     = "add"
	EventChange  = "change"
	EventUnlink  = "unlink"
	EventError   = "error"
	EventIgnored = "ignored"
)

// Diff results, used as metric labels.
const (
	DiffResultSuccess = "success"
	DiffResultCleared = "cleared"
)

// MetricsRecorder defines the interface for recording sync metrics.
// This allows decoupling from the concrete instrumentation implementation.
type MetricsRecorder interface {
	// RecordFileEvent records a file system event handled by a watcher.
	RecordFileEvent(ctx context.Context, event string)

	// RecordDiff records one reconciliation of a file into its RootSource.
	RecordDiff(ctx context.Context, result string, duration time.Duration)

	// RecordReadFailure records a file that could not be read.
	RecordReadFailure(ctx context.Context, reason string)

	// SetWatchedPaths sets the number of actively watched sync paths.
	SetWatchedPaths(ctx context.Context, count int)

	// SetEntities sets the number of published entities.
	SetEntities(ctx context.Context, count int)
}

// noopMetricsRecorder is a no-op implementation of MetricsRecorder.
type noopMetricsRecorder struct{}

func (noopMetricsRecorder) RecordFileEvent(context.Context, string)           {}
func (noopMetricsRecorder) RecordDiff(context.Context, string, time.Duration) {}
func (noopMetricsRecorder) RecordReadFailure(context.Context, string)         {}
func (noopMetricsRecorder) SetWatchedPaths(context.Context, int)              {}
func (noopMetricsRecorder) SetEntities(context.Context, int)                  {}
