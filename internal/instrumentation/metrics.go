package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod = "method"
	attrPath   = "path"
	attrStatus = "status"
	attrEvent  = "event"
	attrResult = "result"
	attrReason = "reason"
)

// durationBuckets covers sub-millisecond diffs up to slow API servers.
var durationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0}

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Sync metrics
	fileEventsTotal   metric.Int64Counter
	diffsTotal        metric.Int64Counter
	diffDuration      metric.Float64Histogram
	readFailuresTotal metric.Int64Counter
	watchedPaths      metric.Int64Gauge
	entities          metric.Int64Gauge

	// Cluster metrics
	clusterConnectionsTotal   metric.Int64Counter
	clusterConnectionDuration metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	// HTTP Metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	// Sync Metrics
	m.fileEventsTotal, err = meter.Int64Counter(
		"kubeconfig_sync_file_events_total",
		metric.WithDescription("Total number of file events handled by sync watchers"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubeconfig_sync_file_events_total counter: %w", err)
	}

	m.diffsTotal, err = meter.Int64Counter(
		"kubeconfig_sync_diffs_total",
		metric.WithDescription("Total number of kubeconfig reconciliations"),
		metric.WithUnit("{diff}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubeconfig_sync_diffs_total counter: %w", err)
	}

	m.diffDuration, err = meter.Float64Histogram(
		"kubeconfig_sync_diff_duration_seconds",
		metric.WithDescription("Kubeconfig reconciliation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubeconfig_sync_diff_duration_seconds histogram: %w", err)
	}

	m.readFailuresTotal, err = meter.Int64Counter(
		"kubeconfig_sync_read_failures_total",
		metric.WithDescription("Total number of kubeconfig files that could not be read"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubeconfig_sync_read_failures_total counter: %w", err)
	}

	m.watchedPaths, err = meter.Int64Gauge(
		"kubeconfig_sync_watched_paths",
		metric.WithDescription("Number of actively watched sync paths"),
		metric.WithUnit("{path}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubeconfig_sync_watched_paths gauge: %w", err)
	}

	m.entities, err = meter.Int64Gauge(
		"kubeconfig_sync_entities",
		metric.WithDescription("Number of cluster entities published to the catalog"),
		metric.WithUnit("{entity}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubeconfig_sync_entities gauge: %w", err)
	}

	// Cluster Metrics
	m.clusterConnectionsTotal, err = meter.Int64Counter(
		"kubeconfig_sync_cluster_connections_total",
		metric.WithDescription("Total number of cluster connection attempts"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubeconfig_sync_cluster_connections_total counter: %w", err)
	}

	m.clusterConnectionDuration, err = meter.Float64Histogram(
		"kubeconfig_sync_cluster_connection_duration_seconds",
		metric.WithDescription("Cluster connection duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubeconfig_sync_cluster_connection_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)

	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordFileEvent records a file system event handled by a sync watcher.
func (m *Metrics) RecordFileEvent(ctx context.Context, event string) {
	if m == nil || m.fileEventsTotal == nil {
		return // Instrumentation not initialized
	}

	m.fileEventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrEvent, event)))
}

// RecordDiff records one reconciliation of a kubeconfig file.
func (m *Metrics) RecordDiff(ctx context.Context, result string, duration time.Duration) {
	if m == nil || m.diffsTotal == nil || m.diffDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := metric.WithAttributes(attribute.String(attrResult, result))
	m.diffsTotal.Add(ctx, 1, attrs)
	m.diffDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordReadFailure records a kubeconfig file that could not be read.
// Reason should be one of: "oversized", "encoding", "io"
func (m *Metrics) RecordReadFailure(ctx context.Context, reason string) {
	if m == nil || m.readFailuresTotal == nil {
		return // Instrumentation not initialized
	}

	m.readFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrReason, reason)))
}

// SetWatchedPaths records the number of actively watched sync paths.
func (m *Metrics) SetWatchedPaths(ctx context.Context, count int) {
	if m == nil || m.watchedPaths == nil {
		return // Instrumentation not initialized
	}

	m.watchedPaths.Record(ctx, int64(count))
}

// SetEntities records the number of published catalog entities.
func (m *Metrics) SetEntities(ctx context.Context, count int) {
	if m == nil || m.entities == nil {
		return // Instrumentation not initialized
	}

	m.entities.Record(ctx, int64(count))
}

// RecordClusterConnect records a cluster connection attempt.
// Status should be one of: "success", "error"
func (m *Metrics) RecordClusterConnect(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.clusterConnectionsTotal == nil || m.clusterConnectionDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	m.clusterConnectionsTotal.Add(ctx, 1, attrs)
	m.clusterConnectionDuration.Record(ctx, duration.Seconds(), attrs)
}
