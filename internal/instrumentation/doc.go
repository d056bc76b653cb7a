// Package instrumentation provides OpenTelemetry instrumentation for
// kubeconfig-sync.
//
// # Metrics
//
// Sync Metrics:
//   - kubeconfig_sync_file_events_total: Counter of watcher events by event (add, change, unlink, error, ignored)
//   - kubeconfig_sync_diffs_total: Counter of kubeconfig reconciliations by result (success, cleared)
//   - kubeconfig_sync_diff_duration_seconds: Histogram of reconciliation durations
//   - kubeconfig_sync_read_failures_total: Counter of unreadable files by reason (oversized, encoding, io)
//   - kubeconfig_sync_watched_paths: Gauge of watched sync paths
//   - kubeconfig_sync_entities: Gauge of entities published to the catalog
//
// Cluster Metrics:
//   - kubeconfig_sync_cluster_connections_total: Counter of connection attempts by status
//   - kubeconfig_sync_cluster_connection_duration_seconds: Histogram of connection durations
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// # Tracing
//
// Spans are created for every kubeconfig reconciliation (kubesync.compute_diff)
// and for calls against cluster API servers (cluster.connect, cluster.refresh).
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: false)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: kubeconfig-sync)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	manager := kubesync.NewManager(differ, registry, entries,
//		kubesync.WithManagerMetrics(provider.Metrics()))
package instrumentation
