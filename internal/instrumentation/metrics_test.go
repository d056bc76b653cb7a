package instrumentation

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// mockMeterProvider creates a simple meter for testing
func mockMeterProvider() metric.Meter {
	provider := sdkmetric.NewMeterProvider()
	return provider.Meter("test")
}

// newCollectingMetrics returns Metrics backed by a manual reader so tests can
// inspect recorded values.
func newCollectingMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(provider.Meter("test"))
	if err != nil {
		t.Fatalf("expected no error creating metrics, got %v", err)
	}
	return metrics, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

// sumByAttr returns the counter value for the data point carrying key=value.
func sumByAttr(t *testing.T, m metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is %T, want Sum[int64]", m.Name, m.Data)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

func gaugeValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	gauge, ok := m.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("metric %s is %T, want Gauge[int64]", m.Name, m.Data)
	}
	if len(gauge.DataPoints) != 1 {
		t.Fatalf("metric %s has %d data points, want 1", m.Name, len(gauge.DataPoints))
	}
	return gauge.DataPoints[0].Value
}

func TestNewMetrics_AllMetricsInitialized(t *testing.T) {
	meter := mockMeterProvider()
	metrics, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("expected no error creating metrics, got %v", err)
	}

	checks := map[string]bool{
		"httpRequestsTotal":         metrics.httpRequestsTotal != nil,
		"httpRequestDuration":       metrics.httpRequestDuration != nil,
		"fileEventsTotal":           metrics.fileEventsTotal != nil,
		"diffsTotal":                metrics.diffsTotal != nil,
		"diffDuration":              metrics.diffDuration != nil,
		"readFailuresTotal":         metrics.readFailuresTotal != nil,
		"watchedPaths":              metrics.watchedPaths != nil,
		"entities":                  metrics.entities != nil,
		"clusterConnectionsTotal":   metrics.clusterConnectionsTotal != nil,
		"clusterConnectionDuration": metrics.clusterConnectionDuration != nil,
	}
	for name, ok := range checks {
		if !ok {
			t.Errorf("expected %s to be initialized", name)
		}
	}
}

func TestMetrics_RecordFileEvent(t *testing.T) {
	metrics, reader := newCollectingMetrics(t)
	ctx := context.Background()

	metrics.RecordFileEvent(ctx, "add")
	metrics.RecordFileEvent(ctx, "add")
	metrics.RecordFileEvent(ctx, "unlink")

	m := collect(t, reader)["kubeconfig_sync_file_events_total"]
	if got := sumByAttr(t, m, attrEvent, "add"); got != 2 {
		t.Errorf("add events = %d, want 2", got)
	}
	if got := sumByAttr(t, m, attrEvent, "unlink"); got != 1 {
		t.Errorf("unlink events = %d, want 1", got)
	}
}

func TestMetrics_RecordDiff(t *testing.T) {
	metrics, reader := newCollectingMetrics(t)
	ctx := context.Background()

	metrics.RecordDiff(ctx, "success", 2*time.Millisecond)
	metrics.RecordDiff(ctx, "cleared", time.Millisecond)

	collected := collect(t, reader)
	if got := sumByAttr(t, collected["kubeconfig_sync_diffs_total"], attrResult, "success"); got != 1 {
		t.Errorf("successful diffs = %d, want 1", got)
	}
	if got := sumByAttr(t, collected["kubeconfig_sync_diffs_total"], attrResult, "cleared"); got != 1 {
		t.Errorf("cleared diffs = %d, want 1", got)
	}

	hist, ok := collected["kubeconfig_sync_diff_duration_seconds"].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("diff duration is %T, want Histogram[float64]", collected["kubeconfig_sync_diff_duration_seconds"].Data)
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Errorf("diff duration observations = %d, want 2", count)
	}
}

func TestMetrics_RecordReadFailure(t *testing.T) {
	metrics, reader := newCollectingMetrics(t)

	metrics.RecordReadFailure(context.Background(), "oversized")

	m := collect(t, reader)["kubeconfig_sync_read_failures_total"]
	if got := sumByAttr(t, m, attrReason, "oversized"); got != 1 {
		t.Errorf("oversized failures = %d, want 1", got)
	}
}

func TestMetrics_Gauges(t *testing.T) {
	metrics, reader := newCollectingMetrics(t)
	ctx := context.Background()

	metrics.SetWatchedPaths(ctx, 3)
	metrics.SetWatchedPaths(ctx, 2)
	metrics.SetEntities(ctx, 7)

	collected := collect(t, reader)
	if got := gaugeValue(t, collected["kubeconfig_sync_watched_paths"]); got != 2 {
		t.Errorf("watched paths = %d, want 2", got)
	}
	if got := gaugeValue(t, collected["kubeconfig_sync_entities"]); got != 7 {
		t.Errorf("entities = %d, want 7", got)
	}
}

func TestMetrics_RecordClusterConnect(t *testing.T) {
	metrics, reader := newCollectingMetrics(t)
	ctx := context.Background()

	metrics.RecordClusterConnect(ctx, StatusSuccess, 30*time.Millisecond)
	metrics.RecordClusterConnect(ctx, StatusError, time.Second)

	m := collect(t, reader)["kubeconfig_sync_cluster_connections_total"]
	if got := sumByAttr(t, m, attrStatus, StatusSuccess); got != 1 {
		t.Errorf("successful connections = %d, want 1", got)
	}
	if got := sumByAttr(t, m, attrStatus, StatusError); got != 1 {
		t.Errorf("failed connections = %d, want 1", got)
	}
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	metrics, reader := newCollectingMetrics(t)

	metrics.RecordHTTPRequest(context.Background(), "GET", "/entities", 200, 50*time.Millisecond)

	m := collect(t, reader)["http_requests_total"]
	if got := sumByAttr(t, m, attrPath, "/entities"); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestMetrics_NilMetrics(t *testing.T) {
	var metrics *Metrics
	ctx := context.Background()

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/metrics", 200, time.Millisecond)
	metrics.RecordFileEvent(ctx, "add")
	metrics.RecordDiff(ctx, "success", time.Millisecond)
	metrics.RecordReadFailure(ctx, "io")
	metrics.SetWatchedPaths(ctx, 1)
	metrics.SetEntities(ctx, 1)
	metrics.RecordClusterConnect(ctx, StatusSuccess, time.Millisecond)

	uninitialized := &Metrics{}
	uninitialized.RecordFileEvent(ctx, "add")
	uninitialized.SetEntities(ctx, 1)
}

func TestMetricConstants(t *testing.T) {
	if StatusSuccess != "success" {
		t.Errorf("StatusSuccess = %q, want success", StatusSuccess)
	}
	if StatusError != "error" {
		t.Errorf("StatusError = %q, want error", StatusError)
	}
}

func TestMetrics_ConcurrentRecording(t *testing.T) {
	metrics, reader := newCollectingMetrics(t)
	ctx := context.Background()

	const goroutines = 20
	const iterations = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				metrics.RecordFileEvent(ctx, "change")
				metrics.RecordDiff(ctx, "success", time.Millisecond)
				metrics.SetEntities(ctx, j)
			}
		}()
	}
	wg.Wait()

	m := collect(t, reader)["kubeconfig_sync_file_events_total"]
	if got := sumByAttr(t, m, attrEvent, "change"); got != goroutines*iterations {
		t.Errorf("change events = %d, want %d", got, goroutines*iterations)
	}
}
