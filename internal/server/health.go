package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/giantswarm/kubeconfig-sync/internal/instrumentation"
)

// SyncStatus reports the state of the sync engine.
type SyncStatus interface {
	IsSyncing() bool
	WatchedPaths() []string
}

// HealthChecker provides health check endpoints for Kubernetes probes.
type HealthChecker struct {
	// ready indicates whether the server is ready to receive traffic
	ready atomic.Bool

	sync      SyncStatus
	provider  *instrumentation.Provider
	version   string
	startTime time.Time
}

// HealthOption is a functional option for configuring HealthChecker.
type HealthOption func(*HealthChecker)

// WithSyncStatus makes readiness depend on the sync engine running.
func WithSyncStatus(status SyncStatus) HealthOption {
	return func(h *HealthChecker) {
		h.sync = status
	}
}

// WithInstrumentation reports the instrumentation provider state.
func WithInstrumentation(provider *instrumentation.Provider) HealthOption {
	return func(h *HealthChecker) {
		h.provider = provider
	}
}

// WithVersion sets the version reported by the health endpoints.
func WithVersion(version string) HealthOption {
	return func(h *HealthChecker) {
		h.version = version
	}
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(opts ...HealthOption) *HealthChecker {
	h := &HealthChecker{
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	// Server starts as ready by default
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Version string            `json:"version,omitempty"`
}

// DetailedHealthResponse provides health information including sync state.
type DetailedHealthResponse struct {
	Status          string                      `json:"status"`
	Version         string                      `json:"version,omitempty"`
	Uptime          string                      `json:"uptime"`
	Sync            *SyncHealthStatus           `json:"sync,omitempty"`
	Instrumentation *InstrumentationHealthCheck `json:"instrumentation,omitempty"`
}

// SyncHealthStatus describes the sync engine.
type SyncHealthStatus struct {
	Syncing      bool     `json:"syncing"`
	WatchedPaths []string `json:"watched_paths"`
}

// InstrumentationHealthCheck provides health information about instrumentation.
type InstrumentationHealthCheck struct {
	Enabled         bool   `json:"enabled"`
	MetricsExporter string `json:"metrics_exporter,omitempty"`
	TracingExporter string `json:"tracing_exporter,omitempty"`
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
// Liveness probes indicate whether the process should be restarted.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: h.version,
		})
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
// The server is ready while it is marked ready and the sync engine runs.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]string)
		allOk := true

		if !h.ready.Load() {
			checks["ready"] = "not ready"
			allOk = false
		} else {
			checks["ready"] = "ok"
		}

		if h.sync != nil {
			if h.sync.IsSyncing() {
				checks["sync"] = "ok"
			} else {
				checks["sync"] = "stopped"
				allOk = false
			}
		}

		if h.provider != nil {
			if h.provider.Enabled() {
				checks["instrumentation"] = "ok"
			} else {
				checks["instrumentation"] = "disabled"
			}
		}

		response := HealthResponse{Checks: checks}
		status := http.StatusOK
		if allOk {
			response.Status = "ok"
		} else {
			response.Status = "not ready"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	})
}

// DetailedHealthHandler returns an HTTP handler for the /healthz/detailed
// endpoint.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := DetailedHealthResponse{
			Status:          "ok",
			Version:         h.version,
			Uptime:          time.Since(h.startTime).Truncate(time.Second).String(),
			Instrumentation: h.getInstrumentationStatus(),
		}

		if h.sync != nil {
			paths := h.sync.WatchedPaths()
			if paths == nil {
				paths = []string{}
			}
			response.Sync = &SyncHealthStatus{
				Syncing:      h.sync.IsSyncing(),
				WatchedPaths: paths,
			}
		}

		status := http.StatusOK
		if !h.ready.Load() {
			response.Status = "not ready"
			status = http.StatusServiceUnavailable
		} else if response.Sync != nil && !response.Sync.Syncing {
			response.Status = "sync stopped"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	})
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

func (h *HealthChecker) getInstrumentationStatus() *InstrumentationHealthCheck {
	if h.provider == nil {
		return &InstrumentationHealthCheck{Enabled: false}
	}
	config := h.provider.Config()
	status := &InstrumentationHealthCheck{Enabled: h.provider.Enabled()}
	if status.Enabled {
		status.MetricsExporter = config.MetricsExporter
		status.TracingExporter = config.TracingExporter
	}
	return status
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
