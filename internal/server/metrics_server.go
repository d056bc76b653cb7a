package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/giantswarm/kubeconfig-sync/internal/instrumentation"
	"github.com/giantswarm/kubeconfig-sync/internal/server/middleware"
)

// DefaultMetricsAddr is the default listen address of the MetricsServer.
const DefaultMetricsAddr = "127.0.0.1:9090"

// MetricsServerConfig configures a MetricsServer.
type MetricsServerConfig struct {
	// Addr is the listen address (default: 127.0.0.1:9090)
	Addr string

	// InstrumentationProvider serves /metrics. Required.
	InstrumentationProvider *instrumentation.Provider

	// Health serves /healthz, /readyz and /healthz/detailed. A HealthChecker
	// without dependencies is used when nil.
	Health *HealthChecker

	// Entities serves /entities when set.
	Entities EntityLister

	Logger *slog.Logger
}

// MetricsServer serves metrics, health probes and the entity catalog over
// HTTP.
type MetricsServer struct {
	server *http.Server
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewMetricsServer builds a MetricsServer from config.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	if config.InstrumentationProvider == nil {
		return nil, fmt.Errorf("instrumentation provider is required")
	}
	if config.Addr == "" {
		config.Addr = DefaultMetricsAddr
	}
	if config.Health == nil {
		config.Health = NewHealthChecker(WithInstrumentation(config.InstrumentationProvider))
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle(config.InstrumentationProvider.Config().PrometheusEndpoint, config.InstrumentationProvider.Handler())
	config.Health.RegisterHealthEndpoints(mux)
	if config.Entities != nil {
		mux.Handle("/entities", EntitiesHandler(config.Entities))
		mux.Handle("/entities/{uid}", EntityHandler(config.Entities))
	}

	var handler http.Handler = mux
	handler = middleware.AllowMethods(http.MethodGet, http.MethodHead)(handler)
	handler = middleware.SecurityHeaders()(handler)
	handler = middleware.HTTPMetrics(config.InstrumentationProvider)(handler)

	return &MetricsServer{
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: config.Logger,
	}, nil
}

// Start listens on the configured address and serves until Shutdown. It
// returns nil after a graceful shutdown.
func (s *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *MetricsServer) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Status server listening", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the address the server listens on, or the configured address
// before Start.
func (s *MetricsServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Shutdown gracefully stops the server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
