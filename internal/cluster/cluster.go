package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/giantswarm/kubeconfig-sync/internal/catalog"
	"github.com/giantswarm/kubeconfig-sync/internal/instrumentation"
	"github.com/giantswarm/kubeconfig-sync/internal/kubeconfig"
	"github.com/giantswarm/kubeconfig-sync/internal/logging"
)

// Status is the connection state of a cluster.
type Status string

// Cluster connection states.
const (
	StatusDisconnected Status = catalog.PhaseDisconnected
	StatusConnected    Status = catalog.PhaseConnected
	StatusOffline      Status = catalog.PhaseOffline
)

// ClientFactory builds a Kubernetes client for a REST configuration.
type ClientFactory func(config *rest.Config) (kubernetes.Interface, error)

// DefaultClientFactory builds a real clientset.
func DefaultClientFactory(config *rest.Config) (kubernetes.Interface, error) {
	return kubernetes.NewForConfig(config)
}

// MetricsRecorder records cluster connection attempts.
type MetricsRecorder interface {
	RecordClusterConnect(ctx context.Context, status string, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) RecordClusterConnect(context.Context, string, time.Duration) {}

// Cluster is a Kubernetes cluster described by one kubeconfig context.
type Cluster struct {
	id string

	mu            sync.RWMutex
	model         kubeconfig.ContextModel
	apiURL        string
	status        Status
	client        kubernetes.Interface
	serverVersion string
	namespaces    []string

	connectGroup  singleflight.Group
	clientFactory ClientFactory
	metrics       MetricsRecorder
	logger        *slog.Logger
}

// newCluster validates the model's API URL and builds a disconnected cluster.
func newCluster(id string, model kubeconfig.ContextModel, factory ClientFactory, metrics MetricsRecorder, logger *slog.Logger) (*Cluster, error) {
	apiURL, err := APIURLFor(model)
	if err != nil {
		return nil, err
	}
	if factory == nil {
		factory = DefaultClientFactory
	}
	if metrics == nil {
		metrics = noopMetricsRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cluster{
		id:            id,
		model:         model,
		apiURL:        apiURL,
		status:        StatusDisconnected,
		clientFactory: factory,
		metrics:       metrics,
		logger:        logger.With(logging.ClusterID(id), logging.Context(model.ContextName)),
	}, nil
}

// APIURLFor returns the normalized API server URL of a context model, or an
// error wrapping ErrNoAPIURL when the server is missing or not an absolute
// http(s) URL.
func APIURLFor(model kubeconfig.ContextModel) (string, error) {
	if model.Server == "" {
		return "", fmt.Errorf("%w: context %q has no server", ErrNoAPIURL, model.ContextName)
	}
	u, err := url.Parse(model.Server)
	if err != nil {
		return "", fmt.Errorf("%w: context %q: %v", ErrNoAPIURL, model.ContextName, err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", fmt.Errorf("%w: context %q: server must be an absolute http(s) URL", ErrNoAPIURL, model.ContextName)
	}
	return u.String(), nil
}

// ID returns the stable cluster identifier.
func (c *Cluster) ID() string {
	return c.id
}

// Model returns the current context model.
func (c *Cluster) Model() kubeconfig.ContextModel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// APIURL returns the API server URL.
func (c *Cluster) APIURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiURL
}

// Status returns the connection status.
func (c *Cluster) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// ServerVersion returns the git version reported by the API server on the
// last successful Connect.
func (c *Cluster) ServerVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverVersion
}

// AccessibleNamespaces returns the namespaces found by the last Refresh.
func (c *Cluster) AccessibleNamespaces() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.namespaces...)
}

// Info returns the fields the catalog entity is built from.
func (c *Cluster) Info() catalog.ClusterInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return catalog.ClusterInfo{
		ID:             c.id,
		Name:           c.model.ContextName,
		KubeconfigPath: c.model.KubeconfigPath,
		ContextName:    c.model.ContextName,
		APIURL:         c.apiURL,
		Phase:          string(c.status),
	}
}

// UpdateModel replaces the context model. An identical model is a no-op. If
// the API server changes while connected, the existing client is dropped.
func (c *Cluster) UpdateModel(model kubeconfig.ContextModel) error {
	apiURL, err := APIURLFor(model)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.model.Equal(model) {
		return nil
	}
	serverChanged := apiURL != c.apiURL
	c.model = model
	c.apiURL = apiURL

	if serverChanged && c.client != nil {
		c.logger.Info("API server changed, dropping connection", logging.Host(apiURL))
		c.disconnectLocked()
	}
	return nil
}

// Connect builds a client and checks that the API server answers. Concurrent
// calls share a single attempt.
func (c *Cluster) Connect(ctx context.Context) error {
	ctx, span := instrumentation.StartClusterSpan(ctx, "connect", c.id,
		attribute.String(instrumentation.SpanAttrContext, c.Model().ContextName))
	defer span.End()

	ch := c.connectGroup.DoChan("connect", func() (interface{}, error) {
		start := time.Now()
		err := c.connect()
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		c.metrics.RecordClusterConnect(context.WithoutCancel(ctx), status, time.Since(start))
		return nil, err
	})

	select {
	case <-ctx.Done():
		instrumentation.SetSpanError(span, ctx.Err())
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			instrumentation.SetSpanError(span, res.Err)
			return res.Err
		}
		instrumentation.SetSpanSuccess(span)
		return nil
	}
}

func (c *Cluster) connect() error {
	model := c.Model()

	restConfig, err := model.RESTConfig()
	if err != nil {
		c.setOffline()
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	client, err := c.clientFactory(restConfig)
	if err != nil {
		c.setOffline()
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	version, err := client.Discovery().ServerVersion()
	if err != nil {
		c.setOffline()
		c.logger.Warn("Cluster unreachable", logging.Host(restConfig.Host), logging.SanitizedErr(err))
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	c.mu.Lock()
	c.client = client
	c.status = StatusConnected
	c.serverVersion = version.GitVersion
	c.mu.Unlock()

	c.logger.Debug("Cluster connected", logging.Host(restConfig.Host), "version", version.GitVersion)
	return nil
}

// Refresh lists the namespaces visible to the context user. When listing is
// forbidden, the context's default namespace is used instead.
func (c *Cluster) Refresh(ctx context.Context) error {
	c.mu.RLock()
	client := c.client
	defaultNamespace := c.model.Namespace
	c.mu.RUnlock()

	if client == nil {
		return ErrNotConnected
	}

	ctx, span := instrumentation.StartClusterSpan(ctx, "refresh", c.id)
	defer span.End()

	list, err := client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	var namespaces []string
	switch {
	case err == nil:
		for _, ns := range list.Items {
			namespaces = append(namespaces, ns.Name)
		}
		sort.Strings(namespaces)
	case apierrors.IsForbidden(err) && defaultNamespace != "":
		namespaces = []string{defaultNamespace}
	default:
		instrumentation.SetSpanError(span, err)
		return fmt.Errorf("failed to list namespaces: %w", err)
	}

	c.mu.Lock()
	c.namespaces = namespaces
	c.mu.Unlock()
	span.SetAttributes(attribute.Int("k8s.namespace_count", len(namespaces)))
	instrumentation.SetSpanSuccess(span)
	return nil
}

// Disconnect drops the client and resets the connection state. It is safe to
// call on a disconnected cluster.
func (c *Cluster) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusDisconnected && c.client == nil {
		return
	}
	c.disconnectLocked()
	c.logger.Debug("Cluster disconnected")
}

func (c *Cluster) disconnectLocked() {
	c.client = nil
	c.status = StatusDisconnected
	c.serverVersion = ""
	c.namespaces = nil
}

func (c *Cluster) setOffline() {
	c.mu.Lock()
	c.client = nil
	c.status = StatusOffline
	c.mu.Unlock()
}
