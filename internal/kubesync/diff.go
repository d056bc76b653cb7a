package kubesync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/kubeconfig-sync/internal/catalog"
	"github.com/giantswarm/kubeconfig-sync/internal/instrumentation"
	"github.com/giantswarm/kubeconfig-sync/internal/kubeconfig"
	"github.com/giantswarm/kubeconfig-sync/internal/logging"
	"github.com/giantswarm/kubeconfig-sync/internal/preferences"
)

// Differ reconciles kubeconfig contents into RootSources.
type Differ struct {
	clusters   ClusterStore
	defaultDir string
	logger     *slog.Logger
	metrics    MetricsRecorder
}

// DifferOption is a functional option for configuring Differ.
type DifferOption func(*Differ)

// WithDifferLogger sets the logger for the Differ.
func WithDifferLogger(logger *slog.Logger) DifferOption {
	return func(d *Differ) {
		d.logger = logger
	}
}

// WithDifferMetrics sets the metrics recorder for the Differ.
func WithDifferMetrics(metrics MetricsRecorder) DifferOption {
	return func(d *Differ) {
		if metrics != nil {
			d.metrics = metrics
		}
	}
}

// WithDefaultKubeconfigDir sets the directory whose files are published
// without a file label.
func WithDefaultKubeconfigDir(dir string) DifferOption {
	return func(d *Differ) {
		d.defaultDir = dir
	}
}

// NewDiffer creates a Differ that resolves clusters through clusters.
func NewDiffer(clusters ClusterStore, opts ...DifferOption) *Differ {
	d := &Differ{
		clusters:   clusters,
		defaultDir: preferences.DefaultKubeconfigDir(),
		logger:     slog.Default(),
		metrics:    noopMetricsRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ComputeDiff reconciles the contexts in contents into source, the
// RootSource of the kubeconfig at filePath.
//
// Contexts that disappeared are disconnected and removed, contexts that
// remain are updated in place and new contexts get a cluster looked up or
// created by ClusterID. Invalid contexts and contexts whose cluster cannot be
// created are logged and skipped. If the document cannot be parsed at all,
// source is cleared.
func (d *Differ) ComputeDiff(ctx context.Context, contents []byte, source *RootSource, filePath string) {
	start := time.Now()
	_, span := instrumentation.StartSpan(ctx, "kubesync.compute_diff",
		attribute.String(instrumentation.SpanAttrFilePath, filePath))
	defer span.End()

	logger := logging.WithOperation(d.logger, "kubesync.compute_diff").With(logging.FilePath(filePath))

	if err := d.computeDiff(contents, source, filePath, logger); err != nil {
		logger.Warn("Failed to reconcile kubeconfig, clearing its clusters", logging.Err(err))
		source.Clear()
		instrumentation.SetSpanError(span, err)
		d.metrics.RecordDiff(ctx, DiffResultCleared, time.Since(start))
		return
	}

	span.SetAttributes(attribute.Int(instrumentation.SpanAttrEntityCount, source.Len()))
	instrumentation.SetSpanSuccess(span)
	d.metrics.RecordDiff(ctx, DiffResultSuccess, time.Since(start))
}

func (d *Differ) computeDiff(contents []byte, source *RootSource, filePath string, logger *slog.Logger) error {
	result, err := kubeconfig.Parse(contents, filePath)
	if err != nil {
		return fmt.Errorf("failed to parse kubeconfig: %w", err)
	}

	for _, cerr := range result.Errors {
		logger.Warn("Skipping invalid context", logging.Context(cerr.ContextName), logging.Err(cerr.Err))
	}

	models := make(map[string]kubeconfig.ContextModel, len(result.Valid))
	for _, model := range result.Valid {
		models[model.ContextName] = model
	}

	existing := source.Snapshot()
	names := make([]string, 0, len(existing))
	for name := range existing {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry := existing[name]
		model, ok := models[name]
		if !ok {
			d.remove(source, name, entry)
			logger.Debug("Context removed", logging.Context(name), logging.ClusterID(entry.Cluster.ID()))
			continue
		}
		delete(models, name)

		if err := entry.Cluster.UpdateModel(model); err != nil {
			logger.Warn("Context can no longer be used, removing it",
				logging.Context(name), logging.ClusterID(entry.Cluster.ID()), logging.Err(err))
			d.remove(source, name, entry)
			continue
		}
		source.Set(name, SourceEntry{Cluster: entry.Cluster, Entity: d.entityFor(entry.Cluster, filePath)})
	}

	added := make([]string, 0, len(models))
	for name := range models {
		added = append(added, name)
	}
	sort.Strings(added)

	for _, name := range added {
		model := models[name]
		id := ClusterID(filePath, name)

		c, err := d.lookupOrCreate(id, model)
		if err != nil {
			logger.Warn("Failed to create cluster for context",
				logging.Context(name), logging.ClusterID(id), logging.Err(err))
			continue
		}
		source.Set(name, SourceEntry{Cluster: c, Entity: d.entityFor(c, filePath)})
		logger.Debug("Context added", logging.Context(name), logging.ClusterID(id), logging.Host(c.APIURL()))
	}

	return nil
}

// lookupOrCreate returns the cluster registered under id, updated to model,
// or creates it.
func (d *Differ) lookupOrCreate(id string, model kubeconfig.ContextModel) (Cluster, error) {
	if d.clusters.IsDeleting(id) {
		return nil, fmt.Errorf("%w: %s", ErrClusterDeleting, id)
	}
	if c, ok := d.clusters.GetClusterByID(id); ok {
		if err := c.UpdateModel(model); err != nil {
			return nil, err
		}
		return c, nil
	}

	c, err := d.clusters.CreateCluster(id, model)
	if err != nil {
		return nil, err
	}
	if c.APIURL() == "" {
		return nil, fmt.Errorf("cluster %s has no API URL", id)
	}
	return c, nil
}

// remove clears the deletion marker before disconnecting, so a context that
// reappears under the same name is not taken for one still being deleted.
func (d *Differ) remove(source *RootSource, name string, entry SourceEntry) {
	d.clusters.ClearAsDeleting(entry.Cluster.ID())
	entry.Cluster.Disconnect()
	source.Delete(name)
}

// ReleaseCluster tears down the cluster behind id once no watched path
// publishes it. Until it is gone, contexts resolving to id are skipped.
func (d *Differ) ReleaseCluster(id string) {
	d.clusters.MarkDeleting(id)
	if d.clusters.RemoveCluster(id) {
		d.logger.Debug("Cluster released", logging.ClusterID(id))
	}
}

func (d *Differ) entityFor(c Cluster, filePath string) catalog.Entity {
	entity := catalog.NewClusterEntity(c.Info())
	if d.defaultDir == "" || !preferences.IsWithin(d.defaultDir, filePath) {
		entity = entity.WithLabel(catalog.LabelFile, preferences.ShortenHome(filePath))
	}
	return entity
}
