package cmd

import (
	"log/slog"

	"github.com/giantswarm/kubeconfig-sync/internal/catalog"
	"github.com/giantswarm/kubeconfig-sync/internal/cluster"
	"github.com/giantswarm/kubeconfig-sync/internal/instrumentation"
	"github.com/giantswarm/kubeconfig-sync/internal/kubesync"
	"github.com/giantswarm/kubeconfig-sync/internal/preferences"
)

// engine is the wired sync engine: preferences feed the manager, which
// reconciles kubeconfigs into the cluster store and publishes entities to the
// catalog registry.
type engine struct {
	prefs    *preferences.Store
	clusters *cluster.Store
	registry *catalog.Registry
	manager  *kubesync.Manager
}

// newEngine wires an idle engine. metrics may be nil.
func newEngine(config RunConfig, logger *slog.Logger, metrics *instrumentation.Metrics) *engine {
	storeOpts := []cluster.StoreOption{cluster.WithStoreLogger(logger)}
	differOpts := []kubesync.DifferOption{
		kubesync.WithDifferLogger(logger),
		kubesync.WithDefaultKubeconfigDir(config.DefaultDir),
	}
	managerOpts := []kubesync.ManagerOption{
		kubesync.WithManagerLogger(logger),
		kubesync.WithDefaultDir(config.DefaultDir),
	}
	if metrics != nil {
		storeOpts = append(storeOpts, cluster.WithMetrics(metrics))
		differOpts = append(differOpts, kubesync.WithDifferMetrics(metrics))
		managerOpts = append(managerOpts, kubesync.WithManagerMetrics(metrics))
	}
	if config.Stabilization > 0 {
		managerOpts = append(managerOpts, kubesync.WithWatcherOptions(kubesync.WithStabilizationWindow(config.Stabilization)))
	}
	if config.ignore != nil {
		logger.Debug("Using custom ignore globs", "patterns", config.ignore.Patterns())
		managerOpts = append(managerOpts, kubesync.WithWatcherOptions(kubesync.WithIgnoreMatcher(config.ignore)))
	}

	prefs := preferences.NewStore(config.PreferencesPath, preferences.WithStoreLogger(logger))
	clusters := cluster.NewStore(storeOpts...)
	registry := catalog.NewRegistry(catalog.WithRegistryLogger(logger))
	differ := kubesync.NewDiffer(kubesync.NewClusterStore(clusters), differOpts...)

	return &engine{
		prefs:    prefs,
		clusters: clusters,
		registry: registry,
		manager:  kubesync.NewManager(differ, registry, prefs.Entries(), managerOpts...),
	}
}
