package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/kubeconfig-sync/internal/catalog"
	"github.com/giantswarm/kubeconfig-sync/internal/instrumentation"
	"github.com/giantswarm/kubeconfig-sync/internal/logging"
	"github.com/giantswarm/kubeconfig-sync/internal/server"
)

// shutdownTimeout bounds the graceful shutdown of the status server.
const shutdownTimeout = 10 * time.Second

// newRunCmd creates the Cobra command for the sync daemon.
func newRunCmd() *cobra.Command {
	var config RunConfig

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the kubeconfig sync daemon",
		Long: `Run the kubeconfig sync daemon until interrupted.

The default folder (~/.kubeconfig-sync/kubeconfigs) and every path listed in
the preferences file are watched. Files are re-read once they stop changing,
and the clusters they define are published to the catalog. Edits to the
preferences file are picked up without a restart.

The status server exposes /metrics, /healthz, /readyz, /healthz/detailed,
/entities and /entities/{uid}. Metrics and tracing are configured via INSTRUMENTATION_ENABLED,
METRICS_EXPORTER, TRACING_EXPORTER and OTEL_EXPORTER_OTLP_ENDPOINT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadRunEnvVars(cmd, &config)
			if err := config.Validate(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runSync(ctx, config)
		},
	}

	addSyncFlags(cmd, &config)
	addMetricsFlags(cmd, &config)
	return cmd
}

// runSync runs the sync engine and the status server until ctx is done.
func runSync(ctx context.Context, config RunConfig) error {
	instrumentationConfig := instrumentation.DefaultConfig()
	instrumentationConfig.ServiceVersion = rootCmd.Version
	provider, err := instrumentation.NewProvider(ctx, instrumentationConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("Error during instrumentation shutdown", logging.Err(err))
		}
	}()
	if provider.Enabled() {
		logger.Info("OpenTelemetry instrumentation enabled",
			"metrics_exporter", instrumentationConfig.MetricsExporter,
			"tracing_exporter", instrumentationConfig.TracingExporter)
	}

	eng := newEngine(config, logger, provider.Metrics())
	if err := eng.prefs.Load(); err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}

	eng.manager.StartSync()
	defer eng.manager.StopSync()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := eng.prefs.Watch(gctx); err != nil {
			logger.Warn("Preferences are not watched, restart to pick up edits",
				logging.FilePath(eng.prefs.Path()), logging.Err(err))
		}
		return nil
	})

	g.Go(func() error {
		logEntityChanges(gctx, eng.registry, logger)
		return nil
	})

	if config.MetricsAddr != "" {
		health := server.NewHealthChecker(
			server.WithSyncStatus(eng.manager),
			server.WithInstrumentation(provider),
			server.WithVersion(rootCmd.Version),
		)
		metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    config.MetricsAddr,
			InstrumentationProvider: provider,
			Health:                  health,
			Entities:                eng.registry,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create status server: %w", err)
		}

		g.Go(func() error {
			if err := metricsServer.Start(); err != nil {
				return fmt.Errorf("status server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			health.SetReady(false)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	logger.Info("Kubeconfig sync running",
		logging.FilePath(eng.prefs.Path()),
		logging.SyncPath(eng.manager.DefaultDir()),
		logging.Count(len(eng.manager.WatchedPaths())))

	err = g.Wait()
	logger.Info("Shutting down kubeconfig sync")
	return err
}

// logEntityChanges logs the catalog size whenever it changes, until ctx is
// done. Registry notifications only signal; the catalog is read here.
func logEntityChanges(ctx context.Context, registry *catalog.Registry, logger *slog.Logger) {
	changed := make(chan struct{}, 1)
	unsubscribe := registry.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()
	changed <- struct{}{}

	last := -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-changed:
			if n := len(registry.Items()); n != last {
				logger.Info("Catalog updated", logging.Count(n))
				last = n
			}
		}
	}
}
