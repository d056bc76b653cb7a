package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/giantswarm/kubeconfig-sync/internal/catalog"
	"github.com/giantswarm/kubeconfig-sync/internal/cluster"
	"github.com/giantswarm/kubeconfig-sync/internal/logging"
)

// Output formats accepted by --output.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// maxParallelConnects bounds concurrent connection checks in list --connect.
const maxParallelConnects = 8

type listOptions struct {
	config         RunConfig
	wait           time.Duration
	output         string
	connect        bool
	connectTimeout time.Duration
}

// newListCmd creates the Cobra command that syncs once and prints the
// resulting catalog.
func newListCmd() *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the clusters found in the synced kubeconfigs",
		Long: `Sync the default folder and every path in the preferences file once,
wait for the files to be read and print the resulting cluster entities.

With --connect every cluster is contacted: its phase reflects whether the
API server answered, and reachable clusters report their version and the
namespaces the context user can see.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadRunEnvVars(cmd, &opts.config)
			if err := opts.config.Validate(); err != nil {
				return err
			}
			switch opts.output {
			case outputTable, outputJSON, outputYAML:
			default:
				return fmt.Errorf("unsupported output format %q, use %s, %s or %s", opts.output, outputTable, outputJSON, outputYAML)
			}
			return runList(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	addSyncFlags(cmd, &opts.config)
	cmd.Flags().DurationVar(&opts.wait, "wait", 3*time.Second, "How long to wait for kubeconfigs to be read")
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputTable, "Output format: table, json or yaml")
	cmd.Flags().BoolVar(&opts.connect, "connect", false, "Connect to every cluster and report its phase")
	cmd.Flags().DurationVar(&opts.connectTimeout, "connect-timeout", 10*time.Second, "Timeout for each cluster connection with --connect")
	return cmd
}

func runList(ctx context.Context, out io.Writer, opts listOptions) error {
	eng := newEngine(opts.config, logger, nil)
	if err := eng.prefs.Load(); err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}

	eng.manager.StartSync()
	defer eng.manager.StopSync()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(opts.wait):
	}

	entities := eng.registry.Items()
	if opts.connect {
		entities = connectAll(ctx, eng.clusters, entities, opts.connectTimeout)
	}
	return printEntities(out, opts.output, entities)
}

// connectAll connects the cluster behind every entity and returns the
// entities rebuilt from the resulting cluster state.
func connectAll(ctx context.Context, clusters *cluster.Store, entities []catalog.Entity, timeout time.Duration) []catalog.Entity {
	result := make([]catalog.Entity, len(entities))
	copy(result, entities)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelConnects)
	for i, entity := range entities {
		c, ok := clusters.GetByID(entity.Metadata.UID)
		if !ok {
			continue
		}
		g.Go(func() error {
			connectCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			if err := c.Connect(connectCtx); err != nil {
				logger.Debug("Cluster did not answer",
					logging.Context(entity.Spec.KubeconfigContext), logging.ClusterID(c.ID()), logging.Err(err))
			} else if err := c.Refresh(connectCtx); err != nil {
				logger.Debug("Failed to list namespaces",
					logging.Context(entity.Spec.KubeconfigContext), logging.ClusterID(c.ID()), logging.Err(err))
			}
			refreshed := catalog.NewClusterEntity(c.Info())
			refreshed.Metadata.Labels = maps.Clone(entity.Metadata.Labels)
			refreshed.Status.Version = c.ServerVersion()
			refreshed.Status.Namespaces = c.AccessibleNamespaces()
			result[i] = refreshed
			return nil
		})
	}
	_ = g.Wait()
	return result
}

func printEntities(out io.Writer, format string, entities []catalog.Entity) error {
	if entities == nil {
		entities = []catalog.Entity{}
	}

	switch format {
	case outputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entities)
	case outputYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(entities); err != nil {
			return err
		}
		return enc.Close()
	default:
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "NAME\tPHASE\tVERSION\tAPI SERVER\tFILE")
		for _, e := range entities {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Metadata.Name, e.Status.Phase,
				orDash(e.Status.Version), e.Spec.APIURL, orDash(e.Metadata.Labels[catalog.LabelFile]))
		}
		return tw.Flush()
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
