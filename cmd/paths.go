package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/kubeconfig-sync/internal/preferences"
)

// newPathsCmd creates the command group that edits the synced paths in the
// preferences file. A running daemon picks the edits up on its own.
func newPathsCmd() *cobra.Command {
	var config RunConfig

	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Manage the kubeconfig files and folders that are synced",
	}
	cmd.PersistentFlags().StringVar(&config.PreferencesPath, "preferences", preferences.DefaultPath(), "Preferences file holding the synced paths (can also be set via KUBECONFIG_SYNC_PREFERENCES env var)")

	load := func(cmd *cobra.Command) (*preferences.Store, error) {
		path := config.PreferencesPath
		if v, ok := os.LookupEnv(envPreferences); ok && !flagChanged(cmd, "preferences") {
			path = v
		}
		store := preferences.NewStore(preferences.ExpandHome(path), preferences.WithStoreLogger(logger))
		if err := store.Load(); err != nil {
			return nil, fmt.Errorf("failed to load preferences: %w", err)
		}
		return store, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the synced paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := load(cmd)
			if err != nil {
				return err
			}
			for _, entry := range store.List() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), preferences.ShortenHome(entry.FilePath))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add PATH...",
		Short: "Start syncing kubeconfig files or folders",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := load(cmd)
			if err != nil {
				return err
			}
			for _, path := range args {
				entry, err := store.Add(preferences.SyncEntry{FilePath: path})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Syncing %s\n", preferences.ShortenHome(entry.FilePath))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove PATH...",
		Short: "Stop syncing kubeconfig files or folders",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := load(cmd)
			if err != nil {
				return err
			}
			for _, path := range args {
				removed, err := store.Remove(path)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("%s is not synced", path)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stopped syncing %s\n", path)
			}
			return nil
		},
	})

	return cmd
}
