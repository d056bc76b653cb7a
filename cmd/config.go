package cmd

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/kubeconfig-sync/internal/kubesync"
	"github.com/giantswarm/kubeconfig-sync/internal/preferences"
	"github.com/giantswarm/kubeconfig-sync/internal/server"
)

// Environment variables read for flags that were not set explicitly.
const (
	envPreferences   = "KUBECONFIG_SYNC_PREFERENCES"
	envDefaultDir    = "KUBECONFIG_SYNC_DEFAULT_DIR"
	envMetricsAddr   = "KUBECONFIG_SYNC_METRICS_ADDR"
	envStabilization = "KUBECONFIG_SYNC_STABILIZATION"
)

// defaultStabilization is how long a file must stay unchanged before it is
// read.
const defaultStabilization = time.Second

// RunConfig holds the configuration shared by the sync commands.
type RunConfig struct {
	// PreferencesPath is the YAML file holding the sync entries.
	PreferencesPath string

	// DefaultDir is the folder that is always synced.
	DefaultDir string

	// MetricsAddr is the listen address of the status server. Empty
	// disables the server.
	MetricsAddr string

	// Stabilization is how long a file must be quiet before it is read.
	Stabilization time.Duration

	// IgnoreGlobs are file name patterns skipped in synced folders on top
	// of kubesync.DefaultIgnoreGlobs.
	IgnoreGlobs []string

	// ignore is compiled from IgnoreGlobs by Validate.
	ignore *kubesync.IgnoreMatcher
}

// Validate checks the configuration and expands ~ in paths.
func (c *RunConfig) Validate() error {
	if c.PreferencesPath == "" {
		return fmt.Errorf("preferences path is required")
	}
	if c.DefaultDir == "" {
		return fmt.Errorf("default kubeconfig directory is required")
	}
	if c.Stabilization < 0 {
		return fmt.Errorf("stabilization window must not be negative, got %s", c.Stabilization)
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return fmt.Errorf("invalid metrics address %q: %w", c.MetricsAddr, err)
		}
	}

	if len(c.IgnoreGlobs) > 0 {
		patterns := append(append([]string(nil), kubesync.DefaultIgnoreGlobs...), c.IgnoreGlobs...)
		matcher, err := kubesync.NewIgnoreMatcher(patterns...)
		if err != nil {
			return err
		}
		c.ignore = matcher
	}

	c.PreferencesPath = preferences.ExpandHome(c.PreferencesPath)
	c.DefaultDir = preferences.ExpandHome(c.DefaultDir)
	return nil
}

// addSyncFlags registers the flags every command that reads preferences or
// syncs kubeconfigs needs.
func addSyncFlags(cmd *cobra.Command, config *RunConfig) {
	cmd.Flags().StringVar(&config.PreferencesPath, "preferences", preferences.DefaultPath(), "Preferences file holding the synced paths (can also be set via KUBECONFIG_SYNC_PREFERENCES env var)")
	cmd.Flags().StringVar(&config.DefaultDir, "default-dir", preferences.DefaultKubeconfigDir(), "Folder that is always synced (can also be set via KUBECONFIG_SYNC_DEFAULT_DIR env var)")
	cmd.Flags().StringSliceVar(&config.IgnoreGlobs, "ignore", nil, "Additional file name globs skipped in synced folders, on top of *.lock, *.swp and .DS_Store")
	cmd.Flags().DurationVar(&config.Stabilization, "stabilization", defaultStabilization, "How long a file must stay unchanged before it is read (can also be set via KUBECONFIG_SYNC_STABILIZATION env var)")
}

// addMetricsFlags registers the status server flags.
func addMetricsFlags(cmd *cobra.Command, config *RunConfig) {
	cmd.Flags().StringVar(&config.MetricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Status server address serving /metrics, health probes and /entities, empty to disable (can also be set via KUBECONFIG_SYNC_METRICS_ADDR env var)")
}

// loadRunEnvVars loads environment variables into config for flags the user
// did not set explicitly.
func loadRunEnvVars(cmd *cobra.Command, config *RunConfig) {
	loadEnvIfUnset(cmd, "preferences", &config.PreferencesPath, envPreferences)
	loadEnvIfUnset(cmd, "default-dir", &config.DefaultDir, envDefaultDir)
	loadEnvIfUnset(cmd, "metrics-addr", &config.MetricsAddr, envMetricsAddr)

	if cmd.Flags().Lookup("stabilization") != nil && !cmd.Flags().Changed("stabilization") {
		if d, ok := parseDurationEnv(os.Getenv(envStabilization), envStabilization); ok {
			config.Stabilization = d
		}
	}
}

// loadEnvIfUnset overrides target with the environment variable when the
// flag exists on cmd and was not changed.
func loadEnvIfUnset(cmd *cobra.Command, flag string, target *string, envKey string) {
	if cmd.Flags().Lookup(flag) == nil || cmd.Flags().Changed(flag) {
		return
	}
	if v, ok := os.LookupEnv(envKey); ok {
		*target = v
	}
}

// parseDurationEnv parses a duration from an environment variable value.
// Returns the parsed duration and true if successful, or zero and false if parsing fails.
// Logs a warning if the value is present but invalid.
func parseDurationEnv(value, envName string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("Ignoring invalid duration", "env", envName, "value", value, "error", err)
		return 0, false
	}
	return d, true
}
