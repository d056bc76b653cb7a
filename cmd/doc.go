// Package cmd provides the command-line interface for kubeconfig-sync.
//
// This package implements a Cobra-based CLI with multiple subcommands:
//   - run: Runs the sync daemon (default behavior when no subcommand is provided)
//   - list: Syncs once and prints the cluster catalog
//   - paths: Adds, removes and lists the synced kubeconfig files and folders
//   - version: Displays the application version
//   - self-update: Updates the binary to the latest version from GitHub releases
//
// Command Structure:
//
//	kubeconfig-sync [flags]                     # Runs the sync daemon (default)
//	kubeconfig-sync run [flags]                 # Explicitly runs the sync daemon
//	kubeconfig-sync list -o json --connect      # Prints clusters and their phase
//	kubeconfig-sync paths add ~/work/kubeconfigs
//	kubeconfig-sync paths remove ~/.kube
//	kubeconfig-sync version                     # Shows version information
//	kubeconfig-sync self-update                 # Updates to latest release
//
// Flags that are not given on the command line fall back to the
// KUBECONFIG_SYNC_* environment variables.
package cmd
