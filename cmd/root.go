package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/kubeconfig-sync/internal/logging"
)

const envLogLevel = "KUBECONFIG_SYNC_LOG_LEVEL"

var (
	logLevel  string
	logFormat string
	debugMode bool

	// logger is configured from the persistent flags before any command runs.
	logger = slog.Default()
)

// rootCmd represents the base command for the kubeconfig-sync application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "kubeconfig-sync",
	Short: "Keep a cluster catalog in sync with kubeconfig files",
	Long: `kubeconfig-sync watches kubeconfig files and folders, reconciles the
contexts they contain into a live set of Kubernetes clusters and publishes
those clusters as catalog entities.

When run without subcommands, it starts the sync daemon (equivalent to 'kubeconfig-sync run').`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configureLogging(cmd)
	},
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "kubeconfig-sync version %s\n" .Version}}`)

	// If no subcommand is provided, run the sync daemon by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "run")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newPathsCmd())

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error (can also be set via KUBECONFIG_SYNC_LOG_LEVEL env var)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatText, "Log format: text or json")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging (shorthand for --log-level=debug)")
}

// configureLogging builds the process logger from the persistent flags.
// Logs go to stderr so command output on stdout stays machine readable.
func configureLogging(cmd *cobra.Command) error {
	levelName := logLevel
	if !flagChanged(cmd, "log-level") {
		if env := os.Getenv(envLogLevel); env != "" {
			levelName = env
		}
	}
	if debugMode {
		levelName = "debug"
	}

	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}

	logger = logging.NewLogger(cmd.ErrOrStderr(), level, logFormat)
	slog.SetDefault(logger)
	return nil
}

// flagChanged reports whether the named local or persistent flag was set on
// the command line.
func flagChanged(cmd *cobra.Command, name string) bool {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f.Changed
	}
	if f := cmd.InheritedFlags().Lookup(name); f != nil {
		return f.Changed
	}
	return false
}
