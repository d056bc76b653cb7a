package cmd

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdProperties(t *testing.T) {
	assert.Equal(t, "kubeconfig-sync", rootCmd.Use)
	assert.Equal(t, "Keep a cluster catalog in sync with kubeconfig files", rootCmd.Short)
	assert.Contains(t, rootCmd.Long, "kubeconfig")
	assert.Contains(t, rootCmd.Long, "kubeconfig-sync run")
	assert.True(t, rootCmd.SilenceUsage)
}

func TestSetVersion(t *testing.T) {
	originalVersion := rootCmd.Version
	defer func() {
		rootCmd.Version = originalVersion
	}()

	testVersion := "v1.2.3-test"
	SetVersion(testVersion)

	assert.Equal(t, testVersion, rootCmd.Version)
}

func TestRootCommandHasSubcommands(t *testing.T) {
	var foundCommands []string
	for _, cmd := range rootCmd.Commands() {
		foundCommands = append(foundCommands, cmd.Name())
	}

	for _, name := range []string{"version", "self-update", "run", "list", "paths"} {
		assert.Contains(t, foundCommands, name)
	}
}

func TestConfigureLogging(t *testing.T) {
	original := logger
	originalDefault := slog.Default()
	t.Cleanup(func() {
		logger = original
		slog.SetDefault(originalDefault)
		logLevel, logFormat, debugMode = "info", "text", false
	})

	newCmd := func() (*cobra.Command, *bytes.Buffer) {
		cmd := &cobra.Command{Use: "test"}
		cmd.Flags().String("log-level", "info", "")
		var buf bytes.Buffer
		cmd.SetErr(&buf)
		return cmd, &buf
	}

	tests := []struct {
		name      string
		level     string
		env       string
		debug     bool
		wantErr   bool
		wantDebug bool
		wantInfo  bool
	}{
		{name: "info by default", level: "info", wantInfo: true},
		{name: "debug flag wins", level: "error", debug: true, wantDebug: true, wantInfo: true},
		{name: "env applies when flag unset", level: "info", env: "warn"},
		{name: "invalid level", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envLogLevel, tt.env)
			logLevel, logFormat, debugMode = tt.level, "text", tt.debug

			cmd, buf := newCmd()
			err := configureLogging(cmd)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid --log-level")
				return
			}
			require.NoError(t, err)

			logger.Debug("debug message")
			logger.Info("info message")
			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("debug message")))
			assert.Equal(t, tt.wantInfo, bytes.Contains(buf.Bytes(), []byte("info message")))
		})
	}
}
