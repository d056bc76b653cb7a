package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testKubeconfig = `apiVersion: v1
kind: Config
clusters:
- name: alpha
  cluster:
    server: https://alpha.example.com
- name: beta
  cluster:
    server: https://beta.example.com
contexts:
- name: alpha
  context:
    cluster: alpha
    user: admin
- name: beta
  context:
    cluster: beta
    user: admin
users:
- name: admin
  user:
    token: test-token
`

// testConfig returns a RunConfig rooted in a fresh home directory. The
// preferences file does not exist, so only ~/.kube is synced besides the
// default folder.
func testConfig(t *testing.T) RunConfig {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	defaultDir := filepath.Join(home, ".kubeconfig-sync", "kubeconfigs")
	return RunConfig{
		PreferencesPath: filepath.Join(home, ".config", "kubeconfig-sync", "preferences.yaml"),
		DefaultDir:      defaultDir,
		Stabilization:   20 * time.Millisecond,
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}
