package preferences

import (
	"os"
	"path/filepath"
	"strings"

	"k8s.io/client-go/util/homedir"
)

const (
	appDirName          = "kubeconfig-sync"
	preferencesFileName = "preferences.yaml"
)

// ExpandHome replaces a leading "~" in path with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path
	}
	home := homedir.HomeDir()
	if home == "" {
		return path
	}
	return filepath.Join(home, path[1:])
}

// NormalizePath expands "~" and returns a cleaned absolute path.
func NormalizePath(path string) (string, error) {
	abs, err := filepath.Abs(ExpandHome(strings.TrimSpace(path)))
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// DefaultPath returns the default preferences file location,
// $XDG_CONFIG_HOME/kubeconfig-sync/preferences.yaml or its platform
// equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(homedir.HomeDir(), ".config")
	}
	return filepath.Join(dir, appDirName, preferencesFileName)
}

// DefaultSyncPath is the entry used when no preferences file exists.
func DefaultSyncPath() string {
	return filepath.Join(homedir.HomeDir(), ".kube")
}

// DefaultKubeconfigDir is the directory that is always synced, regardless
// of the configured entries.
func DefaultKubeconfigDir() string {
	return filepath.Join(homedir.HomeDir(), "."+appDirName, "kubeconfigs")
}

// ShortenHome replaces a leading home directory in path with "~". Paths
// outside the home directory are returned unchanged.
func ShortenHome(path string) string {
	home := homedir.HomeDir()
	if home == "" {
		return path
	}
	return shortenHome(path, home)
}

func shortenHome(path, home string) string {
	home = filepath.Clean(home)
	clean := filepath.Clean(path)
	if clean == home {
		return "~"
	}
	rel, err := filepath.Rel(home, clean)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return "~" + string(filepath.Separator) + rel
}

// IsWithin reports whether path is dir itself or lies below it.
func IsWithin(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
