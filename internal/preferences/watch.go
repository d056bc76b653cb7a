package preferences

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/giantswarm/kubeconfig-sync/internal/logging"
)

// Watch reloads the preferences file whenever it changes on disk, until ctx
// is cancelled. Reload failures are logged and the previous entries are
// kept.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create preferences watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}
	// Watch the directory so atomic replaces are seen.
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	name := filepath.Base(s.path)
	timer := time.NewTimer(s.reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name || event.Op == fsnotify.Chmod {
				continue
			}
			timer.Reset(s.reloadDelay)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Preferences watcher error", logging.Err(err))
		case <-timer.C:
			if err := s.Load(); err != nil {
				s.logger.Warn("Failed to reload preferences", logging.FilePath(s.path), logging.Err(err))
				continue
			}
			s.logger.Info("Preferences reloaded", logging.FilePath(s.path), logging.Count(s.entries.Len()))
		}
	}
}
