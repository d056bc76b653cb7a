package preferences

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/kubeconfig-sync/internal/logging"
	"github.com/giantswarm/kubeconfig-sync/internal/observable"
)

// ErrEmptyPath is returned when an entry has no file path.
var ErrEmptyPath = errors.New("sync entry has an empty file path")

// SyncEntry is one kubeconfig file or folder to sync.
type SyncEntry struct {
	FilePath string            `yaml:"filePath" json:"filePath"`
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

type fileFormat struct {
	SyncKubeconfigEntries []SyncEntry `yaml:"syncKubeconfigEntries"`
}

// Store holds the sync entries and persists them to a YAML file.
type Store struct {
	path    string
	entries *observable.Map[string, SyncEntry]

	// fileMu serializes Load and Save.
	fileMu sync.Mutex

	reloadDelay time.Duration
	logger      *slog.Logger
}

// StoreOption is a functional option for configuring Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger for the Store.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithReloadDelay sets how long Watch waits for writes to settle before
// reloading the file.
func WithReloadDelay(d time.Duration) StoreOption {
	return func(s *Store) {
		s.reloadDelay = d
	}
}

// NewStore creates a Store backed by the file at path. Nothing is read until
// Load is called.
func NewStore(path string, opts ...StoreOption) *Store {
	s := &Store{
		path:        path,
		entries:     observable.NewMap[string, SyncEntry](),
		reloadDelay: 500 * time.Millisecond,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Entries returns the live entry map keyed by normalized path.
func (s *Store) Entries() *observable.Map[string, SyncEntry] {
	return s.entries
}

// List returns the entries sorted by path.
func (s *Store) List() []SyncEntry {
	list := s.entries.Values()
	sort.Slice(list, func(i, j int) bool { return list[i].FilePath < list[j].FilePath })
	return list
}

// Load reads the backing file and applies its entries to the map. A missing
// file yields the default ~/.kube entry.
func (s *Store) Load() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("Preferences file not found, using defaults", logging.FilePath(s.path))
		return s.apply([]SyncEntry{{FilePath: DefaultSyncPath()}})
	}
	if err != nil {
		return fmt.Errorf("failed to read preferences: %w", err)
	}

	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse preferences %s: %w", s.path, err)
	}
	return s.apply(doc.SyncKubeconfigEntries)
}

// apply makes the map match entries, emitting only the differences.
func (s *Store) apply(entries []SyncEntry) error {
	desired := make(map[string]SyncEntry, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.FilePath) == "" {
			s.logger.Warn("Ignoring preference entry without a path")
			continue
		}
		key, err := NormalizePath(e.FilePath)
		if err != nil {
			return fmt.Errorf("invalid sync path %q: %w", e.FilePath, err)
		}
		e.FilePath = key
		desired[key] = e
	}

	for _, key := range s.entries.Keys() {
		if _, ok := desired[key]; !ok {
			s.entries.Delete(key)
		}
	}
	for key, e := range desired {
		if cur, ok := s.entries.Get(key); ok && maps.Equal(cur.Metadata, e.Metadata) {
			continue
		}
		s.entries.Set(key, e)
	}
	return nil
}

// Add inserts or replaces an entry and saves the file.
func (s *Store) Add(entry SyncEntry) (SyncEntry, error) {
	if strings.TrimSpace(entry.FilePath) == "" {
		return SyncEntry{}, ErrEmptyPath
	}
	key, err := NormalizePath(entry.FilePath)
	if err != nil {
		return SyncEntry{}, fmt.Errorf("invalid sync path %q: %w", entry.FilePath, err)
	}
	entry.FilePath = key
	s.entries.Set(key, entry)
	return entry, s.Save()
}

// Remove deletes the entry for path and saves the file. It reports whether
// an entry was removed.
func (s *Store) Remove(path string) (bool, error) {
	key, err := NormalizePath(path)
	if err != nil {
		return false, fmt.Errorf("invalid sync path %q: %w", path, err)
	}
	if !s.entries.Delete(key) {
		return false, nil
	}
	return true, s.Save()
}

// Save writes the current entries to the backing file.
func (s *Store) Save() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	data, err := yaml.Marshal(fileFormat{SyncKubeconfigEntries: s.List()})
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+preferencesFileName+".*")
	if err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}
