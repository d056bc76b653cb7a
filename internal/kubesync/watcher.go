package kubesync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/giantswarm/kubeconfig-sync/internal/catalog"
	"github.com/giantswarm/kubeconfig-sync/internal/logging"
	"github.com/giantswarm/kubeconfig-sync/internal/observable"
)

const (
	// DefaultStabilizationWindow is how long a file must stay unchanged
	// before it is read.
	DefaultStabilizationWindow = time.Second

	// FolderSyncMaxSize is the read ceiling for files found in a synced
	// folder.
	FolderSyncMaxSize int64 = 2 * 1024 * 1024

	// FileSyncMaxSize is the read ceiling for a single synced file. It is
	// larger because such files often embed certificates.
	FileSyncMaxSize int64 = 32 * 1024 * 1024
)

type syncMode int

const (
	folderSync syncMode = iota
	fileSync
)

func (m syncMode) String() string {
	if m == fileSync {
		return "file"
	}
	return "folder"
}

// WatcherOption is a functional option for configuring Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger for the Watcher.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithWatcherMetrics sets the metrics recorder for the Watcher.
func WithWatcherMetrics(metrics MetricsRecorder) WatcherOption {
	return func(w *Watcher) {
		if metrics != nil {
			w.metrics = metrics
		}
	}
}

// WithStabilizationWindow sets how long writes to a file are coalesced
// before it is read.
func WithStabilizationWindow(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.stabilization = d
		}
	}
}

// WithIgnoreMatcher replaces the folder sync ignore patterns.
func WithIgnoreMatcher(m *IgnoreMatcher) WatcherOption {
	return func(w *Watcher) {
		w.ignore = m
	}
}

// withReadFunc replaces the file reader.
func withReadFunc(fn readFunc) WatcherOption {
	return func(w *Watcher) {
		w.read = fn
	}
}

// fileState is the per-file bookkeeping owned by the event loop.
type fileState struct {
	source      *RootSource
	unsubscribe func()
	generation  uint64
	cancel      context.CancelFunc
}

type readResult struct {
	path       string
	generation uint64
	data       []byte
	err        error
}

// Watcher follows one synced path and keeps a RootSource per kubeconfig file
// found there.
//
// All file events, timers and read completions are handled by a single event
// loop goroutine, so RootSources are only mutated from that goroutine.
type Watcher struct {
	path          string
	differ        *Differ
	logger        *slog.Logger
	metrics       MetricsRecorder
	stabilization time.Duration
	ignore        *IgnoreMatcher
	read          readFunc

	mode    syncMode
	maxSize int64

	sources *observable.Map[string, *RootSource]
	derived *catalog.Source

	ctx      context.Context
	cancel   context.CancelFunc
	fsw      *fsnotify.Watcher
	watchDir string

	settled chan string
	results chan readResult
	stopCh  chan struct{}
	done    chan struct{}
	reads   sync.WaitGroup

	// Owned by the event loop.
	timers map[string]*time.Timer
	files  map[string]*fileState

	// links maps synced paths that are symlinks to their targets, and
	// linkDirs counts the links per target directory added to fsw.
	links    map[string]string
	linkDirs map[string]int

	stopOnce sync.Once
}

// Watch starts watching path and returns the live list of entities found
// there together with the function that stops the watch.
//
// A path that cannot be stat'ed is logged and yields a source that stays
// empty. The stop function blocks until all pending timers and reads have
// been released and is safe to call more than once.
func Watch(path string, differ *Differ, opts ...WatcherOption) (*catalog.Source, func()) {
	w := newWatcher(path, differ, opts...)
	w.start()
	return w.derived, w.Stop
}

func newWatcher(path string, differ *Differ, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:          filepath.Clean(path),
		differ:        differ,
		logger:        slog.Default(),
		metrics:       noopMetricsRecorder{},
		stabilization: DefaultStabilizationWindow,
		ignore:        mustIgnoreMatcher(DefaultIgnoreGlobs...),
		read:          readFile,
		sources:       observable.NewMap[string, *RootSource](),
		settled:       make(chan string),
		results:       make(chan readResult),
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
		timers:        make(map[string]*time.Timer),
		files:         make(map[string]*fileState),
		links:         make(map[string]string),
		linkDirs:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.WithSyncPath(w.logger, w.path)
	w.ctx, w.cancel = context.WithCancel(context.Background())

	w.derived = observable.NewComputed(w.entities)
	observable.InvalidateOn(w.derived, w.sources)
	return w
}

// Source returns the live list of entities found under the watched path.
func (w *Watcher) Source() *catalog.Source {
	return w.derived
}

func (w *Watcher) start() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Warn("Cannot watch sync path", logging.Err(err))
		close(w.done)
		return
	}

	watchDir := w.path
	if info.IsDir() {
		w.mode = folderSync
		w.maxSize = FolderSyncMaxSize
	} else {
		w.mode = fileSync
		w.maxSize = FileSyncMaxSize
		// Editors that save by replacing the file are only visible from the
		// parent directory.
		watchDir = filepath.Dir(w.path)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("Failed to create file watcher", logging.Err(err))
		close(w.done)
		return
	}
	if err := fsw.Add(watchDir); err != nil {
		w.logger.Warn("Failed to watch directory", logging.FilePath(watchDir), logging.Err(err))
		_ = fsw.Close()
		close(w.done)
		return
	}

	w.fsw = fsw
	w.watchDir = watchDir
	w.logger.Debug("Watching sync path", "mode", w.mode.String())

	go w.loop()
}

// Stop ends the watch. Pending stabilization timers are dropped, in-flight
// reads are cancelled and waited for, and the file system watch is closed.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		<-w.done
		w.cancel()
		w.reads.Wait()
		if w.fsw != nil {
			_ = w.fsw.Close()
		}
		w.logger.Debug("Stopped watching sync path")
	})
}

func (w *Watcher) loop() {
	defer close(w.done)
	defer w.teardown()

	w.scan()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.metrics.RecordFileEvent(w.ctx, EventError)
			w.logger.Warn("File watcher error", logging.Event(EventError), logging.Err(err))

		case path := <-w.settled:
			delete(w.timers, path)
			w.handleSettled(path)

		case res := <-w.results:
			w.handleResult(res)
		}
	}
}

// teardown releases timers and reads owned by the loop.
func (w *Watcher) teardown() {
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	for _, state := range w.files {
		if state.cancel != nil {
			state.cancel()
			state.cancel = nil
		}
	}
}

// scan treats files already present as added.
func (w *Watcher) scan() {
	if w.mode == fileSync {
		w.handleSettled(w.path)
		return
	}

	entries, err := os.ReadDir(w.path)
	if err != nil {
		w.logger.Warn("Failed to list sync folder", logging.Err(err))
		return
	}
	for _, entry := range entries {
		path := filepath.Join(w.path, entry.Name())
		if w.isIgnored(path) {
			continue
		}
		w.handleSettled(path)
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	path := filepath.Clean(event.Name)

	for synced, target := range w.links {
		if target == path {
			w.schedule(synced)
		}
	}

	switch w.mode {
	case fileSync:
		if path != w.path {
			return
		}
	case folderSync:
		if filepath.Dir(path) != w.path {
			return
		}
		if w.isIgnored(path) {
			return
		}
	}

	w.schedule(path)
}

// followLink records the target of path when path is a symlink, and watches
// the target's directory so edits there are seen as changes of path. A
// dangling link keeps being followed so a recreated target is picked up.
func (w *Watcher) followLink(path string) {
	target := ""
	if info, err := os.Lstat(path); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		dest, err := os.Readlink(path)
		if err != nil {
			w.logger.Warn("Failed to read symlink", logging.FilePath(path), logging.Err(err))
		} else {
			if !filepath.IsAbs(dest) {
				dest = filepath.Join(filepath.Dir(path), dest)
			}
			target = filepath.Clean(dest)
		}
	}

	if current, ok := w.links[path]; ok {
		if current == target {
			return
		}
		w.forgetLink(path)
	}
	if target == "" {
		return
	}

	dir := filepath.Dir(target)
	if w.linkDirs[dir] == 0 && dir != w.watchDir {
		if err := w.fsw.Add(dir); err != nil {
			w.logger.Warn("Failed to watch symlink target directory", logging.FilePath(target), logging.Err(err))
			return
		}
	}
	w.linkDirs[dir]++
	w.links[path] = target
	w.logger.Debug("Following symlink", logging.FilePath(path), "target", target)
}

func (w *Watcher) forgetLink(path string) {
	target, ok := w.links[path]
	if !ok {
		return
	}
	delete(w.links, path)

	dir := filepath.Dir(target)
	w.linkDirs[dir]--
	if w.linkDirs[dir] > 0 {
		return
	}
	delete(w.linkDirs, dir)
	if dir != w.watchDir {
		_ = w.fsw.Remove(dir)
	}
}

// schedule (re)starts the stabilization timer for path.
func (w *Watcher) schedule(path string) {
	if t, ok := w.timers[path]; ok {
		t.Reset(w.stabilization)
		return
	}
	w.timers[path] = time.AfterFunc(w.stabilization, func() {
		select {
		case w.settled <- path:
		case <-w.stopCh:
		}
	})
}

func (w *Watcher) isIgnored(path string) bool {
	if w.mode != folderSync || !w.ignore.Match(path) {
		return false
	}
	w.metrics.RecordFileEvent(w.ctx, EventIgnored)
	w.logger.Debug("Ignoring file", logging.FilePath(path), logging.Event(EventIgnored))
	return true
}

// handleSettled classifies a quiet path as add, change or unlink by looking
// at the file system and at what is already tracked.
func (w *Watcher) handleSettled(path string) {
	_, tracked := w.files[path]
	info, err := os.Stat(path)

	if err == nil && info.IsDir() {
		w.forgetLink(path)
	} else {
		w.followLink(path)
	}

	switch {
	case err == nil && info.IsDir():
		// Only immediate child files are synced.
		if tracked {
			w.unlink(path)
		}
	case err == nil && !tracked:
		w.add(path, info)
	case err == nil:
		w.change(path, info)
	case errors.Is(err, fs.ErrNotExist):
		if tracked {
			w.unlink(path)
		}
	default:
		w.metrics.RecordFileEvent(w.ctx, EventError)
		w.logger.Warn("Failed to stat file", logging.FilePath(path), logging.Err(err))
	}
}

func (w *Watcher) add(path string, info os.FileInfo) {
	w.metrics.RecordFileEvent(w.ctx, EventAdd)
	w.logger.Debug("File added", logging.FilePath(path), logging.Event(EventAdd))

	source := NewRootSource()
	state := &fileState{
		source:      source,
		unsubscribe: observable.InvalidateOn(w.derived, source),
	}
	w.files[path] = state
	w.sources.Set(path, source)

	w.startRead(path, state, info)
}

func (w *Watcher) change(path string, info os.FileInfo) {
	w.metrics.RecordFileEvent(w.ctx, EventChange)
	w.logger.Debug("File changed", logging.FilePath(path), logging.Event(EventChange))

	w.startRead(path, w.files[path], info)
}

// unlink drops the file's RootSource. Its clusters are left as they are.
func (w *Watcher) unlink(path string) {
	w.metrics.RecordFileEvent(w.ctx, EventUnlink)
	w.logger.Debug("File removed", logging.FilePath(path), logging.Event(EventUnlink))

	state := w.files[path]
	if state.cancel != nil {
		state.cancel()
	}
	state.unsubscribe()
	delete(w.files, path)
	w.sources.Delete(path)
}

// startRead cancels any read in flight for path and starts a new one. Only
// the result of the newest read is applied.
func (w *Watcher) startRead(path string, state *fileState, info os.FileInfo) {
	if state.cancel != nil {
		state.cancel()
		state.cancel = nil
	}
	state.generation++

	if err := w.checkSize(path, info); err != nil {
		w.metrics.RecordReadFailure(w.ctx, readFailureReason(err))
		w.logger.Warn("File too large to sync, ignoring its contents",
			logging.FilePath(path), logging.Err(err))
		state.source.Clear()
		return
	}

	ctx, cancel := context.WithCancel(w.ctx)
	state.cancel = cancel
	generation := state.generation

	w.reads.Add(1)
	go func() {
		defer w.reads.Done()
		data, err := w.read(ctx, path)
		select {
		case w.results <- readResult{path: path, generation: generation, data: data, err: err}:
		case <-w.stopCh:
		}
	}()
}

// checkSize rejects files whose size reached the ceiling of the sync mode.
func (w *Watcher) checkSize(path string, info os.FileInfo) error {
	if info.Size() < w.maxSize {
		return nil
	}
	return &ReadError{
		Path:   path,
		Reason: ReasonOversized,
		Err:    fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, info.Size(), w.maxSize),
	}
}

func (w *Watcher) handleResult(res readResult) {
	state, ok := w.files[res.path]
	if !ok || state.generation != res.generation {
		w.logger.Debug("Discarding superseded read", logging.FilePath(res.path))
		return
	}
	if state.cancel != nil {
		state.cancel()
		state.cancel = nil
	}

	if res.err != nil {
		if errors.Is(res.err, context.Canceled) {
			return
		}
		w.metrics.RecordReadFailure(w.ctx, readFailureReason(res.err))
		w.logger.Warn("Failed to read kubeconfig, clearing its clusters",
			logging.FilePath(res.path), logging.Err(res.err))
		state.source.Clear()
		return
	}

	w.differ.ComputeDiff(w.ctx, res.data, state.source, res.path)
}

// entities flattens every RootSource, ordered by file path.
func (w *Watcher) entities() []catalog.Entity {
	snapshot := w.sources.Snapshot()
	paths := make([]string, 0, len(snapshot))
	for path := range snapshot {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var entities []catalog.Entity
	for _, path := range paths {
		entities = append(entities, sourceEntities(snapshot[path])...)
	}
	return entities
}

// rootSource returns the RootSource for path, if tracked.
func (w *Watcher) rootSource(path string) (*RootSource, bool) {
	return w.sources.Get(path)
}
