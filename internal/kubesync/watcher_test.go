package kubesync

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kubeconfig-sync/internal/catalog"
)

const (
	testWindow  = 50 * time.Millisecond
	waitTimeout = 5 * time.Second
	waitTick    = 20 * time.Millisecond
)

func contextNames(entities []catalog.Entity) []string {
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, e.Spec.KubeconfigContext)
	}
	sort.Strings(names)
	return names
}

func startTestWatcher(t *testing.T, path string, differ *Differ, opts ...WatcherOption) *Watcher {
	t.Helper()
	opts = append([]WatcherOption{WithStabilizationWindow(testWindow)}, opts...)
	w := newWatcher(path, differ, opts...)
	w.start()
	t.Cleanup(w.Stop)
	return w
}

func eventuallyContexts(t *testing.T, src *catalog.Source, want ...string) {
	t.Helper()
	want = append([]string{}, want...)
	sort.Strings(want)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, contextNames(src.Get()))
	}, waitTimeout, waitTick, "expected contexts %v", want)
}

func TestWatcher_FolderSync(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "existing.yaml", []byte(kubeconfigWith("existing")))

	store := newFakeClusterStore()
	w := startTestWatcher(t, dir, NewDiffer(store))
	src := w.Source()

	eventuallyContexts(t, src, "existing")

	added := writeTestFile(t, dir, "added.yaml", []byte(kubeconfigWith("added-a", "added-b")))
	eventuallyContexts(t, src, "added-a", "added-b", "existing")

	require.NoError(t, os.WriteFile(added, []byte(kubeconfigWith("added-a")), 0o600))
	eventuallyContexts(t, src, "added-a", "existing")
	assert.Equal(t, 1, store.get(ClusterID(added, "added-b")).Disconnects())

	require.NoError(t, os.Remove(added))
	eventuallyContexts(t, src, "existing")

	// Unlinking drops the file's entries without tearing down its clusters.
	assert.Equal(t, 0, store.get(ClusterID(added, "added-a")).Disconnects())
	_, tracked := w.sources.Get(added)
	assert.False(t, tracked)
}

func TestWatcher_FolderSyncIgnoresGlobs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"x.lock", "x.swp", ".DS_Store"} {
		writeTestFile(t, dir, name, []byte(kubeconfigWith("ignored-"+name)))
	}
	writeTestFile(t, dir, "config", []byte(kubeconfigWith("visible")))

	w := startTestWatcher(t, dir, NewDiffer(newFakeClusterStore()))
	eventuallyContexts(t, w.Source(), "visible")

	writeTestFile(t, dir, "extra.yml.lock", []byte(kubeconfigWith("extra")))
	assert.Never(t, func() bool {
		return len(w.Source().Get()) != 1
	}, 5*testWindow, waitTick)

	for _, name := range []string{"x.lock", "x.swp", ".DS_Store", "extra.yml.lock"} {
		_, ok := w.rootSource(filepath.Join(dir, name))
		assert.False(t, ok, name)
	}
}

func TestWatcher_FolderSyncSkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(nested, 0o750))
	writeTestFile(t, nested, "config", []byte(kubeconfigWith("nested")))
	writeTestFile(t, dir, "config", []byte(kubeconfigWith("top")))

	w := startTestWatcher(t, dir, NewDiffer(newFakeClusterStore()))
	eventuallyContexts(t, w.Source(), "top")

	_, ok := w.rootSource(nested)
	assert.False(t, ok)
}

func TestWatcher_FileSync(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "config", []byte(kubeconfigWith("ctx-a", "ctx-b")))
	writeTestFile(t, dir, "sibling", []byte(kubeconfigWith("sibling")))

	store := newFakeClusterStore()
	w := startTestWatcher(t, path, NewDiffer(store))
	eventuallyContexts(t, w.Source(), "ctx-a", "ctx-b")

	src, ok := w.rootSource(path)
	require.True(t, ok)
	entryA, _ := src.Get("ctx-a")
	entryB, _ := src.Get("ctx-b")
	assert.Equal(t, ClusterID(path, "ctx-a"), entryA.Cluster.ID())
	assert.Equal(t, ClusterID(path, "ctx-b"), entryB.Cluster.ID())

	require.NoError(t, os.WriteFile(path, []byte(kubeconfigWith("ctx-a")), 0o600))
	eventuallyContexts(t, w.Source(), "ctx-a")
	assert.Equal(t, 1, store.get(entryB.Cluster.ID()).Disconnects())
	assert.Equal(t, 0, store.get(entryA.Cluster.ID()).Disconnects())
}

func TestWatcher_FileSyncSeesAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "config", []byte(kubeconfigWith("before")))

	w := startTestWatcher(t, path, NewDiffer(newFakeClusterStore()))
	eventuallyContexts(t, w.Source(), "before")

	tmp := writeTestFile(t, dir, ".config.tmp", []byte(kubeconfigWith("after")))
	require.NoError(t, os.Rename(tmp, path))
	eventuallyContexts(t, w.Source(), "after")
}

func TestWatcher_OversizedFileIsNeverRead(t *testing.T) {
	dir := t.TempDir()
	content := []byte(kubeconfigWith("big"))
	padding := bytes.Repeat([]byte("# padding\n"), int(FolderSyncMaxSize)/10)
	big := writeTestFile(t, dir, "big.yaml", append(content, padding...))
	writeTestFile(t, dir, "small.yaml", []byte(kubeconfigWith("small")))

	var mu sync.Mutex
	var readPaths []string
	read := func(ctx context.Context, path string) ([]byte, error) {
		mu.Lock()
		readPaths = append(readPaths, path)
		mu.Unlock()
		return readFile(ctx, path)
	}

	metrics := newFakeMetrics()
	w := startTestWatcher(t, dir, NewDiffer(newFakeClusterStore()), withReadFunc(read), WithWatcherMetrics(metrics))
	eventuallyContexts(t, w.Source(), "small")

	src, ok := w.rootSource(big)
	require.True(t, ok)
	assert.Equal(t, 0, src.Len())
	assert.Equal(t, []string{ReasonOversized}, metrics.failures())

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, readPaths, big)
}

func TestWatcher_CheckSize(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "config", bytes.Repeat([]byte("x"), 64))
	info, err := os.Stat(path)
	require.NoError(t, err)

	w := newWatcher(dir, NewDiffer(newFakeClusterStore()))

	w.maxSize = 65
	assert.NoError(t, w.checkSize(path, info))

	w.maxSize = 64
	err = w.checkSize(path, info)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Equal(t, ReasonOversized, readFailureReason(err))
}

func TestWatcher_DecodeErrorClearsSource(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "config", []byte(kubeconfigWith("ctx-a")))

	w := startTestWatcher(t, dir, NewDiffer(newFakeClusterStore()))
	eventuallyContexts(t, w.Source(), "ctx-a")

	require.NoError(t, os.WriteFile(path, append([]byte(kubeconfigWith("ctx-a")), 0xff, 0xfe), 0o600))
	eventuallyContexts(t, w.Source())
}

func TestWatcher_MalformedFileDoesNotAffectOthers(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "good.yaml", []byte(kubeconfigWith("good")))
	bad := writeTestFile(t, dir, "bad.yaml", []byte(kubeconfigWith("bad")))

	w := startTestWatcher(t, dir, NewDiffer(newFakeClusterStore()))
	eventuallyContexts(t, w.Source(), "bad", "good")

	require.NoError(t, os.WriteFile(bad, []byte("contexts: [[["), 0o600))
	eventuallyContexts(t, w.Source(), "good")
}

func TestWatcher_LastChangeWins(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "config", []byte("placeholder"))

	var calls atomic.Int32
	gate := make(chan struct{})
	read := func(ctx context.Context, _ string) ([]byte, error) {
		switch calls.Add(1) {
		case 1:
			return []byte(kubeconfigWith("initial")), nil
		case 2:
			<-gate
			return []byte(kubeconfigWith("stale")), nil
		default:
			return []byte(kubeconfigWith("fresh")), nil
		}
	}

	// File system events never settle within the test; changes are driven
	// by hand.
	w := newWatcher(path, NewDiffer(newFakeClusterStore()), WithStabilizationWindow(time.Hour), withReadFunc(read))
	w.start()
	t.Cleanup(w.Stop)
	t.Cleanup(func() {
		select {
		case <-gate:
		default:
			close(gate)
		}
	})

	eventuallyContexts(t, w.Source(), "initial")

	w.settled <- path
	require.Eventually(t, func() bool { return calls.Load() == 2 }, waitTimeout, waitTick)
	w.settled <- path

	eventuallyContexts(t, w.Source(), "fresh")

	close(gate)
	assert.Never(t, func() bool {
		return assert.ObjectsAreEqual([]string{"stale"}, contextNames(w.Source().Get()))
	}, 300*time.Millisecond, waitTick)
	assert.Equal(t, []string{"fresh"}, contextNames(w.Source().Get()))
}

func TestWatcher_MissingPath(t *testing.T) {
	w := newWatcher(filepath.Join(t.TempDir(), "missing"), NewDiffer(newFakeClusterStore()))
	w.start()

	assert.Empty(t, w.Source().Get())
	w.Stop()
	w.Stop()
}

func TestWatcher_StopIsFinal(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "config", []byte(kubeconfigWith("ctx-a")))

	src, stop := Watch(dir, NewDiffer(newFakeClusterStore()), WithStabilizationWindow(testWindow))
	eventuallyContexts(t, src, "ctx-a")

	stop()
	stop()

	writeTestFile(t, dir, "late.yaml", []byte(kubeconfigWith("late")))
	assert.Never(t, func() bool {
		return len(src.Get()) != 1
	}, 5*testWindow, waitTick)
}

func TestWatcher_CoalescesWritesWithinWindow(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "config", []byte(kubeconfigWith("v0")))

	var mu sync.Mutex
	var reads [][]byte
	read := func(ctx context.Context, path string) ([]byte, error) {
		data, err := readFile(ctx, path)
		mu.Lock()
		reads = append(reads, data)
		mu.Unlock()
		return data, err
	}
	readCount := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(reads)
	}

	window := 300 * time.Millisecond
	w := newWatcher(path, NewDiffer(newFakeClusterStore()), WithStabilizationWindow(window), withReadFunc(read))
	w.start()
	t.Cleanup(w.Stop)

	eventuallyContexts(t, w.Source(), "v0")
	require.Equal(t, 1, readCount())

	for _, name := range []string{"v1", "v2", "v3", "v4"} {
		require.NoError(t, os.WriteFile(path, []byte(kubeconfigWith(name)), 0o600))
	}

	eventuallyContexts(t, w.Source(), "v4")
	assert.Never(t, func() bool { return readCount() > 2 }, 2*window, waitTick)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reads, 2)
	assert.Equal(t, kubeconfigWith("v4"), string(reads[1]))
}

func TestWatcher_KeepsRunningAfterWatchError(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "config", []byte(kubeconfigWith("before")))

	metrics := newFakeMetrics()
	w := startTestWatcher(t, dir, NewDiffer(newFakeClusterStore()), WithWatcherMetrics(metrics))
	eventuallyContexts(t, w.Source(), "before")

	w.fsw.Errors <- errors.New("queue overflow")
	require.Eventually(t, func() bool {
		return metrics.eventCount(EventError) == 1
	}, waitTimeout, waitTick)

	writeTestFile(t, dir, "later.yaml", []byte(kubeconfigWith("later")))
	eventuallyContexts(t, w.Source(), "before", "later")
}

func TestWatcher_FileSyncFollowsSymlink(t *testing.T) {
	targetDir := t.TempDir()
	target := writeTestFile(t, targetDir, "real-config", []byte(kubeconfigWith("before")))

	link := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.Symlink(target, link))

	w := startTestWatcher(t, link, NewDiffer(newFakeClusterStore()))
	eventuallyContexts(t, w.Source(), "before")

	require.NoError(t, os.WriteFile(target, []byte(kubeconfigWith("after")), 0o600))
	eventuallyContexts(t, w.Source(), "after")

	src, ok := w.rootSource(link)
	require.True(t, ok)
	entry, ok := src.Get("after")
	require.True(t, ok)
	assert.Equal(t, ClusterID(link, "after"), entry.Cluster.ID())

	// A target replaced by rename is still followed.
	tmp := writeTestFile(t, targetDir, ".real-config.tmp", []byte(kubeconfigWith("replaced")))
	require.NoError(t, os.Rename(tmp, target))
	eventuallyContexts(t, w.Source(), "replaced")
}

func TestWatcher_FolderSyncFollowsSymlinkedFiles(t *testing.T) {
	targetDir := t.TempDir()
	target := writeTestFile(t, targetDir, "shared.yaml", []byte(kubeconfigWith("before")))
	writeTestFile(t, targetDir, "unrelated.yaml", []byte(kubeconfigWith("unrelated")))

	dir := t.TempDir()
	link := filepath.Join(dir, "shared.yaml")
	require.NoError(t, os.Symlink(target, link))

	w := startTestWatcher(t, dir, NewDiffer(newFakeClusterStore()))
	eventuallyContexts(t, w.Source(), "before")

	require.NoError(t, os.WriteFile(target, []byte(kubeconfigWith("after")), 0o600))
	eventuallyContexts(t, w.Source(), "after")

	require.NoError(t, os.Remove(link))
	eventuallyContexts(t, w.Source())
	require.Eventually(t, func() bool {
		_, tracked := w.rootSource(link)
		return !tracked
	}, waitTimeout, waitTick)

	// Once the link is gone, its target directory is no longer followed.
	require.NoError(t, os.WriteFile(target, []byte(kubeconfigWith("orphan")), 0o600))
	assert.Never(t, func() bool {
		return len(w.Source().Get()) != 0
	}, 5*testWindow, waitTick)
}
