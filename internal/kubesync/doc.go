// Package kubesync keeps catalog entities in step with kubeconfig files on
// disk.
//
// The package has three layers:
//
//   - The Differ reconciles the contexts of one kubeconfig file into a
//     RootSource, an observable map from context name to cluster and entity.
//     Cluster identity is derived from the file path and context name only, so
//     editing a context updates its cluster while renaming it creates a new
//     one and disconnects the old.
//   - A Watcher follows one synced path, either a folder (immediate children
//     only) or a single file. Writes are coalesced over a stabilization window
//     before the file is read, reads are cancelled when a newer event for the
//     same file arrives, and every file gets its own RootSource. The watcher
//     publishes the entities of all its RootSources as one derived source.
//   - The Manager runs one Watcher for the default kubeconfig directory and
//     one per configured sync entry, follows additions and removals of
//     entries, and registers the combined entities with the catalog.
//
// Failures are contained to the file they occur in: an unreadable,
// oversized, badly encoded or malformed file empties its own RootSource and
// leaves every other file alone.
package kubesync
