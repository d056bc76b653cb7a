// Package catalog defines the entities published for discovered clusters
// and the Registry that aggregates live entity sources.
package catalog
