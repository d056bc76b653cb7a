package kubesync

import (
	"fmt"
	"path/filepath"

	"github.com/gobwas/glob"
)

// DefaultIgnoreGlobs are the file name patterns skipped in folder sync:
// lock files, editor swap files and macOS folder metadata.
var DefaultIgnoreGlobs = []string{"*.lock", "*.swp", ".DS_Store"}

// IgnoreMatcher matches file base names against glob patterns.
type IgnoreMatcher struct {
	patterns []string
	globs    []glob.Glob
}

// NewIgnoreMatcher compiles patterns.
func NewIgnoreMatcher(patterns ...string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{patterns: append([]string(nil), patterns...)}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// mustIgnoreMatcher compiles patterns known to be valid.
func mustIgnoreMatcher(patterns ...string) *IgnoreMatcher {
	m, err := NewIgnoreMatcher(patterns...)
	if err != nil {
		panic(err)
	}
	return m
}

// Match reports whether the base name of path matches any pattern.
func (m *IgnoreMatcher) Match(path string) bool {
	if m == nil {
		return false
	}
	name := filepath.Base(path)
	for _, g := range m.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Patterns returns the source patterns.
func (m *IgnoreMatcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}
