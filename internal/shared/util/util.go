package util

import (
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"
)

// CanonicalPath returns the absolute, cleaned, symlink-resolved form of p.
// Paths that cannot be resolved (for example deleted files) keep their
// absolute cleaned form so add and remove events agree on identity.
func CanonicalPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	dir, base := filepath.Split(abs)
	if resolvedDir, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(resolvedDir, base)
	}
	return abs
}

// SortedStringKeys returns the map's keys in sorted order.
func SortedStringKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// CompileGlobs compiles every pattern, failing on the first invalid one.
func CompileGlobs(patterns []string) ([]glob.Glob, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, g)
	}
	return compiled, nil
}

// MatchesAny reports whether the base name of path matches one of globs.
func MatchesAny(globs []glob.Glob, path string) bool {
	base := filepath.Base(path)
	for _, g := range globs {
		if g.Match(base) {
			return true
		}
	}
	return false
}
