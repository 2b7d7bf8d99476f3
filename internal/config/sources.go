package config

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// ExpandSources expands the filesSrc glob patterns, including recursive "**",
// into concrete paths. Results keep pattern order and are de-duplicated.
// Patterns that match nothing contribute nothing; the archiver reports an
// empty result.
func (c *Config) ExpandSources() ([]string, error) {
	return ExpandGlobs(c.FilesSrc)
}

// ExpandGlobs expands each pattern against the filesystem.
func ExpandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePathPattern(pattern) {
			return nil, &ConfigError{Field: "filesSrc", Reason: "invalid glob pattern " + pattern}
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, &ConfigError{Field: "filesSrc", Reason: err.Error()}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	return files, nil
}

// WatchRoots returns the static directory prefix of every pattern, the
// directories a watcher must observe to see new matches.
func WatchRoots(patterns []string) []string {
	seen := make(map[string]struct{})
	var roots []string
	for _, pattern := range patterns {
		base, _ := doublestar.SplitPattern(pattern)
		if _, ok := seen[base]; ok {
			continue
		}
		seen[base] = struct{}{}
		roots = append(roots, base)
	}
	return roots
}

// MatchesSource reports whether path is matched by one of the filesSrc patterns.
func (c *Config) MatchesSource(path string) bool {
	path = filepath.Clean(path)
	for _, pattern := range c.FilesSrc {
		if ok, _ := doublestar.PathMatch(filepath.Clean(pattern), path); ok {
			return true
		}
	}
	return false
}
