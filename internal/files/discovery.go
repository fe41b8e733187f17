// Package files discovers Lean source files under a project root using glob
// patterns with ignore rules.
package files

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultSourcePatterns match Lean source files.
var DefaultSourcePatterns = []string{"**/*.lean"}

// DefaultIgnorePatterns cover build output and dependency checkouts that
// contain .lean files we must not trace.
var DefaultIgnorePatterns = []string{
	".git/**",
	".lake/**",
	"lake-packages/**",
	"build/**",
	"docbuild/**",
}

// compiledPattern holds both the pattern string and compiled glob
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// Discovery walks a project tree and returns the source files to trace,
// applying source and ignore glob patterns against root-relative paths.
type Discovery struct {
	rootDir        string
	sourcePatterns []compiledPattern
	ignorePatterns []compiledPattern
}

// NewDiscovery compiles the given patterns. Nil slices select the defaults.
func NewDiscovery(rootDir string, sourcePatterns, ignorePatterns []string) (*Discovery, error) {
	if sourcePatterns == nil {
		sourcePatterns = DefaultSourcePatterns
	}
	if ignorePatterns == nil {
		ignorePatterns = DefaultIgnorePatterns
	}

	d := &Discovery{rootDir: rootDir}
	var err error
	if d.sourcePatterns, err = compilePatterns(sourcePatterns); err != nil {
		return nil, err
	}
	if d.ignorePatterns, err = compilePatterns(ignorePatterns); err != nil {
		return nil, err
	}
	return d, nil
}

func compilePatterns(patterns []string) ([]compiledPattern, error) {
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, compiledPattern{pattern: pattern, glob: g})
	}
	return compiled, nil
}

// Discover returns root-relative paths of matching files in sorted order, so
// runs over the same tree visit files deterministically.
func (d *Discovery) Discover() ([]string, error) {
	var found []string

	err := filepath.WalkDir(d.rootDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(d.rootDir, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if entry.IsDir() {
			if relPath != "." && d.shouldIgnore(relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.shouldIgnore(relPath) {
			return nil
		}
		if matchesAnyPattern(relPath, d.sourcePatterns) {
			found = append(found, relPath)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(found)
	return found, nil
}

// Ignored reports whether a root-relative path falls under an ignore
// pattern. Used by the watcher to filter events without a full walk.
func (d *Discovery) Ignored(relPath string) bool {
	return d.shouldIgnore(relPath)
}

// MatchesSource reports whether a root-relative path matches a source
// pattern.
func (d *Discovery) MatchesSource(relPath string) bool {
	return matchesAnyPattern(relPath, d.sourcePatterns)
}

// shouldIgnore checks if a path matches any ignore pattern.
func (d *Discovery) shouldIgnore(relPath string) bool {
	if matchesAnyPattern(relPath, d.ignorePatterns) {
		return true
	}

	// A directory "build" should match the pattern "build/**" so the walk
	// can skip it without descending.
	return matchesAnyPattern(relPath+"/**", d.ignorePatterns)
}

// matchesAnyPattern checks if a path matches any of the given patterns.
func matchesAnyPattern(path string, patterns []compiledPattern) bool {
	for _, cp := range patterns {
		if cp.glob.Match(path) {
			return true
		}
	}

	// "**/*.lean" should match "Basic.lean" at the root as well as nested
	// files, so root-level paths are retried without the **/ prefix.
	if !strings.Contains(path, "/") {
		for _, cp := range patterns {
			if simplified, ok := strings.CutPrefix(cp.pattern, "**/"); ok {
				if g, err := glob.Compile(simplified, '/'); err == nil && g.Match(path) {
					return true
				}
			}
		}
	}

	return false
}
