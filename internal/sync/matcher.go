// Package sync implements the code-sync engine: project-root
// discovery, a file-selection pass, archive creation, and the
// direct/indirect transport choice to a leased instance. File
// selection is a gitignore-style include/exclude matcher (include
// wins on conflict, matched by path-prefix segment) built from the
// default excludes plus caller-supplied patterns; .gitignore files are
// not read.
package sync

import (
	"os"
	"path/filepath"
	"strings"
)

// vcsMarkers are checked, in order, before falling back to a
// package-manifest marker; finding a package manifest without a VCS
// marker present still resolves the root, but logs a warning (the
// caller of DiscoverRoot decides whether to surface that warning).
var vcsMarkers = []string{".git", ".hg", ".jj"}

var manifestMarkers = []string{
	"pyproject.toml", "requirements.txt", "setup.py", "Pipfile", "go.mod", "package.json",
}

// DiscoverRoot walks upward from start looking for a VCS marker first,
// then a package-manifest marker. usedManifestFallback is true when
// only a manifest marker was found, so callers can emit a warning
// that no VCS marker was found.
func DiscoverRoot(start string) (root string, usedManifestFallback bool, err error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", false, err
	}

	manifestRoot := ""
	dir := abs
	for {
		for _, marker := range vcsMarkers {
			if exists(filepath.Join(dir, marker)) {
				return dir, false, nil
			}
		}
		if manifestRoot == "" {
			for _, marker := range manifestMarkers {
				if exists(filepath.Join(dir, marker)) {
					manifestRoot = dir
				}
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if manifestRoot != "" {
		return manifestRoot, true, nil
	}
	return abs, true, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// defaultExcludes mirrors the scanner's always-skip-dotdirs rule plus
// the handful of directories that are never worth syncing to a
// training instance.
var defaultExcludes = []string{".git", ".hg", ".jj", "__pycache__", "node_modules", ".venv", "venv", ".mypy_cache", ".pytest_cache"}

// Matcher decides, for each path relative to the sync root, whether it
// is included in the archive/transfer set. Include patterns win over
// exclude patterns on conflict, matched by path-prefix segment (an
// include of "data/raw" overrides an exclude of "data").
type Matcher struct {
	excludes []string
	includes []string
}

// NewMatcher builds a Matcher from caller-supplied exclude/include
// glob-style patterns, merged with the built-in default excludes.
func NewMatcher(excludes, includes []string) *Matcher {
	m := &Matcher{includes: includes}
	m.excludes = append(append([]string{}, defaultExcludes...), excludes...)
	return m
}

// Included reports whether relPath (slash-separated, relative to the
// sync root) should be part of the file set.
func (m *Matcher) Included(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, inc := range m.includes {
		if matchesPattern(relPath, inc) {
			return true
		}
	}
	for _, exc := range m.excludes {
		if matchesPattern(relPath, exc) {
			return false
		}
	}
	return true
}

// matchesPattern implements the path-prefix-segment matching rule: a
// pattern matches relPath if relPath equals the pattern, starts with
// "pattern/", or any path segment equals the pattern (gitignore's
// "bare name matches anywhere" behavior), or filepath.Match succeeds
// for glob patterns.
func matchesPattern(relPath, pattern string) bool {
	pattern = filepath.ToSlash(strings.TrimSuffix(pattern, "/"))
	if relPath == pattern || strings.HasPrefix(relPath, pattern+"/") {
		return true
	}
	segments := strings.Split(relPath, "/")
	for _, seg := range segments {
		if seg == pattern {
			return true
		}
		if ok, _ := filepath.Match(pattern, seg); ok {
			return true
		}
	}
	if ok, _ := filepath.Match(pattern, relPath); ok {
		return true
	}
	return false
}

// FileEntry describes one selected file, with enough metadata for the
// incremental-sync fingerprint compare (size + content hash).
type FileEntry struct {
	RelPath string
	AbsPath string
	Size    int64
	Hash    string // populated by Hash, empty until computed
}

// SelectFiles walks root and returns every included file, satisfying
// "incremental and full must produce identical file
// sets under the same inputs": this is the single O(n) selection pass
// both transports share.
func SelectFiles(root string, m *Matcher) ([]FileEntry, error) {
	var out []FileEntry
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return rerr
		}
		if info.IsDir() {
			// With include patterns present, excluded directories are
			// still walked: an include can match a file below one.
			if !m.Included(rel) && len(m.includes) == 0 {
				return filepath.SkipDir
			}
			return nil
		}
		if !m.Included(rel) {
			return nil
		}
		out = append(out, FileEntry{RelPath: filepath.ToSlash(rel), AbsPath: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
