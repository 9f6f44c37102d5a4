package sync

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_DefaultExcludesSkipVCSAndCaches(t *testing.T) {
	m := NewMatcher(nil, nil)
	assert.False(t, m.Included(".git/HEAD"))
	assert.False(t, m.Included("node_modules/left-pad/index.js"))
	assert.False(t, m.Included("__pycache__/mod.pyc"))
	assert.True(t, m.Included("src/main.go"))
}

func TestMatcher_IncludeWinsOverExclude(t *testing.T) {
	m := NewMatcher([]string{"data"}, []string{"data/raw"})
	assert.False(t, m.Included("data/processed/out.csv"))
	assert.True(t, m.Included("data/raw/input.csv"))
}

func TestMatcher_GlobPatternOnSegment(t *testing.T) {
	m := NewMatcher([]string{"*.log"}, nil)
	assert.False(t, m.Included("logs/run.log"))
	assert.True(t, m.Included("logs/run.txt"))
}

func TestDiscoverRoot_FindsGitMarker(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	found, manifestFallback, err := DiscoverRoot(sub)
	require.NoError(t, err)
	assert.Equal(t, root, found)
	assert.False(t, manifestFallback)
}

func TestDiscoverRoot_FallsBackToManifest(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o644))
	sub := filepath.Join(root, "cmd")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	found, manifestFallback, err := DiscoverRoot(sub)
	require.NoError(t, err)
	assert.Equal(t, root, found)
	assert.True(t, manifestFallback)
}

func TestSelectFiles_SkipsExcludedDirectoriesEntirely(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "dep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "dep", "index.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main"), 0o644))

	files, err := SelectFiles(root, NewMatcher(nil, nil))
	require.NoError(t, err)

	var rels []string
	for _, f := range files {
		rels = append(rels, f.RelPath)
	}
	sort.Strings(rels)
	assert.Equal(t, []string{"main.go"}, rels)
}
