package sync

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateArchive_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "train.py")
	require.NoError(t, os.WriteFile(srcPath, []byte("print('hi')"), 0o644))

	destPath := filepath.Join(dir, "archive.tar.gz")
	files := []FileEntry{{RelPath: "train.py", AbsPath: srcPath, Size: 12}}
	require.NoError(t, CreateArchive(context.Background(), files, destPath))

	f, err := os.Open(destPath)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "train.py", hdr.Name)

	_, err = tr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestHash_StableForSameContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("checkpoint-bytes"), 0o644))

	h1, err := Hash(path)
	require.NoError(t, err)
	h2, err := Hash(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.NotEmpty(t, h1)
}
