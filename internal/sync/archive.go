package sync

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/arclabs561/runctl/internal/errs"
)

// CreateArchive tars and gzips the given file set into destPath using
// the standard library's archive/tar and compress/gzip (see DESIGN.md
// for why no third-party archiver is used here). It runs on the
// caller's goroutine; Engine.syncIndirect calls it inline.
func CreateArchive(ctx context.Context, files []FileEntry, destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return errs.IO("create archive file failed", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	for _, f := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := addFileToTar(tw, f); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return errs.IO("close tar writer failed", err)
	}
	if err := gz.Close(); err != nil {
		return errs.IO("close gzip writer failed", err)
	}
	return nil
}

func addFileToTar(tw *tar.Writer, f FileEntry) error {
	src, err := os.Open(f.AbsPath)
	if err != nil {
		return errs.IO("open source file failed", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return errs.IO("stat source file failed", err)
	}

	hdr := &tar.Header{
		Name:    f.RelPath,
		Mode:    int64(info.Mode().Perm()),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return errs.IO("write tar header failed", err)
	}
	if _, err := io.Copy(tw, src); err != nil {
		return errs.IO("write tar entry failed", err)
	}
	return nil
}

// Hash computes a sha256 content fingerprint, used by the direct
// transport's incremental-sync compare (the remote write is skipped
// when the remote file's sha256 matches).
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errs.IO("open file for hashing failed", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errs.IO("hash file failed", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
