package sync

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/arclabs561/runctl/internal/errs"
	"github.com/arclabs561/runctl/internal/remote"
)

// directTransportSizeLimit bounds the direct channel to payloads small
// enough to embed as a base64 blob in a single remote command; larger
// trees always use the indirect (blob-staged) transport. This is the
// capability split is left to "instance capability" — an SSM-backed
// channel has no native file-push primitive, so "direct" here means
// "small enough to inline," and "indirect" means "stage through the
// blob store."
const directTransportSizeLimit = 256 * 1024

// S3API is the narrow S3 surface used for indirect-transport staging.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Logger is the narrow logging surface used for non-fatal warnings.
type Logger interface {
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
}

// Engine implements the code-sync engine end to end: discover the
// root, select files, and transfer them to a remote instance through
// whichever transport fits the payload.
type Engine struct {
	channel       remote.Channel
	blob          S3API
	stagingBucket string
	log           Logger
}

// NewEngine builds a code-sync Engine.
func NewEngine(channel remote.Channel, blob S3API, stagingBucket string, log Logger) *Engine {
	return &Engine{channel: channel, blob: blob, stagingBucket: stagingBucket, log: log}
}

// Result reports what Sync actually did, for logging/tests.
type Result struct {
	FilesSynced int
	Transport   string // "direct" or "indirect"
	Verified    bool
}

// Sync selects files under localRoot (discovering the project root if
// localRoot is a subdirectory of one) and transfers them to remoteDir
// on resourceID, choosing direct or indirect transport by payload
// size. Verification failures are reported as a warning, not an error.
func (e *Engine) Sync(ctx context.Context, resourceID, localRoot, remoteDir string, excludes, includes []string) (Result, error) {
	root, manifestFallback, err := DiscoverRoot(localRoot)
	if err != nil {
		return Result{}, errs.IO("discover project root failed", err)
	}
	if manifestFallback {
		e.log.Warnf("no VCS marker found above %s, using manifest/start directory as sync root", localRoot)
	}

	files, err := SelectFiles(root, NewMatcher(excludes, includes))
	if err != nil {
		return Result{}, errs.IO("select files failed", err)
	}

	var totalSize int64
	for _, f := range files {
		totalSize += f.Size
	}

	var transport string
	if totalSize <= directTransportSizeLimit {
		transport = "direct"
		if err := e.syncDirect(ctx, resourceID, files, remoteDir); err != nil {
			return Result{}, err
		}
	} else {
		transport = "indirect"
		if err := e.syncIndirect(ctx, resourceID, root, files, remoteDir); err != nil {
			return Result{}, err
		}
	}

	verified := e.verify(ctx, resourceID, remoteDir, files)
	return Result{FilesSynced: len(files), Transport: transport, Verified: verified}, nil
}

// syncDirect writes each file's content directly through a remote
// command, skipping the write of files whose sha256 already matches
// what's present remotely (the incremental-sync fingerprint compare,
// evaluated on the remote side; the content is still sent).
func (e *Engine) syncDirect(ctx context.Context, resourceID string, files []FileEntry, remoteDir string) error {
	for _, f := range files {
		data, err := os.ReadFile(f.AbsPath)
		if err != nil {
			e.log.Warnf("skipping unreadable file %s: %v", f.RelPath, err)
			continue
		}
		hash, err := Hash(f.AbsPath)
		if err != nil {
			e.log.Warnf("skipping unreadable file %s: %v", f.RelPath, err)
			continue
		}
		remotePath := filepath.ToSlash(filepath.Join(remoteDir, f.RelPath))
		script := fmt.Sprintf(
			"mkdir -p $(dirname %q) && if [ \"$(sha256sum %q 2>/dev/null | cut -d' ' -f1)\" != %q ]; then base64 -d > %q <<'RUNCTL_EOF'\n%s\nRUNCTL_EOF\nfi\n",
			remotePath, remotePath, hash, remotePath, base64Encode(data),
		)
		res, err := e.channel.RunAndWait(ctx, resourceID, script, remote.DefaultSyncTimeout)
		if err != nil {
			return err
		}
		if res.Outcome != remote.Succeeded {
			return errs.CloudAgent("remote", fmt.Sprintf("direct write of %s failed: %s", f.RelPath, res.Stderr), nil)
		}
	}
	return nil
}

// syncIndirect archives the file set, stages it in the blob store
// under a per-session key, issues a remote fetch+extract command, then
// verifies and deletes the staging blob. A failure to delete the
// staging blob warns, not fails.
func (e *Engine) syncIndirect(ctx context.Context, resourceID, root string, files []FileEntry, remoteDir string) error {
	tmpDir, err := os.MkdirTemp("", "runctl-sync-")
	if err != nil {
		return errs.IO("create temp dir failed", err)
	}
	defer os.RemoveAll(tmpDir)

	archivePath := filepath.Join(tmpDir, "sync.tar.gz")
	if err := CreateArchive(ctx, files, archivePath); err != nil {
		return err
	}

	key := fmt.Sprintf("runctl-temp/%s/%s.tar.gz", resourceID, uuid.NewString())
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return errs.IO("read archive failed", err)
	}
	if _, err := e.blob.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &e.stagingBucket, Key: &key, Body: bytes.NewReader(data),
	}); err != nil {
		return errs.CloudBlob("aws-s3", "upload sync archive failed", err)
	}

	blobURI := fmt.Sprintf("s3://%s/%s", e.stagingBucket, key)
	script := fmt.Sprintf(
		"mkdir -p %q && aws s3 cp %q /tmp/runctl-sync.tar.gz && tar -xzf /tmp/runctl-sync.tar.gz -C %q && rm -f /tmp/runctl-sync.tar.gz",
		remoteDir, blobURI, remoteDir,
	)
	res, err := e.channel.RunAndWait(ctx, resourceID, script, remote.DefaultSyncTimeout)
	if err != nil {
		return err
	}
	if res.Outcome != remote.Succeeded {
		return errs.CloudAgent("remote", "fetch+extract failed: "+res.Stderr, nil)
	}

	if _, derr := e.blob.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &e.stagingBucket, Key: &key}); derr != nil {
		e.log.Warnf("failed to delete staging blob %s: %v", blobURI, derr)
	}
	return nil
}

// verify checks that the first selected file exists on the remote. A
// missing path only produces a warning, allowing partial sync to
// complete.
func (e *Engine) verify(ctx context.Context, resourceID, remoteDir string, files []FileEntry) bool {
	if len(files) == 0 {
		return true
	}
	sample := files[0]
	remotePath := filepath.ToSlash(filepath.Join(remoteDir, sample.RelPath))
	res, err := e.channel.RunAndWait(ctx, resourceID, fmt.Sprintf("test -e %q", remotePath), remote.DefaultSyncTimeout)
	if err != nil || res.Outcome != remote.Succeeded {
		e.log.Warnf("post-sync verification could not confirm %s exists remotely", remotePath)
		return false
	}
	return true
}
