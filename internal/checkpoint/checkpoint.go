// Package checkpoint implements the checkpoint manager: discovers the
// newest checkpoint file on disk, uploads it to blob storage, records
// a small metadata sidecar, and supports resume lookup.
package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	gojson "github.com/goccy/go-json"

	"github.com/arclabs561/runctl/internal/errs"
	"github.com/arclabs561/runctl/internal/retry"
)

// Record is the sidecar metadata persisted by record(), matching
// {job_id, epoch, path, uploaded_at, size}.
type Record struct {
	JobID      string    `json:"jobId"`
	Epoch      int       `json:"epoch"`
	Path       string    `json:"path"`
	UploadedAt time.Time `json:"uploadedAt"`
	Size       int64     `json:"size"`
	BlobURI    string    `json:"blobUri"`
}

// Store is the persistence contract for a checkpoint sidecar record.
type Store interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, r Record) error
}

// S3API is the narrow S3 surface the checkpoint manager calls.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Logger is the narrow logging surface used for best-effort cleanup
// warnings.
type Logger interface {
	Warnf(format string, args ...any)
}

// S3Store persists Records as JSON objects in S3.
type S3Store struct {
	client S3API
	bucket string
	key    string
}

// NewS3Store builds a Store from an s3://bucket/key URI.
func NewS3Store(client S3API, uri string) (*S3Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errs.Validation("blob_uri", "invalid S3 URI: "+err.Error())
	}
	if u.Scheme != "s3" {
		return nil, errs.Validation("blob_uri", "scheme must be s3, got "+u.Scheme)
	}
	return &S3Store{client: client, bucket: u.Host, key: strings.TrimPrefix(u.Path, "/")}, nil
}

func (s *S3Store) Load(ctx context.Context) (Record, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &s.key})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return Record{}, nil
		}
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return Record{}, nil
		}
		return Record{}, errs.CloudBlob("aws-s3", "get checkpoint record failed", err)
	}
	defer resp.Body.Close()

	var rec Record
	if err := gojson.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return Record{}, errs.CloudBlob("aws-s3", "decode checkpoint record failed", err)
	}
	return rec, nil
}

func (s *S3Store) Save(ctx context.Context, rec Record) error {
	data, err := gojson.Marshal(rec)
	if err != nil {
		return errs.IO("encode checkpoint record failed", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{Bucket: &s.bucket, Key: &s.key, Body: bytes.NewReader(data)})
	if err != nil {
		return errs.CloudBlob("aws-s3", "save checkpoint record failed", err)
	}
	return nil
}

// checkpointSuffixes are the filename suffixes the Manager considers
// checkpoints when scanning a directory.
var checkpointSuffixes = []string{".ckpt", ".pt", ".pth", ".safetensors"}

// Manager implements the full checkpoint contract: Latest, UploadLatest,
// Record, FindResumable. Blob writes go through the retry executor;
// the best-effort delete of UploadLatest's temp object is issued once
// and only warns on failure.
type Manager struct {
	s3  S3API
	log Logger
}

// NewManager builds a checkpoint Manager.
func NewManager(s3Client S3API, log Logger) *Manager {
	return &Manager{s3: s3Client, log: log}
}

// Latest returns the newest checkpoint file in dir, matching a
// recognized checkpoint suffix, ordered by mtime with filename as a
// tiebreaker. Returns ("", false, nil) if none found.
func (m *Manager) Latest(dir string) (string, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, errs.IO("read checkpoint dir failed", err)
	}

	type candidate struct {
		name    string
		modTime time.Time
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !hasCheckpointSuffix(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{name: e.Name(), modTime: info.ModTime()})
	}
	if len(candidates) == 0 {
		return "", false, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].modTime.Equal(candidates[j].modTime) {
			return candidates[i].modTime.After(candidates[j].modTime)
		}
		return candidates[i].name < candidates[j].name
	})
	return filepath.Join(dir, candidates[0].name), true, nil
}

// List returns every checkpoint file in dir, newest first, using the
// same ordering as Latest.
func (m *Manager) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.IO("read checkpoint dir failed", err)
	}

	type candidate struct {
		name    string
		modTime time.Time
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !hasCheckpointSuffix(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{name: e.Name(), modTime: info.ModTime()})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].modTime.Equal(candidates[j].modTime) {
			return candidates[i].modTime.After(candidates[j].modTime)
		}
		return candidates[i].name < candidates[j].name
	})

	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = filepath.Join(dir, c.name)
	}
	return paths, nil
}

func hasCheckpointSuffix(name string) bool {
	for _, suf := range checkpointSuffixes {
		if strings.HasSuffix(name, suf) {
			return true
		}
	}
	return false
}

// Suffixes returns the filename suffixes the manager recognizes as
// checkpoint files, so callers that need to locate the newest
// checkpoint on a remote filesystem (where Latest's os.ReadDir can't
// reach) can build a matching glob.
func Suffixes() []string {
	out := make([]string, len(checkpointSuffixes))
	copy(out, checkpointSuffixes)
	return out
}

// UploadLatest copies localPath to destURI atomically: it writes to a
// temp key derived from destURI, then copies to the final key and
// deletes the temp object, so a reader never observes a partial write.
func (m *Manager) UploadLatest(ctx context.Context, localPath, destURI string) error {
	u, err := url.Parse(destURI)
	if err != nil || u.Scheme != "s3" {
		return errs.Validation("blob_uri", "destURI must be an s3:// URI")
	}
	bucket := u.Host
	finalKey := strings.TrimPrefix(u.Path, "/")
	tempKey := finalKey + ".uploading-" + fmt.Sprintf("%d", time.Now().UnixNano())

	data, err := os.ReadFile(localPath)
	if err != nil {
		return errs.IO("read checkpoint file failed", err)
	}

	_, err = retry.Execute(ctx, retry.DefaultCloudConfig(), nil, "s3:put_object_temp", func(ctx context.Context) (struct{}, error) {
		_, perr := m.s3.PutObject(ctx, &s3.PutObjectInput{Bucket: &bucket, Key: &tempKey, Body: bytes.NewReader(data)})
		if perr != nil {
			return struct{}{}, errs.CloudBlob("aws-s3", "upload checkpoint temp object failed", perr)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}

	_, err = retry.Execute(ctx, retry.DefaultCloudConfig(), nil, "s3:put_object_final", func(ctx context.Context) (struct{}, error) {
		_, perr := m.s3.PutObject(ctx, &s3.PutObjectInput{Bucket: &bucket, Key: &finalKey, Body: bytes.NewReader(data)})
		if perr != nil {
			return struct{}{}, errs.CloudBlob("aws-s3", "upload checkpoint final object failed", perr)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}

	if _, derr := m.s3.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &bucket, Key: &tempKey}); derr != nil {
		if m.log != nil {
			m.log.Warnf("failed to delete staging checkpoint object %s: %v", tempKey, derr)
		}
	}
	return nil
}

// Record writes a sidecar record for a just-uploaded checkpoint.
func (m *Manager) Record(ctx context.Context, store Store, rec Record) error {
	rec.UploadedAt = time.Now()
	_, err := retry.Execute(ctx, retry.DefaultCloudConfig(), nil, "checkpoint:record", func(ctx context.Context) (struct{}, error) {
		if serr := store.Save(ctx, rec); serr != nil {
			return struct{}{}, serr
		}
		return struct{}{}, nil
	})
	return err
}

// FindResumable locates the newest successful record for jobID. With
// the single-record-per-job Store used here, that is simply the
// stored record if its JobID matches.
func (m *Manager) FindResumable(ctx context.Context, store Store, jobID string) (Record, bool, error) {
	rec, err := store.Load(ctx)
	if err != nil {
		return Record{}, false, err
	}
	if rec.JobID != jobID || rec.BlobURI == "" {
		return Record{}, false, nil
	}
	return rec, true, nil
}
