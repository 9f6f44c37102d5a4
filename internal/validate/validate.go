// Package validate holds pure, I/O-free predicates for every value
// that crosses a trust boundary in the control core: instance ids,
// filesystem paths, tag shapes, blob URIs, and project/resource names.
// Every failure is an *errs.Error of KindValidation; callers at each
// boundary (CLI flag parsing, provider responses, config files) invoke
// these before using a value.
package validate

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/arclabs561/runctl/internal/errs"
)

var instanceIDPatterns = map[string]*regexp.Regexp{
	"ec2": regexp.MustCompile(`^i-[0-9a-f]{8,17}$`),
}

// InstanceID validates a provider-scoped resource id against the
// pattern registered for that provider kind. Unknown kinds fail
// closed rather than silently accepting anything.
func InstanceID(kind, s string) error {
	re, ok := instanceIDPatterns[kind]
	if !ok {
		return errs.Validation("instance_id", "unknown provider kind: "+kind)
	}
	if !re.MatchString(s) {
		return errs.Validation("instance_id", "does not match "+kind+" instance id pattern")
	}
	return nil
}

// Path rejects traversal, NUL bytes, and disallowed control
// characters in a filesystem path. It does not touch the filesystem.
func Path(p string) error {
	if p == "" {
		return errs.Validation("path", "empty path")
	}
	if strings.ContainsRune(p, '\x00') {
		return errs.Validation("path", "contains NUL byte")
	}
	for _, r := range p {
		if unicode.IsControl(r) && r != '\t' {
			return errs.Validation("path", "contains disallowed control character")
		}
	}
	if hasTraversal(p) {
		return errs.Validation("path", "contains path traversal ('..')")
	}
	return nil
}

// PathPattern validates a path pattern used for code-sync include
// rules: same rules as Path, plus a rejection of absolute paths since
// include patterns are always relative to the project root.
func PathPattern(p string) error {
	if err := Path(p); err != nil {
		return err
	}
	if path.IsAbs(p) {
		return errs.Validation("path_pattern", "must be relative to project root")
	}
	return nil
}

func hasTraversal(p string) bool {
	clean := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return true
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// TagKey validates a cloud-resource tag key: non-empty, no control
// characters, and within the common 128-byte provider limit.
func TagKey(k string) error {
	if k == "" {
		return errs.Validation("tag_key", "empty tag key")
	}
	return validateTagPart("tag_key", k, 128)
}

// TagValue validates a cloud-resource tag value (up to 256 bytes,
// matching common provider limits; empty values are allowed).
func TagValue(v string) error {
	if v == "" {
		return nil
	}
	return validateTagPart("tag_value", v, 256)
}

func validateTagPart(field, s string, maxLen int) error {
	if len(s) > maxLen {
		return errs.Validation(field, "exceeds maximum length")
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return errs.Validation(field, "contains control character")
		}
	}
	return nil
}

var blobURIPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://[^/]+/.+$`)

// BlobURI validates the scheme://bucket/key shape used for checkpoint
// and code-sync staging destinations.
func BlobURI(uri string) error {
	if !blobURIPattern.MatchString(uri) {
		return errs.Validation("blob_uri", "must match scheme://bucket/key")
	}
	return nil
}

var projectNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ProjectName validates a project/resource name: alphanumerics, '-',
// '_', length 1..64.
func ProjectName(name string) error {
	if !projectNamePattern.MatchString(name) {
		return errs.Validation("project_name", "must be 1-64 chars of alphanumerics, '-', '_'")
	}
	return nil
}
