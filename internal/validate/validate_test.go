package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstanceID(t *testing.T) {
	assert.NoError(t, InstanceID("ec2", "i-0123456789abcdef0"))
	assert.Error(t, InstanceID("ec2", "not-an-id"))
	assert.Error(t, InstanceID("gcp", "anything"))
}

func TestPath_RejectsTraversal(t *testing.T) {
	assert.Error(t, Path("../etc/passwd"))
	assert.Error(t, Path("a/../../b"))
	assert.NoError(t, Path("data/train.csv"))
}

func TestPath_RejectsNULAndControl(t *testing.T) {
	assert.Error(t, Path("bad\x00name"))
	assert.Error(t, Path("bad\x01name"))
	assert.NoError(t, Path("good\tname"))
}

func TestPathPattern_RejectsAbsolute(t *testing.T) {
	assert.Error(t, PathPattern("/etc/passwd"))
	assert.NoError(t, PathPattern("data/"))
}

func TestTagKeyValue(t *testing.T) {
	assert.NoError(t, TagKey("tool:project"))
	assert.Error(t, TagKey(""))
	assert.NoError(t, TagValue(""))
	assert.NoError(t, TagValue("my-project"))
}

func TestBlobURI(t *testing.T) {
	assert.NoError(t, BlobURI("s3://bucket/key"))
	assert.NoError(t, BlobURI("s3://bucket/tool-temp/i-abc/uuid.tar.gz"))
	assert.Error(t, BlobURI("not-a-uri"))
	assert.Error(t, BlobURI("s3://bucket"))
}

func TestProjectName(t *testing.T) {
	assert.NoError(t, ProjectName("my-project_1"))
	assert.Error(t, ProjectName(""))
	assert.Error(t, ProjectName("has a space"))
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, ProjectName(string(long)))
}
