package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrackedResource_CopiesTagsWithoutAliasing(t *testing.T) {
	status := ResourceStatus{ID: "i-abc", Tags: map[string]string{"env": "prod"}}
	tr := NewTrackedResource(status)

	status.Tags["env"] = "staging"
	require.Contains(t, tr.Tags, "env")
	assert.Equal(t, "prod", tr.Tags["env"])
}

func TestNewTrackedResource_NilTagsProducesEmptyMap(t *testing.T) {
	tr := NewTrackedResource(ResourceStatus{ID: "i-abc"})
	assert.NotNil(t, tr.Tags)
	assert.Empty(t, tr.Tags)
}
