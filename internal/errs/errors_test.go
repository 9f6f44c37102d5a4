package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"cloud_provider", CloudProvider("aws", "describe failed", nil), true},
		{"io", IO("write failed", nil), true},
		{"retryable", Retryable(5, 5, "timeout", nil), true},
		{"validation", Validation("instance_id", "bad format"), false},
		{"not_found", ResourceNotFound("instance", "i-123"), false},
		{"config", Config("bad toml", nil), false},
		{"plain_stdlib_error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestErrorChainPreserved(t *testing.T) {
	root := errors.New("connection reset")
	wrapped := CloudProvider("aws", "describe-instances", root)

	require.ErrorIs(t, wrapped, root)

	var asErr *Error
	require.ErrorAs(t, wrapped, &asErr)
	assert.Equal(t, KindCloudProvider, asErr.Kind)
}

func TestRetryableErrorMessageIncludesAttempts(t *testing.T) {
	cause := errors.New("rate limited")
	err := Retryable(3, 5, "create_resource", cause)
	msg := err.Error()
	assert.Contains(t, msg, "3/5")
	assert.Contains(t, msg, "rate limited")
}

func TestResourceExistsAndNotFoundMessages(t *testing.T) {
	nf := ResourceNotFound("instance", "i-abc")
	assert.Equal(t, `instance "i-abc" not found`, nf.Error())

	ex := ResourceExists("training", "job-1")
	assert.Equal(t, `training "job-1" already exists`, ex.Error())
}

func TestAsHelper(t *testing.T) {
	err := Validation("path", "traversal")
	got, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "path", got.Field)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}
