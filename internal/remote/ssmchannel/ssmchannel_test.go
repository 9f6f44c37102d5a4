package ssmchannel

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclabs561/runctl/internal/remote"
)

// fakeSSM scripts one GetCommandInvocation response per call, then
// repeats the last one, mirroring the repo's other fake-API test
// doubles (fakechannel, fakeprovider).
type fakeSSM struct {
	sendErr      error
	invocations  []ssm.GetCommandInvocationOutput
	invocationAt int
	cancelled    []string
}

func (f *fakeSSM) SendCommand(ctx context.Context, params *ssm.SendCommandInput, optFns ...func(*ssm.Options)) (*ssm.SendCommandOutput, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &ssm.SendCommandOutput{Command: &ssmtypes.Command{CommandId: aws.String("cmd-1")}}, nil
}

func (f *fakeSSM) GetCommandInvocation(ctx context.Context, params *ssm.GetCommandInvocationInput, optFns ...func(*ssm.Options)) (*ssm.GetCommandInvocationOutput, error) {
	idx := f.invocationAt
	if idx >= len(f.invocations) {
		idx = len(f.invocations) - 1
	}
	f.invocationAt++
	out := f.invocations[idx]
	return &out, nil
}

func (f *fakeSSM) CancelCommand(ctx context.Context, params *ssm.CancelCommandInput, optFns ...func(*ssm.Options)) (*ssm.CancelCommandOutput, error) {
	f.cancelled = append(f.cancelled, aws.ToString(params.CommandId))
	return &ssm.CancelCommandOutput{}, nil
}

type fakeS3Download struct {
	body string
	err  error
}

func (f *fakeS3Download) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestSendCommand_ReturnsCommandID(t *testing.T) {
	ch := New(&fakeSSM{invocations: []ssm.GetCommandInvocationOutput{{Status: ssmtypes.CommandInvocationStatusSuccess}}}, nil, nil, "")
	id, err := ch.SendCommand(context.Background(), "i-1", "echo hi")
	require.NoError(t, err)
	assert.Equal(t, "cmd-1", id)
}

func TestPoll_MapsStatusesToOutcomes(t *testing.T) {
	cases := []struct {
		status  ssmtypes.CommandInvocationStatus
		outcome remote.Outcome
	}{
		{ssmtypes.CommandInvocationStatusInProgress, remote.Pending},
		{ssmtypes.CommandInvocationStatusSuccess, remote.Succeeded},
		{ssmtypes.CommandInvocationStatusFailed, remote.Failed},
	}
	for _, c := range cases {
		fake := &fakeSSM{invocations: []ssm.GetCommandInvocationOutput{{Status: c.status}}}
		ch := New(fake, nil, nil, "")
		res, err := ch.Poll(context.Background(), "i-1", "cmd-1")
		require.NoError(t, err)
		assert.Equal(t, c.outcome, res.Outcome)
	}
}

func TestRunAndWait_ReturnsOnFirstTerminalPoll(t *testing.T) {
	fake := &fakeSSM{invocations: []ssm.GetCommandInvocationOutput{
		{Status: ssmtypes.CommandInvocationStatusSuccess, StandardOutputContent: aws.String("done")},
	}}
	ch := New(fake, nil, nil, "")

	res, err := ch.RunAndWait(context.Background(), "i-1", "echo hi", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, remote.Succeeded, res.Outcome)
	assert.Equal(t, "done", res.Stdout)
}

func TestRunAndWait_SendFailurePropagates(t *testing.T) {
	fake := &fakeSSM{sendErr: assertError("throttled")}
	ch := New(fake, nil, nil, "")

	_, err := ch.RunAndWait(context.Background(), "i-1", "echo hi", 5*time.Second)
	assert.Error(t, err)
}

func TestTerminate_CancelsCommand(t *testing.T) {
	fake := &fakeSSM{invocations: []ssm.GetCommandInvocationOutput{{Status: ssmtypes.CommandInvocationStatusSuccess}}}
	ch := New(fake, nil, nil, "")
	require.NoError(t, ch.Terminate(context.Background(), "i-1", "cmd-1"))
	assert.Contains(t, fake.cancelled, "cmd-1")
}

func TestDownload_WritesObjectBodyToLocalPath(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "out.ckpt")
	ch := New(nil, &fakeS3Download{body: "weights-bytes"}, nil, "staging-bucket")

	require.NoError(t, ch.Download(context.Background(), "i-1", "/tmp/checkpoint.ckpt", local))

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "weights-bytes", string(data))
}

func TestSplitTailOutput_ParsesLinesAndTrailingLength(t *testing.T) {
	lines, length := splitTailOutput("line one\nline two\n42")
	assert.Equal(t, []string{"line one", "line two"}, lines)
	assert.Equal(t, int64(42), length)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertError(msg string) error { return simpleError(msg) }
