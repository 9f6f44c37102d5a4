package train

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclabs561/runctl/internal/checkpoint"
	"github.com/arclabs561/runctl/internal/interruption"
	"github.com/arclabs561/runctl/internal/remote"
	"github.com/arclabs561/runctl/internal/remote/fakechannel"
	"github.com/arclabs561/runctl/internal/types"
)

// fakeCheckpointS3 is a minimal checkpoint.S3API double that only
// tracks whether an upload/delete happened; it never reads back
// objects so GetObject is unused by these tests.
type fakeCheckpointS3 struct {
	putCount int
	deleted  []string
}

func (f *fakeCheckpointS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeCheckpointS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putCount++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeCheckpointS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// testLogger collects warnings so tests can assert on best-effort
// dependency-install messages without a real console logger.
type testLogger struct {
	infos []string
	warns []string
}

func (l *testLogger) Infof(format string, args ...any) { l.infos = append(l.infos, format) }
func (l *testLogger) Warnf(format string, args ...any) { l.warns = append(l.warns, format) }

func TestHyperparamsToArgs_ConvertsFlagsInSortedOrder(t *testing.T) {
	args := HyperparamsToArgs(map[string]string{
		"learning_rate": "0.001",
		"mixed_precision": "true",
		"resume_from_scratch": "false",
	})
	assert.Equal(t, []string{"--learning-rate", "0.001", "--mixed-precision"}, args)
}

func TestBuildScriptArgs_InsertsResumeBeforeRawArgs(t *testing.T) {
	args := BuildScriptArgs(map[string]string{"epochs": "3"}, []string{"--extra", "val"}, "/ckpt/e2.pt")
	assert.Equal(t, []string{"--epochs", "3", "--resume", "/ckpt/e2.pt", "--extra", "val"}, args)
}

func TestBuildScriptArgs_OmitsResumeFlagWhenPathEmpty(t *testing.T) {
	args := BuildScriptArgs(nil, []string{"--extra"}, "")
	assert.Equal(t, []string{"--extra"}, args)
}

func TestInstallScript_PrefersRequirementsTxt(t *testing.T) {
	script := InstallScript("/home/ec2-user/job")
	assert.Contains(t, script, "requirements.txt")
	assert.Contains(t, script, "pip install -r requirements.txt")
}

func TestLaunch_HappyPathReturnsJobID(t *testing.T) {
	ch := fakechannel.New()
	c := NewController(ch, &testLogger{})

	jobID, err := c.Launch(context.Background(), "i-123", types.TrainingJob{ScriptPath: "train.py"})
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)
}

func TestLaunch_SyncRequestedWithoutSyncerErrors(t *testing.T) {
	ch := fakechannel.New()
	c := NewController(ch, &testLogger{})

	_, err := c.Launch(context.Background(), "i-123", types.TrainingJob{ScriptPath: "train.py", SyncCode: true})
	assert.Error(t, err)
}

func TestLaunch_LiveMarkerBlocksRelaunch(t *testing.T) {
	ch := fakechannel.New()
	ch.ScriptResult(remote.CommandResult{Outcome: remote.Succeeded, Stdout: "alive"})
	c := NewController(ch, &testLogger{})

	_, err := c.Launch(context.Background(), "i-123", types.TrainingJob{ScriptPath: "train.py"})
	assert.Error(t, err)
}

func TestLaunch_DepsFailureIsFatalByDefault(t *testing.T) {
	ch := fakechannel.New()
	ch.ScriptResult(remote.CommandResult{Outcome: remote.Failed, Stderr: "pip explode"})
	c := NewController(ch, &testLogger{})

	_, err := c.Launch(context.Background(), "i-123", types.TrainingJob{ScriptPath: "train.py"})
	assert.Error(t, err)
}

func TestLaunch_DepsFailureBestEffortContinuesAndWarns(t *testing.T) {
	ch := fakechannel.New()
	ch.ScriptResultFor("pip install", remote.CommandResult{Outcome: remote.Failed, Stderr: "pip explode"})
	log := &testLogger{}
	c := NewController(ch, log)

	jobID, err := c.Launch(context.Background(), "i-123", types.TrainingJob{ScriptPath: "train.py", BestEffortDeps: true})
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)
	assert.NotEmpty(t, log.warns)
}

func TestWaitForExitOrInterrupt_ContextCancelReturnsFailed(t *testing.T) {
	ch := fakechannel.New()
	c := NewController(ch, &testLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := c.waitForExitOrInterrupt(ctx, "i-123", types.TrainingJob{}, nil)
	assert.Equal(t, types.JobFailed, result.State)
	assert.Error(t, result.Err)
}

func TestReactToInterruption_ImmediateExitSkipsEscalation(t *testing.T) {
	ch := fakechannel.New()
	ch.ScriptResult(remote.CommandResult{Outcome: remote.Succeeded, Stdout: "0"})
	c := NewController(ch, &testLogger{})

	ev := interruption.Event{Reason: "spot", Deadline: time.Now().Add(2 * time.Minute)}
	result := c.reactToInterruption(context.Background(), "i-123", types.TrainingJob{GraceSeconds: 1}, ev)

	assert.Equal(t, types.InterruptionReason("spot"), result.InterruptReason)
	assert.Equal(t, 130, result.ExitCode)
	assert.Equal(t, types.JobCompleted, result.State)
}

func TestFinalCheckpointUpload_DownloadsRemoteCheckpointBeforeUploading(t *testing.T) {
	ch := fakechannel.New()
	ch.ScriptResultFor("ls -t", remote.CommandResult{Outcome: remote.Succeeded, Stdout: "/ckpt/epoch-7.pt\n"})
	ch.WriteFileOnDownload([]byte("weights"))

	s3Fake := &fakeCheckpointS3{}
	c := NewController(ch, &testLogger{})
	c.Checkpoints = checkpoint.NewManager(s3Fake, &testLogger{})

	job := types.TrainingJob{CheckpointDir: "/ckpt", OutputDest: "s3://bucket/job-1/checkpoint.pt"}
	result := &types.JobResult{}
	c.finalCheckpointUpload(context.Background(), "i-123", job, result)

	assert.Equal(t, "s3://bucket/job-1/checkpoint.pt", result.CheckpointUpload)
	assert.Equal(t, 2, s3Fake.putCount) // staged temp object, then final object
	local, ok := ch.WasDownloaded("i-123", "/ckpt/epoch-7.pt")
	require.True(t, ok)
	assert.Equal(t, "epoch-7.pt", filepath.Base(local))
}

func TestFinalCheckpointUpload_NoRemoteCheckpointSkipsUpload(t *testing.T) {
	ch := fakechannel.New()
	ch.ScriptResultFor("ls -t", remote.CommandResult{Outcome: remote.Succeeded, Stdout: ""})

	s3Fake := &fakeCheckpointS3{}
	c := NewController(ch, &testLogger{})
	c.Checkpoints = checkpoint.NewManager(s3Fake, &testLogger{})

	job := types.TrainingJob{CheckpointDir: "/ckpt", OutputDest: "s3://bucket/job-1/checkpoint.pt"}
	result := &types.JobResult{}
	c.finalCheckpointUpload(context.Background(), "i-123", job, result)

	assert.Empty(t, result.CheckpointUpload)
	assert.Equal(t, 0, s3Fake.putCount)
}

func TestReactToInterruption_UploadsCheckpointAfterInterruption(t *testing.T) {
	ch := fakechannel.New()
	ch.ScriptResult(remote.CommandResult{Outcome: remote.Succeeded, Stdout: "0"})
	ch.ScriptResultFor("ls -t", remote.CommandResult{Outcome: remote.Succeeded, Stdout: "/ckpt/epoch-3.pt\n"})
	ch.WriteFileOnDownload([]byte("weights"))

	s3Fake := &fakeCheckpointS3{}
	c := NewController(ch, &testLogger{})
	c.Checkpoints = checkpoint.NewManager(s3Fake, &testLogger{})

	ev := interruption.Event{Reason: "spot", Deadline: time.Now().Add(2 * time.Minute)}
	job := types.TrainingJob{GraceSeconds: 1, CheckpointDir: "/ckpt", OutputDest: "s3://bucket/job-2/checkpoint.pt"}
	result := c.reactToInterruption(context.Background(), "i-123", job, ev)

	assert.Equal(t, types.JobCompleted, result.State)
	assert.Equal(t, "s3://bucket/job-2/checkpoint.pt", result.CheckpointUpload)
	assert.Equal(t, 2, s3Fake.putCount)
	local, ok := ch.WasDownloaded("i-123", "/ckpt/epoch-3.pt")
	require.True(t, ok)
	assert.Equal(t, "epoch-3.pt", filepath.Base(local))
}
