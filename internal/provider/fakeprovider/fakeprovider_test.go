package fakeprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclabs561/runctl/internal/provider"
	"github.com/arclabs561/runctl/internal/types"
)

func TestCreateResource_TagsAndCost(t *testing.T) {
	p := New()
	p.SetCostPerHour("g4dn.xlarge", 0.5)

	id, err := p.CreateResource(context.Background(), "g4dn.xlarge", provider.CreateOptions{
		Project: "demo",
		Tags:    map[string]string{"env": "test"},
	})
	require.NoError(t, err)

	status, err := p.GetResourceStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatePending, status.State)
	assert.Equal(t, 0.5, status.CostPerHour)
	assert.Equal(t, "demo", status.Tags["tool:project"])
	assert.Equal(t, "test", status.Tags["env"])
}

func TestTerminate_ProtectedTagBlocksWithoutForce(t *testing.T) {
	p := New()
	id, err := p.CreateResource(context.Background(), "t3.micro", provider.CreateOptions{
		Tags: map[string]string{"tool:protected": "true"},
	})
	require.NoError(t, err)

	err = p.Terminate(context.Background(), id, false)
	assert.Error(t, err)
	assert.False(t, p.WasTerminated(id))

	require.NoError(t, p.Terminate(context.Background(), id, true))
	assert.True(t, p.WasTerminated(id))
}

func TestSetState_RejectsReturnToPending(t *testing.T) {
	p := New()
	id, err := p.CreateResource(context.Background(), "t3.micro", provider.CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background(), id))

	err = p.setState(id, types.StatePending)
	assert.Error(t, err)
}

func TestMonitor_DeliversSeededLinesThenCloses(t *testing.T) {
	p := New()
	id := types.ResourceID("fake-1")
	p.SetLogLines(id, []string{"epoch 1", "epoch 2"})

	lines, err := p.Monitor(context.Background(), id, false)
	require.NoError(t, err)

	var got []string
	for l := range lines {
		got = append(got, l.Text)
	}
	assert.Equal(t, []string{"epoch 1", "epoch 2"}, got)
}

func TestTrain_ThenWaitReturnsScriptedResult(t *testing.T) {
	p := New()
	id, err := p.CreateResource(context.Background(), "t3.micro", provider.CreateOptions{})
	require.NoError(t, err)

	handle, err := p.Train(context.Background(), id, types.TrainingJob{ScriptPath: "train.py"})
	require.NoError(t, err)

	p.SetJobResult(handle.JobID, types.JobResult{State: types.JobFailed, ExitCode: 1})

	result, err := p.Wait(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, result.State)
	assert.Equal(t, 1, result.ExitCode)
}

func TestDownload_RecordsDestination(t *testing.T) {
	p := New()
	id := types.ResourceID("fake-1")
	require.NoError(t, p.Download(context.Background(), id, "/remote/out.ckpt", "/local/out.ckpt"))

	local, ok := p.WasDownloaded(id, "/remote/out.ckpt")
	require.True(t, ok)
	assert.Equal(t, "/local/out.ckpt", local)
}
