package tracker

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclabs561/runctl/internal/types"
)

func launchedStatus(id string, hoursAgo float64, costPerHour float64) types.ResourceStatus {
	launch := time.Now().Add(-time.Duration(hoursAgo * float64(time.Hour)))
	return types.ResourceStatus{
		ID:          types.ResourceID(id),
		Provider:    "aws",
		State:       types.StateRunning,
		LaunchTime:  &launch,
		CostPerHour: costPerHour,
		Tags:        map[string]string{"tool:created": "true"},
	}
}

func TestRegister_IdempotentMergesTags(t *testing.T) {
	tr := New()
	tr.Register(launchedStatus("i-1", 1, 1.0))
	status2 := launchedStatus("i-1", 1, 1.0)
	status2.Tags["tool:project"] = "demo"
	tr.Register(status2)

	got, ok := tr.Get("i-1")
	require.True(t, ok)
	assert.Equal(t, "demo", got.Tags["tool:project"])
	assert.Equal(t, "true", got.Tags["tool:created"])
}

func TestCost_ComputedFromLaunchTime(t *testing.T) {
	tr := New()
	tr.Register(launchedStatus("i-1", 2, 1.5)) // 2 hours * $1.5/hr = $3
	got, ok := tr.Get("i-1")
	require.True(t, ok)
	assert.InDelta(t, 3.0, got.AccumulatedCost, 0.05)
}

func TestCost_FreezesOnStop(t *testing.T) {
	tr := New()
	tr.Register(launchedStatus("i-1", 1, 2.0)) // ~$2 accrued
	require.NoError(t, tr.UpdateState("i-1", types.StateStopped))

	frozen, ok := tr.Get("i-1")
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	later, ok := tr.Get("i-1")
	require.True(t, ok)
	assert.Equal(t, frozen.AccumulatedCost, later.AccumulatedCost)
}

func TestUpdateState_RejectsReturnToPending(t *testing.T) {
	tr := New()
	tr.Register(launchedStatus("i-1", 0, 1.0))
	require.NoError(t, tr.UpdateState("i-1", types.StateRunning))
	err := tr.UpdateState("i-1", types.StatePending)
	assert.Error(t, err)
}

func TestUpdateState_TerminatedIsSink(t *testing.T) {
	tr := New()
	tr.Register(launchedStatus("i-1", 0, 1.0))
	require.NoError(t, tr.UpdateState("i-1", types.StateTerminated))
	err := tr.UpdateState("i-1", types.StateRunning)
	assert.Error(t, err)
}

func TestRemove_OnlyAfterTerminated(t *testing.T) {
	tr := New()
	tr.Register(launchedStatus("i-1", 0, 1.0))
	assert.Error(t, tr.Remove("i-1"))
	require.NoError(t, tr.UpdateState("i-1", types.StateTerminated))
	assert.NoError(t, tr.Remove("i-1"))
	_, ok := tr.Get("i-1")
	assert.False(t, ok)
}

func TestUpdateUsage_AppendOnly(t *testing.T) {
	tr := New()
	tr.Register(launchedStatus("i-1", 0, 1.0))
	require.NoError(t, tr.UpdateUsage("i-1", types.ResourceUsage{ComputeHours: 1, Timestamp: time.Now()}))
	require.NoError(t, tr.UpdateUsage("i-1", types.ResourceUsage{ComputeHours: 2, Timestamp: time.Now()}))

	got, ok := tr.Get("i-1")
	require.True(t, ok)
	require.Len(t, got.UsageSamples, 2)
	assert.Equal(t, 1.0, got.UsageSamples[0].ComputeHours)
	assert.Equal(t, 2.0, got.UsageSamples[1].ComputeHours)
}

// property: cost monotonicity — for any sequence of update_state /
// update_usage calls, AccumulatedCost never decreases.
func TestProperty_CostMonotonic(t *testing.T) {
	tr := New()
	tr.Register(launchedStatus("i-1", 0, 3.0))

	var last float64
	transitions := []types.ResourceState{types.StateRunning, types.StateStopping, types.StateStopped}
	for _, next := range transitions {
		_ = tr.UpdateState("i-1", next) // ignore illegal no-ops for this property sweep
		got, ok := tr.Get("i-1")
		require.True(t, ok)
		assert.GreaterOrEqual(t, got.AccumulatedCost, last)
		last = got.AccumulatedCost
	}
}

func TestGetByTag(t *testing.T) {
	tr := New()
	tr.Register(launchedStatus("i-1", 0, 1.0))
	s2 := launchedStatus("i-2", 0, 1.0)
	s2.Tags["tool:project"] = "other"
	tr.Register(s2)

	matches := tr.GetByTag("tool:created", "true")
	assert.Len(t, matches, 2)
}

func TestConcurrentAccess(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := types.ResourceID("i-concurrent")
			tr.Register(launchedStatus(string(id), 0, 1.0))
			_ = tr.UpdateUsage(id, types.ResourceUsage{ComputeHours: 1, Timestamp: time.Now()})
			_, _ = tr.Get(id)
		}(i)
	}
	wg.Wait()
	got, ok := tr.Get("i-concurrent")
	require.True(t, ok)
	assert.Len(t, got.UsageSamples, 50)
}

func TestSaveJournal_LoadJournalRoundTrips(t *testing.T) {
	tr := New()
	tr.Register(launchedStatus("i-1", 1, 2.0))
	require.NoError(t, tr.UpdateState("i-1", types.StateStopped))
	tr.Register(launchedStatus("i-2", 0, 1.0))

	path := filepath.Join(t.TempDir(), "tracker.json")
	require.NoError(t, tr.SaveJournal(path))

	loaded := New()
	require.NoError(t, loaded.LoadJournal(path))

	got1, ok := loaded.Get("i-1")
	require.True(t, ok)
	assert.Equal(t, types.StateStopped, got1.Status.State)

	got2, ok := loaded.Get("i-2")
	require.True(t, ok)
	assert.Equal(t, types.StateRunning, got2.Status.State)
}

func TestLoadJournal_MissingFileIsNotAnError(t *testing.T) {
	tr := New()
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	assert.NoError(t, tr.LoadJournal(path))
	assert.Equal(t, 0, tr.Count())
}

func TestLoadJournal_CorruptFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	tr := New()
	assert.Error(t, tr.LoadJournal(path))
}
