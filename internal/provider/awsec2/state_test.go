package awsec2

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arclabs561/runctl/internal/types"
)

func TestNormalizeState_MapsKnownNames(t *testing.T) {
	cases := map[string]types.ResourceState{
		"pending":       types.StatePending,
		"running":       types.StateRunning,
		"shutting-down": types.StateTerminating,
		"stopping":      types.StateStopping,
		"stopped":       types.StateStopped,
		"terminated":    types.StateTerminated,
	}
	for name, want := range cases {
		assert.Equal(t, want, NormalizeState(name))
	}
}

func TestNormalizeState_UnknownNameDoesNotPanic(t *testing.T) {
	assert.Equal(t, types.StateUnknown, NormalizeState("quantum-superposition"))
}

func TestIsSpotInterruption_MatchesKnownReasonsCaseInsensitively(t *testing.T) {
	assert.True(t, IsSpotInterruption("Server.SpotInstanceTermination"))
	assert.True(t, IsSpotInterruption("instance reclaimed: client.spotinstancetermination: bid too low"))
	assert.False(t, IsSpotInterruption("User initiated shutdown"))
}
