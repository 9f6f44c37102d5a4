package interruption

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclabs561/runctl/internal/remote"
	"github.com/arclabs561/runctl/internal/remote/fakechannel"
)

func TestRemotePoller_EmptyBodyMeansNothingPending(t *testing.T) {
	ch := fakechannel.New()
	p := NewRemotePoller(ch, "i-123")

	ev, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestRemotePoller_StopActionParsed(t *testing.T) {
	ch := fakechannel.New()
	ch.ScriptResult(remote.CommandResult{Outcome: remote.Succeeded, Stdout: `{"action":"stop","time":"2026-07-31T12:00:00Z"}`})
	p := NewRemotePoller(ch, "i-123")

	ev, err := p.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "stop", ev.Reason)
	assert.Equal(t, 2026, ev.Deadline.Year())
}

func TestRemotePoller_TerminateActionParsed(t *testing.T) {
	ch := fakechannel.New()
	ch.ScriptResult(remote.CommandResult{Outcome: remote.Succeeded, Stdout: `{"action":"terminate","time":"2026-07-31T12:00:00Z"}`})
	p := NewRemotePoller(ch, "i-123")

	ev, err := p.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "terminate", ev.Reason)
}
