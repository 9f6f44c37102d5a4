package remote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollCadence_FastUnderThirtySeconds(t *testing.T) {
	assert.Equal(t, 2*time.Second, PollCadence(0))
	assert.Equal(t, 2*time.Second, PollCadence(29*time.Second))
}

func TestPollCadence_SlowsAfterThirtySeconds(t *testing.T) {
	assert.Equal(t, 10*time.Second, PollCadence(30*time.Second))
	assert.Equal(t, 10*time.Second, PollCadence(time.Minute))
}
