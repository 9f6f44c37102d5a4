package interruption

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPoller returns a queued sequence of (event, error) pairs,
// one per call to Poll, then repeats the final entry.
type scriptedPoller struct {
	mu    sync.Mutex
	calls int
	steps []pollStep
}

type pollStep struct {
	ev  *Event
	err error
}

func (p *scriptedPoller) Poll(ctx context.Context) (*Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	if idx >= len(p.steps) {
		idx = len(p.steps) - 1
	}
	p.calls++
	return p.steps[idx].ev, p.steps[idx].err
}

type testLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *testLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, format)
}

func TestMonitor_DeliversSingleEventThenStopsFiring(t *testing.T) {
	poller := &scriptedPoller{steps: []pollStep{
		{ev: nil},
		{ev: &Event{Reason: "spot", Deadline: time.Now().Add(time.Minute)}},
		{ev: &Event{Reason: "spot", Deadline: time.Now().Add(time.Minute)}},
	}}
	mon := New(poller, nil, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		mon.Start(ctx)
		close(done)
	}()

	select {
	case ev := <-mon.Events():
		assert.Equal(t, "spot", ev.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for interruption event")
	}

	<-done
}

func TestMonitor_TransientFailureBacksOffAndWarns(t *testing.T) {
	poller := &scriptedPoller{steps: []pollStep{
		{err: errors.New("metadata unreachable")},
		{ev: &Event{Reason: "stop"}},
	}}
	log := &testLogger{}
	mon := New(poller, log, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go mon.Start(ctx)

	select {
	case ev := <-mon.Events():
		assert.Equal(t, "stop", ev.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for interruption event")
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	assert.NotEmpty(t, log.warns)
}

func TestNew_ZeroIntervalUsesDefault(t *testing.T) {
	mon := New(&scriptedPoller{steps: []pollStep{{ev: nil}}}, nil, 0)
	assert.Equal(t, DefaultInterval, mon.interval)
}

func TestNextBackoff_DoublesUpToMax(t *testing.T) {
	mon := &Monitor{backoff: 4 * time.Minute, maxBackoff: 5 * time.Minute}
	require.Equal(t, 5*time.Minute, mon.nextBackoff())
	require.Equal(t, 5*time.Minute, mon.nextBackoff())
}
