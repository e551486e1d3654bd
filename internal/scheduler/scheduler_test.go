package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OCAP2/extracto/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTicker struct {
	c       chan time.Time
	stopped chan struct{}
}

// newManual returns a Manager whose threads are driven by the returned
// channels, one per Start call in order.
func newManual(t *testing.T) (*Manager, chan *manualTicker) {
	t.Helper()
	m := NewManager(time.Hour, nil)
	created := make(chan *manualTicker, 8)
	m.newTicker = func(time.Duration) (<-chan time.Time, func()) {
		mt := &manualTicker{c: make(chan time.Time), stopped: make(chan struct{})}
		created <- mt
		return mt.c, func() { close(mt.stopped) }
	}
	t.Cleanup(m.StopAll)
	return m, created
}

var owner = core.OwnerFromName("alice")

func TestManager_FiresTickFunc(t *testing.T) {
	m, created := newManual(t)
	calls := make(chan core.Owner, 4)

	require.NoError(t, m.Start(owner, func(_ context.Context, o core.Owner) error {
		calls <- o
		return nil
	}))
	mt := <-created

	mt.c <- time.Now()
	assert.Equal(t, owner, <-calls)
	mt.c <- time.Now()
	assert.Equal(t, owner, <-calls)

	info, err := m.Info(owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.Fired)
}

func TestManager_PauseSkipsFires(t *testing.T) {
	m, created := newManual(t)
	calls := make(chan struct{}, 4)
	require.NoError(t, m.Start(owner, func(context.Context, core.Owner) error {
		calls <- struct{}{}
		return nil
	}))
	mt := <-created

	require.NoError(t, m.Pause(owner))
	mt.c <- time.Now()
	mt.c <- time.Now()

	assert.Eventually(t, func() bool {
		info, _ := m.Info(owner)
		return info.Skipped == 2
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, calls)

	require.NoError(t, m.Resume(owner))
	mt.c <- time.Now()
	<-calls

	info, err := m.Info(owner)
	require.NoError(t, err)
	assert.False(t, info.Paused)
	assert.Equal(t, uint64(1), info.Fired)
}

func TestManager_FailedTicksCounted(t *testing.T) {
	m, created := newManual(t)
	done := make(chan struct{}, 1)
	require.NoError(t, m.Start(owner, func(context.Context, core.Owner) error {
		defer func() { done <- struct{}{} }()
		return errors.New("boom")
	}))
	mt := <-created
	mt.c <- time.Now()
	<-done

	assert.Eventually(t, func() bool {
		info, _ := m.Info(owner)
		return info.Failed == 1
	}, time.Second, 5*time.Millisecond)
}

func TestManager_StartTwiceRejected(t *testing.T) {
	m, _ := newManual(t)
	noop := func(context.Context, core.Owner) error { return nil }
	require.NoError(t, m.Start(owner, noop))
	assert.ErrorIs(t, m.Start(owner, noop), ErrThreadExists)
}

func TestManager_StopReleasesTicker(t *testing.T) {
	m, created := newManual(t)
	require.NoError(t, m.Start(owner, func(context.Context, core.Owner) error { return nil }))
	mt := <-created

	require.NoError(t, m.Stop(owner))
	select {
	case <-mt.stopped:
	case <-time.After(time.Second):
		t.Fatal("ticker not stopped")
	}

	assert.Zero(t, m.Len())
	assert.ErrorIs(t, m.Stop(owner), ErrNoThread)
	assert.ErrorIs(t, m.Pause(owner), ErrNoThread)
	assert.ErrorIs(t, m.Resume(owner), ErrNoThread)
}

func TestManager_ThreadsSorted(t *testing.T) {
	m, _ := newManual(t)
	noop := func(context.Context, core.Owner) error { return nil }
	a, b := core.OwnerFromName("a"), core.OwnerFromName("b")
	require.NoError(t, m.Start(a, noop))
	require.NoError(t, m.Start(b, noop))

	threads := m.Threads()
	require.Len(t, threads, 2)
	assert.Less(t, threads[0].Owner.String(), threads[1].Owner.String())
}

func TestNewManager_DefaultInterval(t *testing.T) {
	m := NewManager(0, nil)
	assert.Equal(t, time.Second, m.Interval())
}
