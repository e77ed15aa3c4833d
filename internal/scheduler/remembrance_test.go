package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemembranceWindow struct {
	mu    sync.Mutex
	shown []Zikr
	hides int
}

func (w *fakeRemembranceWindow) ShowRemembrance(_ context.Context, item Zikr) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shown = append(w.shown, item)
	return nil
}

func (w *fakeRemembranceWindow) HideRemembrance(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hides++
	return nil
}

func (w *fakeRemembranceWindow) shownCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.shown)
}

func newTestRemembrance(t *testing.T) (*Remembrance, *fakeRemembranceWindow, *atomic.Bool) {
	t.Helper()
	runner := newStartedRunner(t)
	window := &fakeRemembranceWindow{}
	enabled := &atomic.Bool{}
	enabled.Store(true)
	r := NewRemembrance(runner, window, enabled.Load)
	return r, window, enabled
}

func TestRemembrance_DisabledMidIntervalSkipsFire(t *testing.T) {
	r, window, enabled := newTestRemembrance(t)
	require.NoError(t, r.Start(15))

	// Five minutes in the user turns the feature off without a Stop call.
	enabled.Store(false)

	// Minute fifteen.
	require.NoError(t, r.fire(context.Background()))
	assert.Equal(t, 0, window.shownCount())
	assert.True(t, r.Running())
}

func TestRemembrance_DisabledFlagSuppressesRealTimer(t *testing.T) {
	r, window, enabled := newTestRemembrance(t)
	enabled.Store(false)
	require.NoError(t, r.startEvery(5*time.Millisecond))

	assert.Never(t, func() bool { return window.shownCount() > 0 }, 60*time.Millisecond, 5*time.Millisecond)
}

func TestRemembrance_FirePicksFromContentSet(t *testing.T) {
	r, window, _ := newTestRemembrance(t)
	r.pick = func(int) int { return 2 }

	require.NoError(t, r.fire(context.Background()))
	require.Equal(t, 1, window.shownCount())
	assert.Equal(t, DefaultAzkar[2], window.shown[0])
}

func TestRemembrance_TimerFires(t *testing.T) {
	r, window, _ := newTestRemembrance(t)
	require.NoError(t, r.startEvery(5*time.Millisecond))

	assert.Eventually(t, func() bool { return window.shownCount() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestRemembrance_StartRestartsAndStopCloses(t *testing.T) {
	r, window, _ := newTestRemembrance(t)

	require.NoError(t, r.Start(15))
	require.NoError(t, r.Start(30))
	assert.Equal(t, 30*time.Minute, r.Interval())
	assert.Len(t, r.runner.ListTasks(), 1)

	require.NoError(t, r.Stop(context.Background()))
	assert.False(t, r.Running())
	assert.False(t, r.runner.HasTask(RemembranceTaskID))
	assert.Equal(t, 1, window.hides)
}

func TestRemembrance_StartRejectsZeroInterval(t *testing.T) {
	r, _, _ := newTestRemembrance(t)
	assert.Error(t, r.Start(0))
}

func TestRemembrance_Apply(t *testing.T) {
	ctx := context.Background()
	r, window, _ := newTestRemembrance(t)
	on, off := true, false
	twenty := 20

	// Interval change while stopped does nothing.
	require.NoError(t, r.Apply(ctx, &twenty, nil, 15))
	assert.False(t, r.Running())

	// Enabling without interval uses the fallback.
	require.NoError(t, r.Apply(ctx, nil, &on, 15))
	assert.Equal(t, 15*time.Minute, r.Interval())

	// Interval change while running restarts.
	require.NoError(t, r.Apply(ctx, &twenty, nil, 15))
	assert.Equal(t, 20*time.Minute, r.Interval())

	// Disabling stops and closes.
	require.NoError(t, r.Apply(ctx, nil, &off, 15))
	assert.False(t, r.Running())
	assert.Equal(t, 1, window.hides)
}
