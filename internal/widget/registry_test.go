package widget

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"AdhanCompanion/internal/screen"
	"AdhanCompanion/internal/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===== FAKES =====

type fakeHandle struct {
	id   string
	spec WindowSpec

	alive   atomic.Bool
	focused atomic.Int32
	closes  atomic.Int32

	mu     sync.Mutex
	bounds screen.Rect
	moves  []screen.Rect

	closeOnce sync.Once
}

func (h *fakeHandle) ID() string  { return h.id }
func (h *fakeHandle) Alive() bool { return h.alive.Load() }
func (h *fakeHandle) Focus()      { h.focused.Add(1) }

func (h *fakeHandle) Bounds() screen.Rect {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bounds
}

func (h *fakeHandle) SetBounds(b screen.Rect) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bounds = b
	h.moves = append(h.moves, b)
}

func (h *fakeHandle) Close() {
	h.closeOnce.Do(func() {
		h.alive.Store(false)
		h.closes.Add(1)
		if h.spec.OnClosed != nil {
			h.spec.OnClosed(h)
		}
	})
}

// userMove simulates the user dragging the window.
func (h *fakeHandle) userMove(b screen.Rect) {
	h.SetBounds(b)
	h.spec.OnMoved(h, b)
}

type fakeHost struct {
	mu      sync.Mutex
	handles []*fakeHandle
	err     error
	dead    bool
}

func (f *fakeHost) Create(_ context.Context, spec WindowSpec) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	h := &fakeHandle{id: fmt.Sprintf("w%d", len(f.handles)+1), spec: spec, bounds: spec.Bounds}
	h.alive.Store(!f.dead)
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *fakeHost) created() []*fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeHandle(nil), f.handles...)
}

func (f *fakeHost) last() *fakeHandle {
	hs := f.created()
	if len(hs) == 0 {
		return nil
	}
	return hs[len(hs)-1]
}

func newTestStore(t *testing.T) *settings.FileStore {
	t.Helper()
	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	return store
}

func newTestRegistry(t *testing.T, specs ...SlotSpec) (*Registry, *fakeHost, *settings.FileStore) {
	t.Helper()
	host := &fakeHost{}
	store := newTestStore(t)
	r := NewRegistry(host, screen.NewProvider(), store, specs...)
	r.frame = time.Millisecond
	t.Cleanup(func() { r.CloseAll(context.Background()) })
	return r, host, store
}

func liveCount(host *fakeHost) int {
	n := 0
	for _, h := range host.created() {
		if h.Alive() {
			n++
		}
	}
	return n
}

// ===== OPEN POLICIES =====

func TestRegistry_ReplaceLeavesOneLiveWindow(t *testing.T) {
	ctx := context.Background()
	r, host, _ := newTestRegistry(t)

	require.NoError(t, r.Open(ctx, SlotAdhanAlert, OpenParams{Query: url.Values{"prayer": {"Fajr"}}}))
	require.NoError(t, r.Open(ctx, SlotAdhanAlert, OpenParams{Query: url.Values{"prayer": {"Dhuhr"}}}))

	hs := host.created()
	require.Len(t, hs, 2)
	assert.False(t, hs[0].Alive())
	assert.EqualValues(t, 1, hs[0].closes.Load())
	assert.True(t, hs[1].Alive())
	assert.Equal(t, 1, liveCount(host))
	assert.Equal(t, "/widgets/adhan?prayer=Dhuhr", hs[1].spec.Content)
	assert.True(t, r.IsOpen(SlotAdhanAlert))
}

func TestRegistry_FocusExistingKeepsWindow(t *testing.T) {
	ctx := context.Background()
	r, host, _ := newTestRegistry(t)

	require.NoError(t, r.Open(ctx, SlotDuaAfterAdhan, OpenParams{}))
	require.NoError(t, r.Open(ctx, SlotDuaAfterAdhan, OpenParams{Query: url.Values{"x": {"1"}}}))

	hs := host.created()
	require.Len(t, hs, 1)
	assert.True(t, hs[0].Alive())
	assert.EqualValues(t, 1, hs[0].focused.Load())
}

func TestRegistry_ConcurrentOpensCreateOneWindow(t *testing.T) {
	ctx := context.Background()
	r, host, _ := newTestRegistry(t)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Open(ctx, SlotMiniClock, OpenParams{}))
		}()
	}
	wg.Wait()

	assert.Len(t, host.created(), 1)
}

func TestRegistry_WindowOptions(t *testing.T) {
	r, host, store := newTestRegistry(t)
	require.NoError(t, store.Set(settings.KeyMiniWidgetOnTop, false))

	require.NoError(t, r.Open(context.Background(), SlotMiniClock, OpenParams{}))

	spec := host.last().spec
	assert.Equal(t, SlotMiniClock, spec.Slot)
	assert.Equal(t, "/widgets/mini-clock", spec.Content)
	assert.True(t, spec.Frameless)
	assert.False(t, spec.Resizable)
	assert.True(t, spec.Transparent)
	assert.True(t, spec.SkipTaskbar)
	assert.False(t, spec.AlwaysOnTop)
}

// ===== CLOSE =====

func TestRegistry_CloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, host, _ := newTestRegistry(t)

	require.NoError(t, r.Open(ctx, SlotDuaAfterAdhan, OpenParams{}))
	require.NoError(t, r.Close(ctx, SlotDuaAfterAdhan))
	require.NoError(t, r.Close(ctx, SlotDuaAfterAdhan))
	require.NoError(t, r.Close(ctx, SlotRemembrance))

	assert.EqualValues(t, 1, host.last().closes.Load())
	assert.False(t, r.IsOpen(SlotDuaAfterAdhan))
}

func TestRegistry_UserCloseReleasesSlot(t *testing.T) {
	ctx := context.Background()
	r, host, _ := newTestRegistry(t)

	require.NoError(t, r.Open(ctx, SlotDuaAfterAdhan, OpenParams{}))
	host.last().Close()
	assert.False(t, r.IsOpen(SlotDuaAfterAdhan))

	// The next open creates a fresh window instead of focusing a dead one.
	require.NoError(t, r.Open(ctx, SlotDuaAfterAdhan, OpenParams{}))
	assert.Len(t, host.created(), 2)
	assert.True(t, r.IsOpen(SlotDuaAfterAdhan))
}

func TestRegistry_StaleCloseDoesNotReleaseReplacement(t *testing.T) {
	ctx := context.Background()
	r, host, _ := newTestRegistry(t)

	require.NoError(t, r.Open(ctx, SlotAdhanAlert, OpenParams{}))
	first := host.last()
	require.NoError(t, r.Open(ctx, SlotAdhanAlert, OpenParams{}))

	// A late close report for the replaced window.
	first.spec.OnClosed(first)
	assert.True(t, r.IsOpen(SlotAdhanAlert))
}

func TestRegistry_AutoClose(t *testing.T) {
	r, host, _ := newTestRegistry(t)

	require.NoError(t, r.Open(context.Background(), SlotAdhanAlert, OpenParams{AutoClose: 20 * time.Millisecond}))
	h := host.last()

	assert.Eventually(t, func() bool { return !h.Alive() }, time.Second, 5*time.Millisecond)
	assert.False(t, r.IsOpen(SlotAdhanAlert))
}

func TestRegistry_AutoCloseTimerBelongsToItsWindow(t *testing.T) {
	ctx := context.Background()
	r, host, _ := newTestRegistry(t)

	require.NoError(t, r.Open(ctx, SlotAdhanAlert, OpenParams{AutoClose: 30 * time.Millisecond}))
	require.NoError(t, r.Open(ctx, SlotAdhanAlert, OpenParams{}))
	second := host.last()

	assert.Never(t, func() bool { return !second.Alive() }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestRegistry_CreateFailureLeavesSlotEmpty(t *testing.T) {
	r, host, _ := newTestRegistry(t)
	host.err = errors.New("content failed to load")

	err := r.Open(context.Background(), SlotAdhanAlert, OpenParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCreateFailed)
	assert.False(t, r.IsOpen(SlotAdhanAlert))

	host.err = nil
	require.NoError(t, r.Open(context.Background(), SlotAdhanAlert, OpenParams{}))
	assert.True(t, r.IsOpen(SlotAdhanAlert))
}

func TestRegistry_WindowDeadAfterCreateIsNotRegistered(t *testing.T) {
	r, host, _ := newTestRegistry(t)
	host.dead = true

	require.NoError(t, r.Open(context.Background(), SlotMiniClock, OpenParams{}))
	assert.False(t, r.IsOpen(SlotMiniClock))
}

func TestRegistry_UnknownSlot(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	err := r.Open(context.Background(), Slot("settings"), OpenParams{})
	assert.ErrorIs(t, err, ErrUnknownSlot)
}

// ===== GEOMETRY =====

func TestRegistry_PersistedPositionClampedOnOpen(t *testing.T) {
	full := screen.Rect{Width: 1920, Height: 1080}
	spec := SlotSpec{
		Slot:      SlotDuaAfterAdhan,
		Policy:    FocusExisting,
		Size:      screen.Size{Width: 300, Height: 150},
		Route:     "/widgets/dua",
		BoundsKey: settings.KeyDuaWidgetBounds,
	}
	host := &fakeHost{}
	store := newTestStore(t)
	r := NewRegistry(host, screen.NewProvider(screen.Display{ID: "d1", Bounds: full, WorkArea: full}), store, spec)

	require.NoError(t, store.Set(settings.KeyDuaWidgetBounds, Geometry{X: 1900, Y: 1050}))
	require.NoError(t, r.Open(context.Background(), SlotDuaAfterAdhan, OpenParams{}))

	assert.Equal(t, screen.Rect{X: 1620, Y: 930, Width: 300, Height: 150}, host.last().spec.Bounds)
}

func TestRegistry_DefaultPositionPersistedOnFirstOpen(t *testing.T) {
	r, host, store := newTestRegistry(t)

	require.NoError(t, r.Open(context.Background(), SlotDuaAfterAdhan, OpenParams{}))

	want := screen.Rect{X: 1920 - 380 - Margin, Y: 1040 - 260 - Margin, Width: 380, Height: 260}
	assert.Equal(t, want, host.last().spec.Bounds)

	var g Geometry
	found, err := store.Get(settings.KeyDuaWidgetBounds, &g)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want.X, g.X)
	assert.Equal(t, want.Y, g.Y)
}

func TestRegistry_MoveClampsAndPersists(t *testing.T) {
	r, host, store := newTestRegistry(t)
	require.NoError(t, r.Open(context.Background(), SlotMiniClock, OpenParams{}))
	h := host.last()

	h.userMove(screen.Rect{X: 1800, Y: -40, Width: 220, Height: 90})

	assert.Equal(t, screen.Rect{X: 1700, Y: 0, Width: 220, Height: 90}, h.Bounds())
	var g Geometry
	_, err := store.Get(settings.KeyMiniWidgetBounds, &g)
	require.NoError(t, err)
	assert.Equal(t, 1700, g.X)
	assert.Equal(t, 0, g.Y)
	require.NotNil(t, g.SizeScale)
	assert.InDelta(t, 1.0, *g.SizeScale, 1e-9)
}

func TestRegistry_RemembranceSlidesToCorner(t *testing.T) {
	r, host, store := newTestRegistry(t)

	require.NoError(t, r.Open(context.Background(), SlotRemembrance, OpenParams{Corner: TopLeft}))
	h := host.last()

	size := screen.Size{Width: 320, Height: 140}
	assert.Equal(t, screen.Point{X: -320, Y: Margin}, h.spec.Bounds.Origin())
	assert.Eventually(t, func() bool {
		return h.Bounds() == screen.RectAt(screen.Point{X: Margin, Y: Margin}, size)
	}, 2*time.Second, 10*time.Millisecond)

	// Sliding slots never persist a position.
	assert.Empty(t, store.Keys())
}

// ===== TOGGLE / SCALE =====

func TestRegistry_TogglePersistsVisibility(t *testing.T) {
	ctx := context.Background()
	r, _, store := newTestRegistry(t)

	shown, err := r.Toggle(ctx, SlotMiniClock)
	require.NoError(t, err)
	assert.True(t, shown)
	assert.True(t, r.IsOpen(SlotMiniClock))
	assert.True(t, settings.Bool(store, settings.KeyShowMiniWidget, false))

	shown, err = r.Toggle(ctx, SlotMiniClock)
	require.NoError(t, err)
	assert.False(t, shown)
	assert.False(t, r.IsOpen(SlotMiniClock))
	assert.False(t, settings.Bool(store, settings.KeyShowMiniWidget, true))
}

func TestRegistry_ToggleRejectsAlertSlots(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	_, err := r.Toggle(context.Background(), SlotAdhanAlert)
	assert.ErrorIs(t, err, ErrNotToggleable)
}

func TestRegistry_SetScaleClamps(t *testing.T) {
	r, host, store := newTestRegistry(t)
	require.NoError(t, r.Open(context.Background(), SlotMiniClock, OpenParams{}))
	h := host.last()

	applied, err := r.SetScale(SlotMiniClock, 2.0)
	require.NoError(t, err)
	assert.InDelta(t, MaxScale, applied, 1e-9)
	assert.InDelta(t, MaxScale, settings.Float(store, settings.KeyMiniWidgetSize, 0), 1e-9)
	assert.Equal(t, screen.Size{Width: 330, Height: 135}, h.Bounds().Size())

	applied, err = r.SetScale(SlotMiniClock, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, MinScale, applied, 1e-9)
	assert.Equal(t, screen.Size{Width: 154, Height: 63}, h.Bounds().Size())
}

func TestRegistry_SetScaleResizedWindowStaysOnScreen(t *testing.T) {
	r, host, _ := newTestRegistry(t)
	require.NoError(t, r.Open(context.Background(), SlotMiniClock, OpenParams{}))
	h := host.last()

	_, err := r.SetScale(SlotMiniClock, 1.5)
	require.NoError(t, err)

	b := h.Bounds()
	assert.LessOrEqual(t, b.Right(), 1920)
	assert.LessOrEqual(t, b.Bottom(), 1040)
}

func TestRegistry_SetScaleUpdatesPersistedGeometry(t *testing.T) {
	r, host, store := newTestRegistry(t)
	require.NoError(t, r.Open(context.Background(), SlotMiniClock, OpenParams{}))

	_, err := r.SetScale(SlotMiniClock, 1.5)
	require.NoError(t, err)

	b := host.last().Bounds()
	var g Geometry
	found, err := store.Get(settings.KeyMiniWidgetBounds, &g)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, b.X, g.X)
	assert.Equal(t, b.Y, g.Y)
	require.NotNil(t, g.SizeScale)
	assert.InDelta(t, 1.5, *g.SizeScale, 1e-9)
}

func TestRegistry_SetScaleFixedSlot(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	_, err := r.SetScale(SlotAdhanAlert, 1.2)
	assert.Error(t, err)
}

func TestRegistry_Status(t *testing.T) {
	r, host, _ := newTestRegistry(t)
	require.NoError(t, r.Open(context.Background(), SlotMiniClock, OpenParams{}))

	status := r.Status()
	require.Len(t, status, 4)
	assert.Equal(t, SlotAdhanAlert, status[0].Slot)
	assert.False(t, status[0].Open)
	assert.Equal(t, SlotMiniClock, status[3].Slot)
	assert.True(t, status[3].Open)
	assert.Equal(t, host.last().ID(), status[3].WindowID)
}
