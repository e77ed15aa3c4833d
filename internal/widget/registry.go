// Package widget owns the singleton overlay windows: adhan alert, dua after
// adhan, remembrance and the mini clock. The Registry is the only holder of
// window handles; everything else addresses windows by slot name.
package widget

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"AdhanCompanion/internal/screen"
	"AdhanCompanion/internal/settings"

	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownSlot   = errors.New("unknown widget slot")
	ErrNotToggleable = errors.New("widget slot cannot be toggled")
	ErrCreateFailed  = errors.New("widget window creation failed")
)

// animationFrame is the slide animation step.
const animationFrame = 16 * time.Millisecond

// OpenParams are per-open inputs.
type OpenParams struct {
	Query     url.Values    // Passed to the content layer in the content target
	AutoClose time.Duration // Zero keeps the window until closed explicitly
	Corner    Corner        // Resting corner for sliding slots
}

// SlotStatus is a snapshot for status reporting.
type SlotStatus struct {
	Slot     Slot         `json:"slot"`
	Open     bool         `json:"open"`
	WindowID string       `json:"windowId,omitempty"`
	Bounds   *screen.Rect `json:"bounds,omitempty"`
}

type slotState struct {
	spec SlotSpec

	// opMu serializes Open/Close/Toggle so a second Open waits for the first
	// window to exist instead of creating another.
	opMu sync.Mutex

	// Guarded by Registry.mu.
	handle    Handle
	autoClose *time.Timer
	stopAnim  context.CancelFunc
}

// Registry is the arena of widget slots, indexed by slot name.
type Registry struct {
	host    Host
	screens *screen.Provider
	store   settings.Store
	frame   time.Duration

	mu    sync.Mutex
	slots map[Slot]*slotState
}

// NewRegistry builds a registry over specs, or DefaultSlotSpecs when none
// are given.
func NewRegistry(host Host, screens *screen.Provider, store settings.Store, specs ...SlotSpec) *Registry {
	if len(specs) == 0 {
		specs = DefaultSlotSpecs()
	}
	r := &Registry{
		host:    host,
		screens: screens,
		store:   store,
		frame:   animationFrame,
		slots:   make(map[Slot]*slotState, len(specs)),
	}
	for _, spec := range specs {
		r.slots[spec.Slot] = &slotState{spec: spec}
	}
	return r
}

// ===== PUBLIC OPERATIONS =====

// Open shows slot. See Policy for what happens when it is already open.
func (r *Registry) Open(ctx context.Context, slot Slot, params OpenParams) error {
	st, err := r.slot(slot)
	if err != nil {
		return err
	}

	st.opMu.Lock()
	defer st.opMu.Unlock()
	return r.openLocked(ctx, st, params)
}

// Close closes slot if it has a live window. Closing a closed slot is a no-op.
func (r *Registry) Close(_ context.Context, slot Slot) error {
	st, err := r.slot(slot)
	if err != nil {
		return err
	}

	st.opMu.Lock()
	defer st.opMu.Unlock()
	r.closeLocked(st)
	return nil
}

// Toggle flips a toggleable slot and persists the resulting visibility.
func (r *Registry) Toggle(ctx context.Context, slot Slot) (bool, error) {
	st, err := r.slot(slot)
	if err != nil {
		return false, err
	}
	if st.spec.VisibilityKey == "" {
		return false, fmt.Errorf("%w: %s", ErrNotToggleable, slot)
	}

	st.opMu.Lock()
	defer st.opMu.Unlock()

	shown := r.current(st) == nil
	if shown {
		if err := r.openLocked(ctx, st, OpenParams{}); err != nil {
			return false, err
		}
	} else {
		r.closeLocked(st)
	}

	if err := r.store.Set(st.spec.VisibilityKey, shown); err != nil {
		return shown, fmt.Errorf("persist %s visibility: %w", slot, err)
	}
	return shown, nil
}

// IsOpen reports whether slot has a live window.
func (r *Registry) IsOpen(slot Slot) bool {
	st, err := r.slot(slot)
	if err != nil {
		return false
	}
	return r.current(st) != nil
}

// SetScale clamps scale, persists it and resizes the live window, keeping
// it on screen. It returns the applied scale.
func (r *Registry) SetScale(slot Slot, scale float64) (float64, error) {
	st, err := r.slot(slot)
	if err != nil {
		return 0, err
	}
	if st.spec.ScaleKey == "" {
		return 0, fmt.Errorf("widget slot %s has a fixed size", slot)
	}

	applied := ClampScale(scale)
	persistErr := r.store.Set(st.spec.ScaleKey, applied)

	if h := r.current(st); h != nil {
		b := h.Bounds()
		resized := screen.RectAt(b.Origin(), scaledSize(st.spec.Size, applied))
		work := r.screens.DisplayMatching(resized).WorkArea
		clamped := screen.Clamp(resized, work)
		h.SetBounds(clamped)
		if persistErr == nil && !slidesOrUnpersisted(st.spec) {
			persistErr = r.persist(st.spec, clamped)
		}
	}

	if persistErr != nil {
		return applied, fmt.Errorf("persist %s scale: %w", slot, persistErr)
	}
	log.Info().Str("slot", string(slot)).Float64("scale", applied).Msg("widget scale updated")
	return applied, nil
}

// SetMiniClockScale is SetScale for the mini clock.
func (r *Registry) SetMiniClockScale(scale float64) (float64, error) {
	return r.SetScale(SlotMiniClock, scale)
}

// Status returns a snapshot of every slot.
func (r *Registry) Status() []SlotStatus {
	order := []Slot{SlotAdhanAlert, SlotDuaAfterAdhan, SlotRemembrance, SlotMiniClock}
	out := make([]SlotStatus, 0, len(r.slots))
	for _, slot := range order {
		st, ok := r.slots[slot]
		if !ok {
			continue
		}
		status := SlotStatus{Slot: slot}
		if h := r.current(st); h != nil {
			b := h.Bounds()
			status.Open = true
			status.WindowID = h.ID()
			status.Bounds = &b
		}
		out = append(out, status)
	}
	return out
}

// CloseAll closes every slot. Used on shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	for slot := range r.slots {
		_ = r.Close(ctx, slot)
	}
}

// ===== OPEN / CLOSE INTERNALS =====

func (r *Registry) slot(slot Slot) (*slotState, error) {
	st, ok := r.slots[slot]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
	}
	return st, nil
}

// current returns the live handle, dropping a stale one.
func (r *Registry) current(st *slotState) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st.handle != nil && !st.handle.Alive() {
		r.clearLocked(st)
	}
	return st.handle
}

func (r *Registry) openLocked(ctx context.Context, st *slotState, params OpenParams) error {
	slot := st.spec.Slot
	logger := log.With().Str("slot", string(slot)).Logger()

	if h := r.current(st); h != nil {
		if st.spec.Policy == FocusExisting {
			h.Focus()
			logger.Debug().Str("window", h.ID()).Msg("widget already open; focused")
			return nil
		}
		logger.Debug().Str("window", h.ID()).Msg("replacing open widget")
		r.teardown(st, h)
	}

	bounds, slide := r.initialBounds(st.spec, params)

	spec := WindowSpec{
		Slot:        slot,
		Bounds:      bounds,
		Content:     contentTarget(st.spec.Route, params.Query),
		Frameless:   true,
		Resizable:   false,
		AlwaysOnTop: r.alwaysOnTop(st.spec),
		Transparent: true,
		SkipTaskbar: true,
		OnMoved: func(h Handle, b screen.Rect) {
			r.handleMoved(st, h, b)
		},
		OnClosed: func(h Handle) {
			r.handleClosed(st, h)
		},
	}

	h, err := r.host.Create(ctx, spec)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create widget window")
		return fmt.Errorf("%w: %s: %w", ErrCreateFailed, slot, err)
	}
	if !h.Alive() {
		logger.Warn().Str("window", h.ID()).Msg("widget window closed during creation")
		return nil
	}

	r.mu.Lock()
	st.handle = h
	if params.AutoClose > 0 {
		st.autoClose = time.AfterFunc(params.AutoClose, func() { r.expire(st, h) })
	}
	if slide != nil && slide.Duration > 0 {
		animCtx, cancel := context.WithCancel(context.Background())
		st.stopAnim = cancel
		go r.animate(animCtx, h, *slide, bounds.Size())
	}
	r.mu.Unlock()

	if !slidesOrUnpersisted(st.spec) {
		r.persistIfAbsent(st.spec, bounds)
	}

	logger.Info().
		Str("window", h.ID()).
		Str("content", spec.Content).
		Dur("auto_close", params.AutoClose).
		Interface("bounds", bounds).
		Msg("widget opened")
	return nil
}

func (r *Registry) closeLocked(st *slotState) {
	if h := r.current(st); h != nil {
		r.teardown(st, h)
		log.Info().Str("slot", string(st.spec.Slot)).Str("window", h.ID()).Msg("widget closed")
	}
}

// teardown cancels timers, releases the slot and closes h. The close
// observer fires afterwards and finds the slot already released.
func (r *Registry) teardown(st *slotState, h Handle) {
	r.mu.Lock()
	if st.handle == h {
		r.clearLocked(st)
	}
	r.mu.Unlock()

	h.Close()
}

// clearLocked must be called with r.mu held.
func (r *Registry) clearLocked(st *slotState) {
	st.handle = nil
	if st.autoClose != nil {
		st.autoClose.Stop()
		st.autoClose = nil
	}
	if st.stopAnim != nil {
		st.stopAnim()
		st.stopAnim = nil
	}
}

// expire is the auto-close path. It only closes the window it was armed
// for; a replacement window keeps its own timer.
func (r *Registry) expire(st *slotState, h Handle) {
	st.opMu.Lock()
	defer st.opMu.Unlock()

	if r.current(st) != h {
		return
	}
	r.teardown(st, h)
	log.Info().Str("slot", string(st.spec.Slot)).Str("window", h.ID()).Msg("widget auto-closed")
}

// ===== OBSERVERS =====

func (r *Registry) handleClosed(st *slotState, h Handle) {
	r.mu.Lock()
	released := st.handle == h
	if released {
		r.clearLocked(st)
	}
	r.mu.Unlock()

	if released {
		log.Info().Str("slot", string(st.spec.Slot)).Str("window", h.ID()).Msg("widget closed by user")
	}
}

// handleMoved clamps the window to the display it now sits on and persists
// the position.
func (r *Registry) handleMoved(st *slotState, h Handle, b screen.Rect) {
	r.mu.Lock()
	current := st.handle == h
	r.mu.Unlock()
	if !current {
		return
	}

	work := r.screens.DisplayMatching(b).WorkArea
	clamped := screen.Clamp(b, work)
	if clamped != b {
		h.SetBounds(clamped)
	}

	if slidesOrUnpersisted(st.spec) {
		return
	}
	if err := r.persist(st.spec, clamped); err != nil {
		log.Warn().Err(err).Str("slot", string(st.spec.Slot)).Msg("failed to persist widget position")
	}
}

// ===== GEOMETRY =====

func (r *Registry) sizeFor(spec SlotSpec) screen.Size {
	if spec.ScaleKey == "" {
		return spec.Size
	}
	scale := ClampScale(settings.Float(r.store, spec.ScaleKey, 1))
	return scaledSize(spec.Size, scale)
}

// initialBounds picks where a new window appears: the slide start for
// sliding slots, else the persisted position clamped to the display it falls
// on, else the default corner of the primary display.
func (r *Registry) initialBounds(spec SlotSpec, params OpenParams) (screen.Rect, *Slide) {
	size := r.sizeFor(spec)
	primary := r.screens.Primary().WorkArea

	if spec.Slides {
		corner := params.Corner
		if corner == "" {
			corner = BottomRight
		}
		slide := SlideFor(corner, primary, size)
		return screen.RectAt(slide.From, size), &slide
	}

	if spec.BoundsKey != "" {
		var g Geometry
		found, err := r.store.Get(spec.BoundsKey, &g)
		if err != nil {
			log.Warn().Err(err).Str("slot", string(spec.Slot)).Msg("ignoring unreadable widget geometry")
		}
		if found && err == nil {
			rect := screen.RectAt(screen.Point{X: g.X, Y: g.Y}, size)
			work := r.screens.DisplayMatching(rect).WorkArea
			return screen.Clamp(rect, work), nil
		}
	}

	return screen.RectAt(DefaultPosition(primary, size), size), nil
}

func (r *Registry) alwaysOnTop(spec SlotSpec) bool {
	if spec.OnTopKey == "" {
		return true
	}
	return settings.Bool(r.store, spec.OnTopKey, true)
}

func (r *Registry) persist(spec SlotSpec, b screen.Rect) error {
	g := Geometry{X: b.X, Y: b.Y}
	if spec.ScaleKey != "" {
		scale := ClampScale(settings.Float(r.store, spec.ScaleKey, 1))
		g.SizeScale = &scale
	}
	return r.store.Set(spec.BoundsKey, g)
}

func (r *Registry) persistIfAbsent(spec SlotSpec, b screen.Rect) {
	var g Geometry
	if found, _ := r.store.Get(spec.BoundsKey, &g); found {
		return
	}
	if err := r.persist(spec, b); err != nil {
		log.Warn().Err(err).Str("slot", string(spec.Slot)).Msg("failed to persist initial widget position")
	}
}

func slidesOrUnpersisted(spec SlotSpec) bool {
	return spec.Slides || spec.BoundsKey == ""
}

// animate moves h along s until done or ctx is canceled.
func (r *Registry) animate(ctx context.Context, h Handle, s Slide, size screen.Size) {
	ticker := time.NewTicker(r.frame)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !h.Alive() {
				return
			}
			elapsed := now.Sub(start)
			h.SetBounds(screen.RectAt(PositionAt(s, elapsed), size))
			if elapsed >= s.Duration {
				return
			}
		}
	}
}

func contentTarget(route string, query url.Values) string {
	if len(query) == 0 {
		return route
	}
	return route + "?" + query.Encode()
}
