package ipc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"AdhanCompanion/internal/screen"
	"AdhanCompanion/internal/widget"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultCreateTimeout bounds how long Create waits for the view layer to
// report the window loaded.
const DefaultCreateTimeout = 10 * time.Second

var (
	ErrNoView        = errors.New("no view connected")
	ErrUnknownWindow = errors.New("unknown window")
	ErrCreateTimeout = errors.New("timed out waiting for window")
)

// WindowOptions mirrors the creation flags of widget.WindowSpec.
type WindowOptions struct {
	Frameless   bool `json:"frameless"`
	Resizable   bool `json:"resizable"`
	AlwaysOnTop bool `json:"alwaysOnTop"`
	Transparent bool `json:"transparent"`
	SkipTaskbar bool `json:"skipTaskbar"`
}

// CreatePayload is the window.create event body.
type CreatePayload struct {
	ID      string        `json:"id"`
	Slot    widget.Slot   `json:"slot"`
	Content string        `json:"content"`
	Bounds  screen.Rect   `json:"bounds"`
	Options WindowOptions `json:"options"`
}

// WindowPayload addresses an existing window.
type WindowPayload struct {
	ID     string       `json:"id"`
	Bounds *screen.Rect `json:"bounds,omitempty"`
}

// RemoteHost implements widget.Host by asking the view layer, over the Bus,
// to create windows and waiting for its ack.
type RemoteHost struct {
	bus     *Bus
	timeout time.Duration

	mu      sync.Mutex
	windows map[string]*remoteHandle
}

// NewRemoteHost returns a host publishing on bus. A non-positive timeout
// uses DefaultCreateTimeout.
func NewRemoteHost(bus *Bus, timeout time.Duration) *RemoteHost {
	if timeout <= 0 {
		timeout = DefaultCreateTimeout
	}
	h := &RemoteHost{
		bus:     bus,
		timeout: timeout,
		windows: make(map[string]*remoteHandle),
	}
	bus.OnEmpty(h.DropAll)
	return h
}

// Create publishes window.create and blocks until the view layer acks it.
func (h *RemoteHost) Create(ctx context.Context, spec widget.WindowSpec) (widget.Handle, error) {
	if !h.bus.Alive() {
		return nil, ErrNoView
	}

	w := &remoteHandle{
		id:     uuid.NewString(),
		host:   h,
		spec:   spec,
		bounds: spec.Bounds,
		ack:    make(chan error, 1),
	}

	h.mu.Lock()
	h.windows[w.id] = w
	h.mu.Unlock()

	h.bus.Publish(EventWindowCreate, CreatePayload{
		ID:      w.id,
		Slot:    spec.Slot,
		Content: spec.Content,
		Bounds:  spec.Bounds,
		Options: WindowOptions{
			Frameless:   spec.Frameless,
			Resizable:   spec.Resizable,
			AlwaysOnTop: spec.AlwaysOnTop,
			Transparent: spec.Transparent,
			SkipTaskbar: spec.SkipTaskbar,
		},
	})

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-w.ack:
	case <-timer.C:
		err = ErrCreateTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		h.forget(w.id)
		// Ask the view to discard anything it half-built.
		h.bus.Publish(EventWindowClose, WindowPayload{ID: w.id})
		return nil, fmt.Errorf("create %s window: %w", spec.Slot, err)
	}

	// May already be dead if the view closed it right after ready.
	return w, nil
}

// ===== VIEW-LAYER ACKS =====

// Ready marks window id as loaded.
func (h *RemoteHost) Ready(id string) error {
	w, ok := h.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWindow, id)
	}
	w.alive.Store(true)
	w.signal(nil)
	return nil
}

// Failed reports that window id could not load.
func (h *RemoteHost) Failed(id, reason string) error {
	w, ok := h.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWindow, id)
	}
	if reason == "" {
		reason = "content failed to load"
	}
	w.signal(errors.New(reason))
	return nil
}

// Moved reports a user-driven move of window id.
func (h *RemoteHost) Moved(id string, bounds screen.Rect) error {
	w, ok := h.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWindow, id)
	}
	w.setLocal(bounds)
	if w.spec.OnMoved != nil && w.Alive() {
		w.spec.OnMoved(w, bounds)
	}
	return nil
}

// Closed reports that window id went away on the view side.
func (h *RemoteHost) Closed(id string) error {
	w, ok := h.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWindow, id)
	}
	w.signal(errors.New("window closed before ready"))
	w.finish(false)
	return nil
}

// DropAll treats every window as closed. Called when the view disconnects,
// since its windows die with it.
func (h *RemoteHost) DropAll() {
	h.mu.Lock()
	windows := make([]*remoteHandle, 0, len(h.windows))
	for _, w := range h.windows {
		windows = append(windows, w)
	}
	h.mu.Unlock()

	for _, w := range windows {
		w.signal(ErrNoView)
		w.finish(false)
	}
	if len(windows) > 0 {
		log.Info().Int("windows", len(windows)).Msg("view disconnected; windows released")
	}
}

// Windows returns the number of tracked windows.
func (h *RemoteHost) Windows() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.windows)
}

func (h *RemoteHost) lookup(id string) (*remoteHandle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.windows[id]
	return w, ok
}

func (h *RemoteHost) forget(id string) {
	h.mu.Lock()
	delete(h.windows, id)
	h.mu.Unlock()
}

// ===== HANDLE =====

type remoteHandle struct {
	id   string
	host *RemoteHost
	spec widget.WindowSpec

	alive atomic.Bool
	ack   chan error

	mu     sync.Mutex
	bounds screen.Rect

	closeOnce sync.Once
}

func (w *remoteHandle) ID() string  { return w.id }
func (w *remoteHandle) Alive() bool { return w.alive.Load() }

func (w *remoteHandle) Bounds() screen.Rect {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bounds
}

func (w *remoteHandle) SetBounds(b screen.Rect) {
	if !w.Alive() {
		return
	}
	w.setLocal(b)
	w.host.bus.Publish(EventWindowBounds, WindowPayload{ID: w.id, Bounds: &b})
}

func (w *remoteHandle) Focus() {
	if w.Alive() {
		w.host.bus.Publish(EventWindowFocus, WindowPayload{ID: w.id})
	}
}

// Close asks the view to close the window and fires OnClosed.
func (w *remoteHandle) Close() {
	w.finish(true)
}

func (w *remoteHandle) setLocal(b screen.Rect) {
	w.mu.Lock()
	w.bounds = b
	w.mu.Unlock()
}

// signal delivers the create ack; later acks are dropped.
func (w *remoteHandle) signal(err error) {
	select {
	case w.ack <- err:
	default:
	}
}

func (w *remoteHandle) finish(publish bool) {
	w.closeOnce.Do(func() {
		w.alive.Store(false)
		w.host.forget(w.id)
		if publish {
			w.host.bus.Publish(EventWindowClose, WindowPayload{ID: w.id})
		}
		if w.spec.OnClosed != nil {
			w.spec.OnClosed(w)
		}
	})
}
