package widget

import (
	"context"

	"AdhanCompanion/internal/screen"
)

// WindowSpec describes an overlay window to create.
type WindowSpec struct {
	Slot    Slot
	Bounds  screen.Rect
	Content string // Route plus query string the content layer renders

	Frameless   bool
	Resizable   bool
	AlwaysOnTop bool
	Transparent bool
	SkipTaskbar bool

	// OnMoved is called after a user-driven move with the new bounds.
	OnMoved func(h Handle, bounds screen.Rect)
	// OnClosed is called exactly once when the window goes away, whoever
	// closed it.
	OnClosed func(h Handle)
}

// Host creates windows. Create returns once the content has loaded or
// failed; a failed create must not leave a window behind.
type Host interface {
	Create(ctx context.Context, spec WindowSpec) (Handle, error)
}

// Handle is a live window owned by the registry.
type Handle interface {
	ID() string
	Alive() bool
	Bounds() screen.Rect
	SetBounds(screen.Rect)
	Focus()
	Close()
}
