package widget

import (
	"AdhanCompanion/internal/screen"
	"AdhanCompanion/internal/settings"
)

// Slot names a singleton overlay window.
type Slot string

const (
	SlotAdhanAlert    Slot = "adhanAlert"
	SlotDuaAfterAdhan Slot = "duaAfterAdhan"
	SlotRemembrance   Slot = "remembrance"
	SlotMiniClock     Slot = "miniClock"
)

// Policy decides what Open does when the slot already has a live window.
type Policy int

const (
	// FocusExisting brings the live window to front and ignores new params.
	FocusExisting Policy = iota
	// Replace closes the live window before creating a new one.
	Replace
)

func (p Policy) String() string {
	if p == Replace {
		return "replace"
	}
	return "focus-existing"
}

// Scale bounds for the mini clock.
const (
	MinScale = 0.7
	MaxScale = 1.5
)

// SlotSpec is the static description of a slot.
type SlotSpec struct {
	Slot   Slot
	Policy Policy
	Size   screen.Size // Base size before scaling
	Route  string      // Content route the window loads

	BoundsKey     string // Settings key for persisted geometry; empty disables
	VisibilityKey string // Settings key toggled by Toggle; empty disables Toggle
	OnTopKey      string // Settings key overriding always-on-top; empty means always on top
	ScaleKey      string // Settings key holding the size scale; empty means fixed size
	Slides        bool   // Positioned by corner with a slide-in instead of persisted geometry
}

// DefaultSlotSpecs returns the four overlay slots.
func DefaultSlotSpecs() []SlotSpec {
	return []SlotSpec{
		{
			Slot:      SlotAdhanAlert,
			Policy:    Replace,
			Size:      screen.Size{Width: 360, Height: 220},
			Route:     "/widgets/adhan",
			BoundsKey: settings.KeyAdhanWidgetBounds,
		},
		{
			Slot:      SlotDuaAfterAdhan,
			Policy:    FocusExisting,
			Size:      screen.Size{Width: 380, Height: 260},
			Route:     "/widgets/dua",
			BoundsKey: settings.KeyDuaWidgetBounds,
		},
		{
			Slot:   SlotRemembrance,
			Policy: Replace,
			Size:   screen.Size{Width: 320, Height: 140},
			Route:  "/widgets/zikr",
			Slides: true,
		},
		{
			Slot:          SlotMiniClock,
			Policy:        FocusExisting,
			Size:          screen.Size{Width: 220, Height: 90},
			Route:         "/widgets/mini-clock",
			BoundsKey:     settings.KeyMiniWidgetBounds,
			VisibilityKey: settings.KeyShowMiniWidget,
			OnTopKey:      settings.KeyMiniWidgetOnTop,
			ScaleKey:      settings.KeyMiniWidgetSize,
		},
	}
}

// ClampScale bounds a size scale to [MinScale, MaxScale].
func ClampScale(scale float64) float64 {
	switch {
	case scale < MinScale:
		return MinScale
	case scale > MaxScale:
		return MaxScale
	default:
		return scale
	}
}

func scaledSize(base screen.Size, scale float64) screen.Size {
	return screen.Size{
		Width:  int(float64(base.Width)*scale + 0.5),
		Height: int(float64(base.Height)*scale + 0.5),
	}
}
