package widget

import (
	"time"

	"AdhanCompanion/internal/screen"
)

// Margin is the gap between a widget and the work-area edge.
const Margin = 20

// SlideDuration is how long the remembrance slide-in takes.
const SlideDuration = 400 * time.Millisecond

// Corner is where a sliding widget rests.
type Corner string

const (
	TopLeft     Corner = "top-left"
	TopRight    Corner = "top-right"
	BottomLeft  Corner = "bottom-left"
	BottomRight Corner = "bottom-right"
	Center      Corner = "center"
)

// ParseCorner accepts the stored zikr-position value; unknown values fall
// back to bottom-right.
func ParseCorner(s string) Corner {
	switch c := Corner(s); c {
	case TopLeft, TopRight, BottomLeft, BottomRight, Center:
		return c
	default:
		return BottomRight
	}
}

// Geometry is what gets persisted per slot.
type Geometry struct {
	X         int      `json:"x"`
	Y         int      `json:"y"`
	SizeScale *float64 `json:"sizeScale,omitempty"`
}

// DefaultPosition is the bottom-right corner of work, inset by Margin.
func DefaultPosition(work screen.Rect, size screen.Size) screen.Point {
	return CornerTarget(BottomRight, work, size)
}

// CornerTarget is the resting position for a widget of size at corner c.
func CornerTarget(c Corner, work screen.Rect, size screen.Size) screen.Point {
	left := work.X + Margin
	right := work.Right() - size.Width - Margin
	top := work.Y + Margin
	bottom := work.Bottom() - size.Height - Margin

	switch c {
	case TopLeft:
		return screen.Point{X: left, Y: top}
	case TopRight:
		return screen.Point{X: right, Y: top}
	case BottomLeft:
		return screen.Point{X: left, Y: bottom}
	case Center:
		return screen.Point{
			X: work.X + (work.Width-size.Width)/2,
			Y: work.Y + (work.Height-size.Height)/2,
		}
	default:
		return screen.Point{X: right, Y: bottom}
	}
}

// Slide is a horizontal slide-in from From to To.
type Slide struct {
	From     screen.Point
	To       screen.Point
	Duration time.Duration
}

// SlideFor computes the slide for corner c. Left corners enter from fully
// beyond the left edge of work, right corners from beyond the right edge;
// Center does not move.
func SlideFor(c Corner, work screen.Rect, size screen.Size) Slide {
	to := CornerTarget(c, work, size)
	from := to

	switch c {
	case TopLeft, BottomLeft:
		from.X = work.X - size.Width
	case TopRight, BottomRight:
		from.X = work.Right()
	}

	duration := SlideDuration
	if from == to {
		duration = 0
	}
	return Slide{From: from, To: to, Duration: duration}
}

// PositionAt returns the position elapsed into s, eased out cubically.
func PositionAt(s Slide, elapsed time.Duration) screen.Point {
	if s.Duration <= 0 || elapsed >= s.Duration {
		return s.To
	}
	if elapsed <= 0 {
		return s.From
	}

	t := float64(elapsed) / float64(s.Duration)
	eased := 1 - (1-t)*(1-t)*(1-t)

	return screen.Point{
		X: s.From.X + int(float64(s.To.X-s.From.X)*eased+0.5*sign(s.To.X-s.From.X)),
		Y: s.From.Y + int(float64(s.To.Y-s.From.Y)*eased+0.5*sign(s.To.Y-s.From.Y)),
	}
}

func sign(v int) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
