// Package screen holds display geometry reported by the view layer and the
// rectangle helpers the widget registry positions windows with.
package screen

import (
	"sync"
)

// Point is a screen coordinate in device-independent pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a width/height pair.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Origin returns the top-left corner.
func (r Rect) Origin() Point { return Point{X: r.X, Y: r.Y} }

// Size returns the rectangle dimensions.
func (r Rect) Size() Size { return Size{Width: r.Width, Height: r.Height} }

// Right is the exclusive right edge.
func (r Rect) Right() int { return r.X + r.Width }

// Bottom is the exclusive bottom edge.
func (r Rect) Bottom() int { return r.Y + r.Height }

// Intersect returns the overlap of r and o, or the zero Rect.
func (r Rect) Intersect(o Rect) Rect {
	x0, y0 := max(r.X, o.X), max(r.Y, o.Y)
	x1, y1 := min(r.Right(), o.Right()), min(r.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Area is width times height.
func (r Rect) Area() int { return r.Width * r.Height }

// RectAt places a size at a point.
func RectAt(p Point, s Size) Rect {
	return Rect{X: p.X, Y: p.Y, Width: s.Width, Height: s.Height}
}

// Clamp moves r so that it lies inside area. A rectangle larger than area
// is pinned to area's top-left corner on that axis.
func Clamp(r, area Rect) Rect {
	r.X = clampAxis(r.X, r.Width, area.X, area.Width)
	r.Y = clampAxis(r.Y, r.Height, area.Y, area.Height)
	return r
}

func clampAxis(pos, length, start, span int) int {
	if pos+length > start+span {
		pos = start + span - length
	}
	if pos < start {
		pos = start
	}
	return pos
}

// Display is one monitor.
type Display struct {
	ID       string `json:"id"`
	Bounds   Rect   `json:"bounds"`
	WorkArea Rect   `json:"workArea"` // Bounds minus taskbar/dock
	Primary  bool   `json:"primary"`
}

// DefaultDisplay is assumed until the view layer reports real geometry.
var DefaultDisplay = Display{
	ID:       "default",
	Bounds:   Rect{Width: 1920, Height: 1080},
	WorkArea: Rect{Width: 1920, Height: 1040},
	Primary:  true,
}

// Provider answers geometry queries. It is safe for concurrent use.
type Provider struct {
	mu       sync.RWMutex
	displays []Display
}

// NewProvider starts with the given displays, or DefaultDisplay when none.
func NewProvider(displays ...Display) *Provider {
	p := &Provider{}
	p.SetDisplays(displays)
	return p
}

// SetDisplays replaces the known displays. An empty list restores
// DefaultDisplay; a list without a primary marks the first one primary.
func (p *Provider) SetDisplays(displays []Display) {
	cp := make([]Display, 0, len(displays))
	hasPrimary := false
	for _, d := range displays {
		if d.WorkArea.Area() == 0 {
			d.WorkArea = d.Bounds
		}
		if d.Primary {
			if hasPrimary {
				d.Primary = false
			}
			hasPrimary = true
		}
		cp = append(cp, d)
	}
	if len(cp) == 0 {
		cp = append(cp, DefaultDisplay)
	} else if !hasPrimary {
		cp[0].Primary = true
	}

	p.mu.Lock()
	p.displays = cp
	p.mu.Unlock()
}

// Displays returns a copy of the known displays.
func (p *Provider) Displays() []Display {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Display(nil), p.displays...)
}

// Primary returns the primary display.
func (p *Provider) Primary() Display {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, d := range p.displays {
		if d.Primary {
			return d
		}
	}
	return p.displays[0]
}

// DisplayMatching returns the display with the largest overlap with r; if r
// is entirely off-screen, the display whose work area is nearest to r's
// centre.
func (p *Provider) DisplayMatching(r Rect) Display {
	p.mu.RLock()
	defer p.mu.RUnlock()

	best, bestArea := -1, 0
	for i, d := range p.displays {
		if a := r.Intersect(d.Bounds).Area(); a > bestArea {
			best, bestArea = i, a
		}
	}
	if best >= 0 {
		return p.displays[best]
	}

	cx, cy := r.X+r.Width/2, r.Y+r.Height/2
	best, bestDist := 0, -1
	for i, d := range p.displays {
		dx := distanceToSpan(cx, d.WorkArea.X, d.WorkArea.Right())
		dy := distanceToSpan(cy, d.WorkArea.Y, d.WorkArea.Bottom())
		if dist := dx*dx + dy*dy; bestDist < 0 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return p.displays[best]
}

func distanceToSpan(v, lo, hi int) int {
	switch {
	case v < lo:
		return lo - v
	case v > hi:
		return v - hi
	default:
		return 0
	}
}
