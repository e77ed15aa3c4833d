package screen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp_KeepsWidgetInsideWorkArea(t *testing.T) {
	area := Rect{Width: 1920, Height: 1080}
	got := Clamp(Rect{X: 1900, Y: 1050, Width: 300, Height: 150}, area)

	assert.LessOrEqual(t, got.Right(), 1920)
	assert.LessOrEqual(t, got.Bottom(), 1080)
	assert.Equal(t, Rect{X: 1620, Y: 930, Width: 300, Height: 150}, got)
}

func TestClamp_NegativeAndOversized(t *testing.T) {
	area := Rect{X: 0, Y: 40, Width: 800, Height: 600}

	assert.Equal(t, Rect{X: 0, Y: 40, Width: 100, Height: 100},
		Clamp(Rect{X: -500, Y: -10, Width: 100, Height: 100}, area))

	// Wider than the area: pinned to the left edge.
	assert.Equal(t, 0, Clamp(Rect{X: 50, Width: 1000, Height: 10, Y: 100}, area).X)
}

func TestIntersect(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 100, Height: 100}
	assert.Equal(t, Rect{X: 50, Y: 50, Width: 50, Height: 50}, a.Intersect(Rect{X: 50, Y: 50, Width: 100, Height: 100}))
	assert.Equal(t, Rect{}, a.Intersect(Rect{X: 200, Y: 200, Width: 10, Height: 10}))
}

func TestProvider_DefaultsAndPrimary(t *testing.T) {
	p := NewProvider()
	assert.Equal(t, DefaultDisplay, p.Primary())

	p.SetDisplays([]Display{
		{ID: "left", Bounds: Rect{X: -1280, Width: 1280, Height: 1024}},
		{ID: "main", Bounds: Rect{Width: 1920, Height: 1080}, WorkArea: Rect{Width: 1920, Height: 1040}, Primary: true},
	})
	assert.Equal(t, "main", p.Primary().ID)
	// Missing work area falls back to bounds.
	assert.Equal(t, Rect{X: -1280, Width: 1280, Height: 1024}, p.Displays()[0].WorkArea)
}

func TestProvider_DisplayMatching(t *testing.T) {
	p := NewProvider(
		Display{ID: "main", Bounds: Rect{Width: 1920, Height: 1080}, Primary: true},
		Display{ID: "right", Bounds: Rect{X: 1920, Width: 1920, Height: 1080}},
	)

	assert.Equal(t, "right", p.DisplayMatching(Rect{X: 1900, Y: 10, Width: 300, Height: 100}).ID)
	assert.Equal(t, "main", p.DisplayMatching(Rect{X: 100, Y: 10, Width: 300, Height: 100}).ID)
	// Fully off-screen beyond the right display.
	assert.Equal(t, "right", p.DisplayMatching(Rect{X: 5000, Y: 10, Width: 300, Height: 100}).ID)
}
