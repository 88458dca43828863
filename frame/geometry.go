package frame

import (
	"fmt"

	"github.com/pkg/errors"
)

// Geometry is the size and format of every frame in a pipeline run.
type Geometry struct {
	Width  int
	Height int
	Format PixelFormat
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d %s", g.Width, g.Height, g.Format)
}

// Layout returns the stride and buffer size for g.
func (g Geometry) Layout() (stride, size int) {
	return Layout(g.Width, g.Height, g.Format)
}

func (g Geometry) Planes() []PlaneLayout {
	return Planes(g.Width, g.Height, g.Format)
}

// Validate rejects empty frames and formats without a layout.
func (g Geometry) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return errors.Errorf("invalid frame size %dx%d", g.Width, g.Height)
	}
	if _, size := g.Layout(); size == 0 {
		return errors.Errorf("%s: no buffer layout for format", g.Format)
	}
	return nil
}

// Bounds is the full-frame rectangle.
func (g Geometry) Bounds() Rect {
	return Rect{W: g.Width, H: g.Height}
}

// Rect is a source crop or destination placement on a plane.
type Rect struct {
	X, Y int
	W, H int
}

func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.W, r.H, r.X, r.Y)
}
