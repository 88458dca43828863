// Package display binds a pool of frame buffers to one display plane and
// flips the plane between them.
package display

import (
	"fmt"

	"github.com/adamlouis/decimator/buffer"
	"github.com/adamlouis/decimator/frame"
)

// Plane identifies a hardware compositor layer.
type Plane uint32

// Surface is a display object bound to one buffer's memory and geometry.
type Surface uint32

// LayerType is the role of a plane in the compositor.
type LayerType int

const (
	Overlay LayerType = iota
	Primary
	Cursor
)

func (l LayerType) String() string {
	switch l {
	case Overlay:
		return "overlay"
	case Primary:
		return "primary"
	case Cursor:
		return "cursor"
	}
	return fmt.Sprintf("layer(%d)", int(l))
}

// ContentType is the kind of content a plane is built to scan out.
type ContentType int

const (
	RGB ContentType = iota
	Video
)

func (c ContentType) String() string {
	if c == Video {
		return "video"
	}
	return "rgb"
}

// Selector picks the Index-th plane with the given layer and content type.
type Selector struct {
	Layer   LayerType
	Content ContentType
	Index   int
}

func (s Selector) String() string {
	return fmt.Sprintf("%s/%s#%d", s.Layer, s.Content, s.Index)
}

// Display is the display boundary.
type Display interface {
	// FindPlane returns the plane matching sel, or an error of kind
	// hwerr.NotFound.
	FindPlane(sel Selector) (Plane, error)
	SetPriority(p Plane, priority uint64) error
	// Formats is the plane's capability set.
	Formats(p Plane) ([]frame.PixelFormat, error)
	CreateSurface(p Plane, d buffer.Descriptor, g frame.Geometry) (Surface, error)
	UpdatePlane(p Plane, s Surface, src, dst frame.Rect) error
	DestroySurface(s Surface) error
}
