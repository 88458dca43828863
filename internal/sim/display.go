package sim

import (
	"github.com/pkg/errors"

	"github.com/adamlouis/decimator/buffer"
	"github.com/adamlouis/decimator/display"
	"github.com/adamlouis/decimator/frame"
	"github.com/adamlouis/decimator/internal/hwerr"
)

// PlaneSpec describes one simulated plane.
type PlaneSpec struct {
	Layer   display.LayerType
	Content display.ContentType
	Formats []frame.PixelFormat
}

// Display is a display.Display over a fixed set of planes.
type Display struct {
	Planes []PlaneSpec
	// FailUpdate makes the listed UpdatePlane calls (0-based) fail.
	FailUpdate map[int]bool
	// FailCreateAt makes the n-th CreateSurface call fail; negative disables.
	FailCreateAt int
	FailPriority bool
	// Hook runs at the start of every UpdatePlane call.
	Hook func(op string)

	Updates, Creates, Destroys int
	Priorities                 map[display.Plane]uint64
	OnScreen                   display.Surface
	LastSrc, LastDst           frame.Rect

	surfaces map[display.Surface]buffer.Descriptor
	next     display.Surface
}

// NewDisplay returns a display with one RGB primary plane and one video
// overlay plane that accepts the YUV formats.
func NewDisplay() *Display {
	return &Display{
		Planes: []PlaneSpec{
			{Layer: display.Primary, Content: display.RGB, Formats: []frame.PixelFormat{frame.XRGB8888, frame.ARGB8888}},
			{Layer: display.Overlay, Content: display.Video, Formats: frame.Supported()},
		},
		FailCreateAt: -1,
		Priorities:   make(map[display.Plane]uint64),
		surfaces:     make(map[display.Surface]buffer.Descriptor),
		next:         1,
	}
}

func (d *Display) FindPlane(sel display.Selector) (display.Plane, error) {
	seen := 0
	for i, p := range d.Planes {
		if p.Layer != sel.Layer || p.Content != sel.Content {
			continue
		}
		if seen == sel.Index {
			return display.Plane(i + 1), nil
		}
		seen++
	}
	return 0, hwerr.New(hwerr.NotFound, "find plane", "no plane matches %v", sel)
}

func (d *Display) plane(p display.Plane) (*PlaneSpec, error) {
	if p < 1 || int(p) > len(d.Planes) {
		return nil, errors.Errorf("sim: unknown plane %d", p)
	}
	return &d.Planes[p-1], nil
}

func (d *Display) SetPriority(p display.Plane, priority uint64) error {
	if _, err := d.plane(p); err != nil {
		return err
	}
	if d.FailPriority {
		return errors.New("sim: priority rejected")
	}
	d.Priorities[p] = priority
	return nil
}

func (d *Display) Formats(p display.Plane) ([]frame.PixelFormat, error) {
	spec, err := d.plane(p)
	if err != nil {
		return nil, err
	}
	return spec.Formats, nil
}

func (d *Display) CreateSurface(p display.Plane, desc buffer.Descriptor, g frame.Geometry) (display.Surface, error) {
	n := d.Creates
	d.Creates++
	if _, err := d.plane(p); err != nil {
		return 0, err
	}
	if n == d.FailCreateAt {
		return 0, errors.Errorf("sim: create surface %d failed", n)
	}
	if desc == buffer.NoDescriptor {
		return 0, errors.New("sim: no descriptor")
	}
	s := d.next
	d.next++
	d.surfaces[s] = desc
	return s, nil
}

func (d *Display) UpdatePlane(p display.Plane, s display.Surface, src, dst frame.Rect) error {
	if d.Hook != nil {
		d.Hook("update")
	}
	n := d.Updates
	d.Updates++
	if d.FailUpdate[n] {
		return errors.Errorf("sim: update %d rejected", n)
	}
	if _, ok := d.surfaces[s]; !ok {
		return errors.Errorf("sim: unknown surface %d", s)
	}
	d.OnScreen = s
	d.LastSrc, d.LastDst = src, dst
	return nil
}

func (d *Display) DestroySurface(s display.Surface) error {
	d.Destroys++
	if _, ok := d.surfaces[s]; !ok {
		return errors.Errorf("sim: destroy of unknown surface %d", s)
	}
	delete(d.surfaces, s)
	if d.OnScreen == s {
		d.OnScreen = 0
	}
	return nil
}

// Surfaces is the number of live surfaces.
func (d *Display) Surfaces() int { return len(d.surfaces) }
