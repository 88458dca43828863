package display

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/adamlouis/decimator/buffer"
	"github.com/adamlouis/decimator/frame"
	"github.com/adamlouis/decimator/internal/hwerr"
)

// Binding owns one surface per pool buffer on a single plane. Surfaces live
// from Bind to Release and are never rebuilt per frame.
type Binding struct {
	disp     Display
	plane    Plane
	pool     *buffer.Pool
	surfaces []Surface
	bound    []bool
	onScreen int
	log      *zap.Logger
}

func NewBinding(disp Display, log *zap.Logger) *Binding {
	if log == nil {
		log = zap.NewNop()
	}
	return &Binding{disp: disp, onScreen: -1, log: log}
}

// Bind resolves the plane for sel, gives it priority, checks that it can
// show the pool's format and creates a surface for every buffer. On failure
// every surface created so far is destroyed.
func (b *Binding) Bind(p *buffer.Pool, sel Selector, priority uint64) error {
	const op = "bind display"

	if b.pool != nil {
		return hwerr.New(hwerr.Protocol, op, "already bound")
	}
	plane, err := b.disp.FindPlane(sel)
	if err != nil {
		if errors.Is(err, hwerr.NotFound) {
			return err
		}
		return hwerr.Wrap(hwerr.NotFound, op, errors.Wrapf(err, "plane %v", sel))
	}
	if err := b.disp.SetPriority(plane, priority); err != nil {
		return hwerr.Wrap(hwerr.Resource, op, errors.Wrapf(err, "set priority %d", priority))
	}
	caps, err := b.disp.Formats(plane)
	if err != nil {
		return hwerr.Wrap(hwerr.Resource, op, errors.Wrap(err, "plane formats"))
	}
	if _, err := frame.Choose(p.Geometry().Format, caps); err != nil {
		return hwerr.Wrap(hwerr.Configuration, op, err)
	}

	b.plane = plane
	b.pool = p
	b.surfaces = make([]Surface, p.Len())
	b.bound = make([]bool, p.Len())
	for i := 0; i < p.Len(); i++ {
		buf, err := p.At(i)
		if err != nil {
			b.Release()
			return err
		}
		s, err := b.disp.CreateSurface(plane, buf.Descriptor(), p.Geometry())
		if err != nil {
			b.Release()
			return hwerr.Wrap(hwerr.Resource, op, errors.Wrapf(err, "surface for buffer %d", i))
		}
		b.surfaces[i] = s
		b.bound[i] = true
	}
	b.log.Info("display bound",
		zap.Stringer("selector", sel),
		zap.Uint32("plane", uint32(plane)),
		zap.Int("surfaces", len(b.surfaces)))
	return nil
}

// Present shows buffer index on the plane with source crop src and
// destination placement dst. A rejected update is a PresentError; the
// plane keeps showing the previous surface.
func (b *Binding) Present(index int, src, dst frame.Rect) error {
	const op = "present"

	if b.pool == nil {
		return hwerr.New(hwerr.Protocol, op, "not bound")
	}
	if index < 0 || index >= len(b.surfaces) || !b.bound[index] {
		return hwerr.New(hwerr.Protocol, op, "invalid buffer index %d", index)
	}
	if err := b.disp.UpdatePlane(b.plane, b.surfaces[index], src, dst); err != nil {
		return hwerr.Wrap(hwerr.Present, op, errors.Wrapf(err, "buffer %d", index))
	}
	b.onScreen = index
	return nil
}

// OnScreen is the index of the buffer last presented, or -1.
func (b *Binding) OnScreen() int { return b.onScreen }

// Plane is the bound plane.
func (b *Binding) Plane() Plane { return b.plane }

// Release destroys every surface. It may be called more than once.
func (b *Binding) Release() error {
	var err error
	for i := range b.surfaces {
		if !b.bound[i] {
			continue
		}
		if derr := b.disp.DestroySurface(b.surfaces[i]); derr != nil {
			b.log.Warn("destroy surface", zap.Int("index", i), zap.Error(derr))
			err = multierr.Append(err, derr)
		}
		b.bound[i] = false
	}
	b.surfaces = nil
	b.bound = nil
	b.pool = nil
	b.onScreen = -1
	return err
}
