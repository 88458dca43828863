// Package buffer owns the fixed ring of physically backed frame buffers
// shared between the capture device and the display plane.
//
// Each Buffer holds two handles. The AllocHandle owns the memory and is
// only ever freed by the Pool. The Descriptor is a shareable reference that
// is lent to the capture and display subsystems; holding one does not give
// the holder any right to free the memory behind it.
package buffer

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/adamlouis/decimator/frame"
	"github.com/adamlouis/decimator/internal/hwerr"
)

// MaxBufferCount is the number of buffers in a pipeline's pool.
const MaxBufferCount = 4

// AllocHandle is the allocator-local handle that owns a physical region.
type AllocHandle uint32

// Descriptor is a shareable handle to a physical region, usable by both the
// capture device and the display subsystem.
type Descriptor int

// NoDescriptor marks a buffer whose descriptor has been closed.
const NoDescriptor Descriptor = -1

// Allocator is the memory boundary: it hands out physically backed regions
// and exports them as shareable descriptors.
type Allocator interface {
	Allocate(size int, flags uint32) (AllocHandle, error)
	Export(h AllocHandle) (Descriptor, error)
	Free(h AllocHandle) error
	CloseDescriptor(d Descriptor) error
}

// Buffer is one entry of a Pool.
type Buffer struct {
	index int
	alloc AllocHandle
	desc  Descriptor
	live  bool
	state State
}

func (b *Buffer) Index() int             { return b.index }
func (b *Buffer) Descriptor() Descriptor { return b.desc }
func (b *Buffer) State() State           { return b.state }

// Pool is an arena of buffers addressed by index. The index is the identity
// used by both the capture queue and the display binding.
type Pool struct {
	alloc    Allocator
	geometry frame.Geometry
	stride   int
	size     int
	buffers  []Buffer
	log      *zap.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger used for allocation and release events.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pool) { p.log = log }
}

// Allocate creates count buffers sized for g. Either every buffer is
// allocated and exported, or nothing is left allocated.
func Allocate(a Allocator, count int, g frame.Geometry, opts ...Option) (*Pool, error) {
	const op = "allocate pool"

	p := &Pool{alloc: a, geometry: g, log: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	if count < 1 || count > MaxBufferCount {
		return nil, hwerr.New(hwerr.Configuration, op, "buffer count %d not in [1,%d]", count, MaxBufferCount)
	}
	p.stride, p.size = g.Layout()
	if p.size == 0 {
		return nil, hwerr.New(hwerr.Configuration, op, "%v: zero buffer size", g)
	}

	p.buffers = make([]Buffer, count)
	for i := range p.buffers {
		h, err := a.Allocate(p.size, 0)
		if err != nil {
			return nil, p.rollback(op, err)
		}
		d, err := a.Export(h)
		if err != nil {
			if ferr := a.Free(h); ferr != nil {
				p.log.Warn("free after failed export", zap.Int("index", i), zap.Error(ferr))
			}
			return nil, p.rollback(op, err)
		}
		p.buffers[i] = Buffer{index: i, alloc: h, desc: d, live: true, state: Free}
		p.log.Debug("buffer allocated",
			zap.Int("index", i),
			zap.Uint32("handle", uint32(h)),
			zap.Int("descriptor", int(d)),
			zap.Int("size", p.size))
	}
	return p, nil
}

// rollback releases what Allocate acquired and classifies cause. Release
// failures are logged and joined to the returned error.
func (p *Pool) rollback(op string, cause error) error {
	if rerr := p.Release(); rerr != nil {
		p.log.Warn("release after failed allocation", zap.Error(rerr))
		cause = multierr.Append(cause, rerr)
	}
	return hwerr.Wrap(hwerr.Resource, op, cause)
}

// Release closes every descriptor and frees every allocation still held.
// It is safe to call more than once; the first release error is returned
// but does not stop the remaining buffers from being released.
func (p *Pool) Release() error {
	var err error
	for i := range p.buffers {
		b := &p.buffers[i]
		if !b.live {
			continue
		}
		if cerr := p.alloc.CloseDescriptor(b.desc); cerr != nil {
			p.log.Warn("close descriptor", zap.Int("index", i), zap.Error(cerr))
			err = multierr.Append(err, cerr)
		}
		if ferr := p.alloc.Free(b.alloc); ferr != nil {
			p.log.Warn("free buffer", zap.Int("index", i), zap.Error(ferr))
			err = multierr.Append(err, ferr)
		}
		b.live = false
		b.desc = NoDescriptor
		b.state = Free
	}
	return err
}

// Len is the number of buffers in the pool.
func (p *Pool) Len() int { return len(p.buffers) }

// Size is the size in bytes of each buffer.
func (p *Pool) Size() int { return p.size }

// Stride is the luma row stride in samples.
func (p *Pool) Stride() int { return p.stride }

func (p *Pool) Geometry() frame.Geometry { return p.geometry }

// At returns buffer index, or a protocol error if index is out of range or
// the buffer has been released.
func (p *Pool) At(index int) (*Buffer, error) {
	if index < 0 || index >= len(p.buffers) {
		return nil, hwerr.New(hwerr.Protocol, "pool", "invalid buffer index %d", index)
	}
	b := &p.buffers[index]
	if !b.live {
		return nil, hwerr.New(hwerr.Protocol, "pool", "buffer %d released", index)
	}
	return b, nil
}

// Count returns how many buffers are in state s.
func (p *Pool) Count(s State) int {
	n := 0
	for i := range p.buffers {
		if p.buffers[i].live && p.buffers[i].state == s {
			n++
		}
	}
	return n
}

// Transition moves buffer index to state to.
func (p *Pool) Transition(index int, to State) error {
	b, err := p.At(index)
	if err != nil {
		return err
	}
	if !b.state.canMove(to) {
		return hwerr.New(hwerr.Protocol, "pool", "buffer %d: %s -> %s", index, b.state, to)
	}
	b.state = to
	return nil
}

// Check verifies that every buffer is accounted for by capture, the caller
// or the display, which must hold at all times while streaming.
func (p *Pool) Check() error {
	held := p.Count(Queued) + p.Count(Dequeued) + p.Count(Displayed)
	if held != len(p.buffers) {
		return hwerr.New(hwerr.Protocol, "pool", "%d of %d buffers accounted for", held, len(p.buffers))
	}
	return nil
}
