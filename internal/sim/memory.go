// Package sim provides in-memory stand-ins for the capture device, the
// display and the buffer allocator. They keep count of every handle they
// hand out and can be told to fail specific calls.
package sim

import (
	"github.com/pkg/errors"

	"github.com/adamlouis/decimator/buffer"
)

// Allocator is a buffer.Allocator that tracks outstanding allocations and
// descriptors.
type Allocator struct {
	// FailAllocateAt and FailExportAt make the n-th call (0-based) fail.
	// Negative values disable the fault.
	FailAllocateAt int
	FailExportAt   int
	// FailFree makes every Free fail and keep the allocation.
	FailFree bool

	Allocates, Exports, Frees, Closes int

	allocs   map[buffer.AllocHandle]int
	descs    map[buffer.Descriptor]buffer.AllocHandle
	nextHdl  buffer.AllocHandle
	nextDesc buffer.Descriptor
}

func NewAllocator() *Allocator {
	return &Allocator{
		FailAllocateAt: -1,
		FailExportAt:   -1,
		allocs:         make(map[buffer.AllocHandle]int),
		descs:          make(map[buffer.Descriptor]buffer.AllocHandle),
		nextHdl:        1,
		nextDesc:       100,
	}
}

func (a *Allocator) Allocate(size int, flags uint32) (buffer.AllocHandle, error) {
	n := a.Allocates
	a.Allocates++
	if n == a.FailAllocateAt {
		return 0, errors.Errorf("sim: allocation %d failed", n)
	}
	if size <= 0 {
		return 0, errors.Errorf("sim: bad size %d", size)
	}
	h := a.nextHdl
	a.nextHdl++
	a.allocs[h] = size
	return h, nil
}

func (a *Allocator) Export(h buffer.AllocHandle) (buffer.Descriptor, error) {
	n := a.Exports
	a.Exports++
	if _, ok := a.allocs[h]; !ok {
		return buffer.NoDescriptor, errors.Errorf("sim: export of unknown handle %d", h)
	}
	if n == a.FailExportAt {
		return buffer.NoDescriptor, errors.Errorf("sim: export %d failed", n)
	}
	d := a.nextDesc
	a.nextDesc++
	a.descs[d] = h
	return d, nil
}

func (a *Allocator) Free(h buffer.AllocHandle) error {
	a.Frees++
	if _, ok := a.allocs[h]; !ok {
		return errors.Errorf("sim: free of unknown handle %d", h)
	}
	if a.FailFree {
		return errors.Errorf("sim: free of handle %d failed", h)
	}
	delete(a.allocs, h)
	return nil
}

func (a *Allocator) CloseDescriptor(d buffer.Descriptor) error {
	a.Closes++
	if _, ok := a.descs[d]; !ok {
		return errors.Errorf("sim: close of unknown descriptor %d", d)
	}
	delete(a.descs, d)
	return nil
}

// Outstanding returns the number of live allocations and descriptors.
func (a *Allocator) Outstanding() (allocs, descs int) {
	return len(a.allocs), len(a.descs)
}

// SizeOf returns the size of the allocation behind d, or 0.
func (a *Allocator) SizeOf(d buffer.Descriptor) int {
	h, ok := a.descs[d]
	if !ok {
		return 0
	}
	return a.allocs[h]
}
