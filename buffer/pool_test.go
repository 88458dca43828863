package buffer_test

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"

	"github.com/adamlouis/decimator/buffer"
	"github.com/adamlouis/decimator/frame"
	"github.com/adamlouis/decimator/internal/hwerr"
	"github.com/adamlouis/decimator/internal/sim"
)

var vga = frame.Geometry{Width: 640, Height: 480, Format: frame.NV12}

func TestAllocateRelease(t *testing.T) {
	for n := 1; n <= buffer.MaxBufferCount; n++ {
		a := sim.NewAllocator()
		p, err := buffer.Allocate(a, n, vga, buffer.WithLogger(zaptest.NewLogger(t)))
		if err != nil {
			t.Fatalf("Allocate(%d): %v", n, err)
		}
		if p.Len() != n || p.Size() != 460800 || p.Stride() != 640 {
			t.Errorf("Allocate(%d): len %d size %d stride %d", n, p.Len(), p.Size(), p.Stride())
		}
		if allocs, descs := a.Outstanding(); allocs != n || descs != n {
			t.Errorf("Allocate(%d): outstanding %d allocs, %d descriptors", n, allocs, descs)
		}
		for i := 0; i < n; i++ {
			b, err := p.At(i)
			if err != nil {
				t.Fatal(err)
			}
			if b.Index() != i || b.State() != buffer.Free {
				t.Errorf("buffer %d: index %d state %v", i, b.Index(), b.State())
			}
			if a.SizeOf(b.Descriptor()) != p.Size() {
				t.Errorf("buffer %d: allocation size %d", i, a.SizeOf(b.Descriptor()))
			}
		}

		if err := p.Release(); err != nil {
			t.Errorf("Release: %v", err)
		}
		if allocs, descs := a.Outstanding(); allocs != 0 || descs != 0 {
			t.Errorf("after Release(%d): %d allocs, %d descriptors leaked", n, allocs, descs)
		}
		if a.Frees != n || a.Closes != n {
			t.Errorf("after Release(%d): %d frees, %d closes", n, a.Frees, a.Closes)
		}

		// A second release must not touch the allocator.
		if err := p.Release(); err != nil {
			t.Errorf("second Release: %v", err)
		}
		if a.Frees != n || a.Closes != n {
			t.Errorf("second Release freed again: %d frees, %d closes", a.Frees, a.Closes)
		}
	}
}

func TestAllocateExportFailure(t *testing.T) {
	a := sim.NewAllocator()
	a.FailExportAt = 2

	p, err := buffer.Allocate(a, buffer.MaxBufferCount, vga)
	if err == nil {
		t.Fatal("expected export failure")
	}
	if p != nil {
		t.Error("expected no pool on failure")
	}
	if !errors.Is(err, hwerr.Resource) {
		t.Errorf("got %v, want a resource error", err)
	}
	if a.Allocates != 3 {
		t.Errorf("allocated %d regions, want 3", a.Allocates)
	}
	if a.Frees != 3 || a.Closes != 2 {
		t.Errorf("released %d regions and %d descriptors, want 3 and 2", a.Frees, a.Closes)
	}
	if allocs, descs := a.Outstanding(); allocs != 0 || descs != 0 {
		t.Errorf("%d allocs, %d descriptors leaked", allocs, descs)
	}
}

func TestAllocateFailure(t *testing.T) {
	a := sim.NewAllocator()
	a.FailAllocateAt = 1

	if _, err := buffer.Allocate(a, 3, vga); !errors.Is(err, hwerr.Resource) {
		t.Errorf("got %v, want a resource error", err)
	}
	if allocs, descs := a.Outstanding(); allocs != 0 || descs != 0 {
		t.Errorf("%d allocs, %d descriptors leaked", allocs, descs)
	}
}

func TestAllocateConfiguration(t *testing.T) {
	tests := []struct {
		name  string
		count int
		g     frame.Geometry
	}{
		{"zero count", 0, vga},
		{"too many", buffer.MaxBufferCount + 1, vga},
		{"zero size", 4, frame.Geometry{Width: 640, Height: 480, Format: frame.XRGB8888}},
		{"empty frame", 4, frame.Geometry{Format: frame.NV12}},
	}
	for _, tt := range tests {
		a := sim.NewAllocator()
		_, err := buffer.Allocate(a, tt.count, tt.g)
		if !errors.Is(err, hwerr.Configuration) {
			t.Errorf("%s: got %v, want a configuration error", tt.name, err)
		}
		if a.Allocates != 0 {
			t.Errorf("%s: allocator called %d times", tt.name, a.Allocates)
		}
	}
}

func TestTransitions(t *testing.T) {
	p, err := buffer.Allocate(sim.NewAllocator(), 2, vga)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()

	steps := []struct {
		to buffer.State
		ok bool
	}{
		{buffer.Dequeued, false},
		{buffer.Queued, true},
		{buffer.Queued, false},
		{buffer.Dequeued, true},
		{buffer.Displayed, true},
		{buffer.Displayed, false},
		{buffer.Queued, true},
		{buffer.Free, true},
	}
	for i, s := range steps {
		err := p.Transition(0, s.to)
		if (err == nil) != s.ok {
			t.Errorf("step %d -> %v: err = %v, want ok=%v", i, s.to, err, s.ok)
		}
		if err != nil && !errors.Is(err, hwerr.Protocol) {
			t.Errorf("step %d: got %v, want a protocol error", i, err)
		}
	}

	if err := p.Transition(2, buffer.Queued); !errors.Is(err, hwerr.Protocol) {
		t.Errorf("out of range: got %v", err)
	}
	if _, err := p.At(-1); !errors.Is(err, hwerr.Protocol) {
		t.Errorf("At(-1): got %v", err)
	}
}

func TestCheck(t *testing.T) {
	p, err := buffer.Allocate(sim.NewAllocator(), 3, vga)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()

	if err := p.Check(); err == nil {
		t.Error("free buffers should fail the check")
	}
	for i := 0; i < 3; i++ {
		p.Transition(i, buffer.Queued)
	}
	p.Transition(1, buffer.Dequeued)
	p.Transition(1, buffer.Displayed)
	p.Transition(2, buffer.Dequeued)
	if err := p.Check(); err != nil {
		t.Errorf("Check: %v", err)
	}
	if p.Count(buffer.Queued) != 1 || p.Count(buffer.Displayed) != 1 || p.Count(buffer.Dequeued) != 1 {
		t.Errorf("counts: queued %d displayed %d dequeued %d",
			p.Count(buffer.Queued), p.Count(buffer.Displayed), p.Count(buffer.Dequeued))
	}
}

func TestRollbackReportsReleaseFailure(t *testing.T) {
	a := sim.NewAllocator()
	a.FailExportAt = 1
	a.FailFree = true

	_, err := buffer.Allocate(a, 4, vga, buffer.WithLogger(zaptest.NewLogger(t)))
	if !errors.Is(err, hwerr.Resource) {
		t.Fatalf("got %v, want a resource error", err)
	}
	if !strings.Contains(err.Error(), "export 1 failed") || !strings.Contains(err.Error(), "free of handle 1 failed") {
		t.Errorf("error %q lost the export cause or the release failure", err)
	}
	if _, descs := a.Outstanding(); descs != 0 {
		t.Errorf("%d descriptors left open", descs)
	}
}
