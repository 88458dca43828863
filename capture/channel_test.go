package capture_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"

	"github.com/adamlouis/decimator/buffer"
	"github.com/adamlouis/decimator/capture"
	"github.com/adamlouis/decimator/frame"
	"github.com/adamlouis/decimator/internal/hwerr"
	"github.com/adamlouis/decimator/internal/sim"
)

var vga = frame.Geometry{Width: 640, Height: 480, Format: frame.NV12}

func setup(t *testing.T, dev *sim.Capture) (*capture.Channel, *buffer.Pool) {
	t.Helper()
	p, err := buffer.Allocate(sim.NewAllocator(), buffer.MaxBufferCount, vga)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Release() })

	c := capture.NewChannel(dev, capture.WithLogger(zaptest.NewLogger(t)), capture.WithWaitTimeout(time.Millisecond))
	if err := c.Configure(vga); err != nil {
		t.Fatal(err)
	}
	if err := c.RegisterBuffers(p); err != nil {
		t.Fatal(err)
	}
	return c, p
}

func TestConfigureRejected(t *testing.T) {
	dev := sim.NewCapture()
	dev.Negotiate = func(g frame.Geometry) (frame.Geometry, error) {
		return frame.Geometry{}, errors.New("EINVAL")
	}
	c := capture.NewChannel(dev)
	if err := c.Configure(vga); !errors.Is(err, hwerr.Configuration) {
		t.Errorf("got %v, want a configuration error", err)
	}

	// A device that silently changes the geometry is rejected too.
	dev.Negotiate = func(g frame.Geometry) (frame.Geometry, error) {
		g.Width = 320
		return g, nil
	}
	if err := c.Configure(vga); !errors.Is(err, hwerr.Configuration) {
		t.Errorf("got %v, want a configuration error", err)
	}
}

func TestRegisterShortReservation(t *testing.T) {
	dev := sim.NewCapture()
	dev.Slots = 2
	p, err := buffer.Allocate(sim.NewAllocator(), 4, vga)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()

	c := capture.NewChannel(dev)
	if err := c.Configure(vga); err != nil {
		t.Fatal(err)
	}
	if err := c.RegisterBuffers(p); !errors.Is(err, hwerr.Resource) {
		t.Errorf("got %v, want a resource error", err)
	}
	if dev.Reserved() != 0 {
		t.Errorf("partial reservation of %d slots not released", dev.Reserved())
	}
}

func TestEnqueueDequeue(t *testing.T) {
	dev := sim.NewCapture()
	c, p := setup(t, dev)

	for i := 0; i < p.Len(); i++ {
		if err := c.Enqueue(i); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	if err := c.Enqueue(1); !errors.Is(err, hwerr.Protocol) {
		t.Errorf("double enqueue: got %v, want a protocol error", err)
	}
	if err := c.Enqueue(7); !errors.Is(err, hwerr.Protocol) {
		t.Errorf("out of range enqueue: got %v, want a protocol error", err)
	}
	if dev.Queues != p.Len() {
		t.Errorf("device saw %d queues, want %d", dev.Queues, p.Len())
	}

	if _, err := c.Dequeue(context.Background()); !errors.Is(err, hwerr.Protocol) {
		t.Errorf("dequeue before start: got %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	for want := 0; want < p.Len(); want++ {
		got, err := c.Dequeue(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("dequeued %d, want %d", got, want)
		}
		b, _ := p.At(got)
		if b.State() != buffer.Dequeued {
			t.Errorf("buffer %d state %v after dequeue", got, b.State())
		}
		if err := c.Enqueue(got); err != nil {
			t.Errorf("re-enqueue %d: %v", got, err)
		}
	}
	if err := p.Check(); err != nil {
		t.Error(err)
	}
}

func TestDequeueRetries(t *testing.T) {
	dev := sim.NewCapture()
	dev.Spurious = 3
	c, _ := setup(t, dev)

	if err := c.Enqueue(2); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	index, err := c.Dequeue(context.Background())
	if err != nil || index != 2 {
		t.Errorf("Dequeue = %d, %v; want 2", index, err)
	}

	// Nothing queued: every wait expires until the context ends.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want deadline exceeded", err)
	}
}

func TestDequeueDeviceError(t *testing.T) {
	dev := sim.NewCapture()
	dev.FailDequeueAt = 0
	c, _ := setup(t, dev)

	c.Enqueue(0)
	c.Start()
	if _, err := c.Dequeue(context.Background()); !errors.Is(err, hwerr.Device) {
		t.Errorf("got %v, want a device error", err)
	}
}

func TestStop(t *testing.T) {
	dev := sim.NewCapture()
	c, p := setup(t, dev)

	// Before start, stop is a no-op.
	if err := c.Stop(); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
	for i := 0; i < p.Len(); i++ {
		c.Enqueue(i)
	}
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(); err != nil {
		t.Errorf("second Start: %v", err)
	}
	if dev.StreamOns != 1 {
		t.Errorf("stream on issued %d times", dev.StreamOns)
	}

	offs := dev.StreamOffs
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	if dev.StreamOffs != offs+1 {
		t.Errorf("stream off issued %d times", dev.StreamOffs-offs)
	}
	if p.Count(buffer.Free) != p.Len() {
		t.Errorf("%d buffers free after stop, want %d", p.Count(buffer.Free), p.Len())
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if !dev.Closed || dev.Reserved() != 0 {
		t.Errorf("closed %v, %d slots still reserved", dev.Closed, dev.Reserved())
	}
	if p.Release() != nil {
		t.Error("pool not releasable after close")
	}
}

func TestClosedChannel(t *testing.T) {
	dev := sim.NewCapture()
	p, err := buffer.Allocate(sim.NewAllocator(), 4, vga)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()

	c := capture.NewChannel(dev)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	offs := dev.StreamOffs
	if err := c.Configure(vga); !errors.Is(err, hwerr.Protocol) {
		t.Errorf("Configure after Close: got %v, want a protocol error", err)
	}
	if dev.StreamOffs != offs {
		t.Error("Configure after Close touched the device")
	}
	if err := c.RegisterBuffers(p); !errors.Is(err, hwerr.Protocol) {
		t.Errorf("RegisterBuffers after Close: got %v, want a protocol error", err)
	}
	if dev.Reserved() != 0 {
		t.Errorf("%d slots reserved on a closed channel", dev.Reserved())
	}
	if err := c.Start(); !errors.Is(err, hwerr.Protocol) {
		t.Errorf("Start after Close: got %v, want a protocol error", err)
	}
	if err := c.Enqueue(0); !errors.Is(err, hwerr.Protocol) {
		t.Errorf("Enqueue after Close: got %v, want a protocol error", err)
	}
}
