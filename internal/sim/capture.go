package sim

import (
	"time"

	"github.com/pkg/errors"

	"github.com/adamlouis/decimator/buffer"
	"github.com/adamlouis/decimator/capture"
	"github.com/adamlouis/decimator/frame"
)

// Capture is a capture.Device that completes queued buffers in FIFO order
// as soon as it is streaming.
type Capture struct {
	// Slots caps how many buffers RequestBuffers grants; 0 means no cap.
	Slots int
	// Negotiate, if set, replaces the geometry SetFormat accepts.
	Negotiate func(frame.Geometry) (frame.Geometry, error)
	// FailQueueAt and FailDequeueAt make the n-th call (0-based) fail.
	FailQueueAt   int
	FailDequeueAt int
	// Spurious makes the first n Dequeue calls report capture.ErrNotReady.
	Spurious int
	// Hook runs at the start of every Queue and Dequeue call.
	Hook func(op string)

	Queues, Dequeues, StreamOns, StreamOffs int
	Closed                                  bool

	format    frame.Geometry
	slots     int
	queued    []int
	streaming bool
}

func NewCapture() *Capture {
	return &Capture{FailQueueAt: -1, FailDequeueAt: -1}
}

func (c *Capture) SetFormat(g frame.Geometry) (frame.Geometry, error) {
	if c.slots > 0 {
		return frame.Geometry{}, errors.New("sim: device busy")
	}
	if c.Negotiate != nil {
		got, err := c.Negotiate(g)
		if err != nil {
			return frame.Geometry{}, err
		}
		g = got
	}
	c.format = g
	return g, nil
}

func (c *Capture) RequestBuffers(count int) (int, error) {
	if c.streaming {
		return 0, errors.New("sim: device busy")
	}
	if c.Slots > 0 && count > c.Slots {
		count = c.Slots
	}
	c.slots = count
	c.queued = nil
	return count, nil
}

func (c *Capture) Queue(index int, d buffer.Descriptor, size int) error {
	if c.Hook != nil {
		c.Hook("queue")
	}
	n := c.Queues
	c.Queues++
	if n == c.FailQueueAt {
		return errors.Errorf("sim: queue %d failed", n)
	}
	if index < 0 || index >= c.slots {
		return errors.Errorf("sim: slot %d not reserved", index)
	}
	for _, q := range c.queued {
		if q == index {
			return errors.Errorf("sim: slot %d queued twice", index)
		}
	}
	if d == buffer.NoDescriptor || size <= 0 {
		return errors.Errorf("sim: bad buffer for slot %d", index)
	}
	c.queued = append(c.queued, index)
	return nil
}

func (c *Capture) Wait(timeout time.Duration) error {
	if c.streaming && len(c.queued) > 0 {
		return nil
	}
	time.Sleep(timeout)
	return &capture.Timeout{}
}

func (c *Capture) Dequeue() (int, error) {
	if c.Hook != nil {
		c.Hook("dequeue")
	}
	if c.Spurious > 0 {
		c.Spurious--
		return -1, capture.ErrNotReady
	}
	n := c.Dequeues
	c.Dequeues++
	if n == c.FailDequeueAt {
		return -1, errors.Errorf("sim: dequeue %d failed", n)
	}
	if !c.streaming || len(c.queued) == 0 {
		return -1, capture.ErrNotReady
	}
	index := c.queued[0]
	c.queued = c.queued[1:]
	return index, nil
}

func (c *Capture) StreamOn() error {
	c.StreamOns++
	c.streaming = true
	return nil
}

func (c *Capture) StreamOff() error {
	c.StreamOffs++
	c.streaming = false
	c.queued = nil
	return nil
}

func (c *Capture) Close() error {
	c.Closed = true
	return nil
}

// Reserved is the number of device slots currently reserved.
func (c *Capture) Reserved() int { return c.slots }

// Queued is the number of buffers waiting to be filled.
func (c *Capture) Queued() int { return len(c.queued) }

// Streaming reports whether StreamOn was called without a later StreamOff.
func (c *Capture) Streaming() bool { return c.streaming }
