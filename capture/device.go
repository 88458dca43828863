// Package capture drives a capture/decimation video device through the
// buffer queue protocol: buffers are enqueued empty, the device fills them,
// and they are dequeued one at a time in completion order.
package capture

import (
	"time"

	"github.com/pkg/errors"

	"github.com/adamlouis/decimator/buffer"
	"github.com/adamlouis/decimator/frame"
)

// Device is the capture device boundary.
type Device interface {
	// SetFormat asks the device for geometry g and returns what it accepted.
	SetFormat(g frame.Geometry) (frame.Geometry, error)
	// RequestBuffers reserves count buffer slots and returns how many the
	// device granted. A count of 0 releases every slot.
	RequestBuffers(count int) (int, error)
	// Queue hands slot index, backed by d, to the device to be filled.
	Queue(index int, d buffer.Descriptor, size int) error
	// Wait blocks until a filled buffer may be available. A timeout of 0
	// waits forever; otherwise expiry is reported as *Timeout.
	Wait(timeout time.Duration) error
	// Dequeue returns the index of the oldest filled buffer, or ErrNotReady.
	Dequeue() (int, error)
	StreamOn() error
	StreamOff() error
	Close() error
}

// Timeout is returned by Device.Wait when the wait expires. It is not a
// failure; the caller should wait again.
type Timeout struct{}

func (e *Timeout) Error() string {
	return "timeout waiting for frame"
}

// ErrNotReady is returned by Device.Dequeue when no filled buffer is
// available yet.
var ErrNotReady = errors.New("no filled buffer available")
