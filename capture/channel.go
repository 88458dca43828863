package capture

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/adamlouis/decimator/buffer"
	"github.com/adamlouis/decimator/frame"
	"github.com/adamlouis/decimator/internal/hwerr"
)

const defaultTimeout = 5 * time.Second

// Channel runs the enqueue/dequeue protocol for one Device and keeps the
// pool's ownership states in step with it.
type Channel struct {
	dev       Device
	pool      *buffer.Pool
	geometry  frame.Geometry
	streaming bool
	closed    bool
	timeout   time.Duration
	log       *zap.Logger
}

// Option configures a Channel.
type Option func(*Channel)

func WithLogger(log *zap.Logger) Option {
	return func(c *Channel) { c.log = log }
}

// WithWaitTimeout bounds each readiness wait inside Dequeue. Expired waits
// are retried; 0 waits without a bound.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Channel) { c.timeout = d }
}

// NewChannel wraps dev. The channel takes ownership of dev and closes it
// in Close.
func NewChannel(dev Device, opts ...Option) *Channel {
	c := &Channel{dev: dev, timeout: defaultTimeout, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure stops any active stream and sets the capture format.
func (c *Channel) Configure(g frame.Geometry) error {
	const op = "configure capture"

	if c.closed {
		return errClosed(op)
	}
	if c.pool != nil {
		return hwerr.New(hwerr.Protocol, op, "buffers still registered")
	}
	if err := c.Stop(); err != nil {
		return err
	}
	// The device may have been left streaming by a previous user.
	if err := c.dev.StreamOff(); err != nil {
		c.log.Debug("stream off before configure", zap.Error(err))
	}

	got, err := c.dev.SetFormat(g)
	if err != nil {
		return hwerr.Wrap(hwerr.Configuration, op, errors.Wrapf(err, "set format %v", g))
	}
	if got != g {
		return hwerr.New(hwerr.Configuration, op, "device negotiated %v, want %v", got, g)
	}
	c.geometry = g
	c.log.Info("capture format set", zap.Stringer("geometry", g))
	return nil
}

// RegisterBuffers reserves one device slot per pool buffer.
func (c *Channel) RegisterBuffers(p *buffer.Pool) error {
	const op = "register buffers"

	if c.closed {
		return errClosed(op)
	}
	if c.pool != nil {
		return hwerr.New(hwerr.Protocol, op, "buffers already registered")
	}
	if c.geometry != p.Geometry() {
		return hwerr.New(hwerr.Protocol, op, "pool geometry %v, channel configured for %v", p.Geometry(), c.geometry)
	}

	n, err := c.dev.RequestBuffers(p.Len())
	if err != nil {
		return hwerr.Wrap(hwerr.Resource, op, err)
	}
	if n != p.Len() {
		if n > 0 {
			if _, err := c.dev.RequestBuffers(0); err != nil {
				c.log.Warn("release partial reservation", zap.Error(err))
			}
		}
		return hwerr.New(hwerr.Resource, op, "device reserved %d of %d buffers", n, p.Len())
	}
	c.pool = p
	c.log.Debug("buffers registered", zap.Int("count", n), zap.Int("size", p.Size()))
	return nil
}

// Enqueue hands buffer index to the device for the next capture.
func (c *Channel) Enqueue(index int) error {
	const op = "enqueue"

	if c.pool == nil {
		return hwerr.New(hwerr.Protocol, op, "no buffers registered")
	}
	b, err := c.pool.At(index)
	if err != nil {
		return err
	}
	if b.State() == buffer.Queued {
		return hwerr.New(hwerr.Protocol, op, "buffer %d already queued", index)
	}
	if err := c.dev.Queue(index, b.Descriptor(), c.pool.Size()); err != nil {
		return hwerr.Wrap(hwerr.Device, op, errors.Wrapf(err, "buffer %d", index))
	}
	return c.pool.Transition(index, buffer.Queued)
}

// Dequeue blocks until the device completes a buffer and returns its index.
// The buffer is then owned by the caller. Expired waits are retried and ctx
// is checked between them.
func (c *Channel) Dequeue(ctx context.Context) (int, error) {
	const op = "dequeue"

	if !c.streaming {
		return -1, hwerr.New(hwerr.Protocol, op, "not streaming")
	}
	for {
		if err := ctx.Err(); err != nil {
			return -1, err
		}

		err := c.dev.Wait(c.timeout)
		var timeout *Timeout
		switch {
		case errors.As(err, &timeout):
			c.log.Debug("wait expired, retrying", zap.Duration("timeout", c.timeout))
			continue
		case err != nil:
			return -1, hwerr.Wrap(hwerr.Device, op, err)
		}

		index, err := c.dev.Dequeue()
		if errors.Is(err, ErrNotReady) {
			continue
		}
		if err != nil {
			return -1, hwerr.Wrap(hwerr.Device, op, err)
		}
		if err := c.pool.Transition(index, buffer.Dequeued); err != nil {
			return -1, err
		}
		return index, nil
	}
}

// Start turns streaming on.
func (c *Channel) Start() error {
	if c.closed {
		return errClosed("stream on")
	}
	if c.pool == nil {
		return hwerr.New(hwerr.Protocol, "stream on", "no buffers registered")
	}
	if c.streaming {
		return nil
	}
	if err := c.dev.StreamOn(); err != nil {
		return hwerr.Wrap(hwerr.Device, "stream on", err)
	}
	c.streaming = true
	return nil
}

// Stop turns streaming off. Buffers the device still held return to the
// pool. Stop does nothing when the channel is not streaming.
func (c *Channel) Stop() error {
	if !c.streaming {
		return nil
	}
	c.streaming = false
	err := c.dev.StreamOff()
	for i := 0; i < c.pool.Len(); i++ {
		if b, _ := c.pool.At(i); b != nil && b.State() == buffer.Queued {
			if terr := c.pool.Transition(i, buffer.Free); terr != nil {
				c.log.Warn("return buffer to pool", zap.Int("index", i), zap.Error(terr))
			}
		}
	}
	if err != nil {
		return hwerr.Wrap(hwerr.Device, "stream off", err)
	}
	return nil
}

// Unregister stops streaming and gives the device's buffer slots back.
func (c *Channel) Unregister() error {
	if c.pool == nil {
		return nil
	}
	err := c.Stop()
	if _, rerr := c.dev.RequestBuffers(0); rerr != nil {
		c.log.Warn("release buffer slots", zap.Error(rerr))
		if err == nil {
			err = hwerr.Wrap(hwerr.Resource, "unregister buffers", rerr)
		}
	}
	c.pool = nil
	return err
}

func errClosed(op string) error {
	return hwerr.New(hwerr.Protocol, op, "channel is closed")
}

// Close unregisters the buffers and closes the device. Close may be called
// more than once.
func (c *Channel) Close() error {
	if c.closed {
		return nil
	}
	err := c.Unregister()
	c.closed = true
	if cerr := c.dev.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
