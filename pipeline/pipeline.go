// Package pipeline drives frames from a capture device to a display plane
// through a shared pool of buffers, without copying them.
package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/adamlouis/decimator/buffer"
	"github.com/adamlouis/decimator/capture"
	"github.com/adamlouis/decimator/display"
	"github.com/adamlouis/decimator/frame"
	"github.com/adamlouis/decimator/internal/hwerr"
)

// Config describes one pipeline run.
type Config struct {
	Geometry frame.Geometry
	// Buffers is the pool size, 1 to buffer.MaxBufferCount.
	Buffers  int
	Selector display.Selector
	Priority uint64
	// Src is the crop from each frame and Dst its placement on the plane.
	// An empty rectangle means the whole frame.
	Src, Dst frame.Rect
}

// Stats counts loop iterations.
type Stats struct {
	Frames    int
	Presented int
	Dropped   int
}

// Driver owns the capture channel, the buffer pool and the display binding
// for one run, and moves them through their lifecycle together.
type Driver struct {
	channel *capture.Channel
	disp    display.Display
	alloc   buffer.Allocator
	binding *display.Binding
	pool    *buffer.Pool

	cfg     Config
	state   State
	stats   Stats
	handoff Handoff
	check   bool
	held    int
	closed  bool

	timeout time.Duration
	log     *zap.Logger
}

// Option configures a Driver.
type Option func(*Driver)

func WithLogger(log *zap.Logger) Option {
	return func(d *Driver) { d.log = log }
}

// WithWaitTimeout bounds each readiness wait while dequeuing.
func WithWaitTimeout(t time.Duration) Option {
	return func(d *Driver) { d.timeout = t }
}

func WithHandoff(h Handoff) Option {
	return func(d *Driver) { d.handoff = h }
}

// WithInvariantCheck verifies after every frame that each buffer is held
// by capture, the caller or the display.
func WithInvariantCheck(on bool) Option {
	return func(d *Driver) { d.check = on }
}

// New returns an Uninitialized driver. The driver takes ownership of dev;
// disp and alloc are closed by Close if they implement io.Closer.
func New(dev capture.Device, disp display.Display, alloc buffer.Allocator, opts ...Option) *Driver {
	d := &Driver{
		disp:    disp,
		alloc:   alloc,
		held:    -1,
		timeout: 5 * time.Second,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.Named("pipeline").With(zap.String("run", uuid.NewString()))
	d.channel = capture.NewChannel(dev,
		capture.WithLogger(d.log.Named("capture")),
		capture.WithWaitTimeout(d.timeout))
	d.binding = display.NewBinding(disp, d.log.Named("display"))
	return d
}

// Configure sets the capture format, allocates the pool, registers it with
// the capture device and binds it to a display plane. On failure everything
// acquired is released and the driver stays Uninitialized.
func (d *Driver) Configure(cfg Config) error {
	const op = "configure pipeline"

	if d.closed {
		return hwerr.New(hwerr.Protocol, op, "driver is closed")
	}
	if d.state != Uninitialized && d.state != Stopped {
		return hwerr.New(hwerr.Protocol, op, "driver is %s", d.state)
	}
	d.state = Uninitialized
	if err := cfg.Geometry.Validate(); err != nil {
		return hwerr.Wrap(hwerr.Configuration, op, err)
	}
	if d.handoff == HoldDisplayed && cfg.Buffers < 2 {
		return hwerr.New(hwerr.Configuration, op, "%s needs at least 2 buffers", d.handoff)
	}
	if cfg.Src.Empty() {
		cfg.Src = cfg.Geometry.Bounds()
	}
	if cfg.Dst.Empty() {
		cfg.Dst = cfg.Geometry.Bounds()
	}

	if err := d.setup(cfg); err != nil {
		if terr := d.teardown(); terr != nil {
			d.log.Warn("rollback", zap.Error(terr))
		}
		return err
	}
	d.cfg = cfg
	d.stats = Stats{}
	d.state = Configured
	stride, size := cfg.Geometry.Layout()
	d.log.Info("configured",
		zap.Stringer("geometry", cfg.Geometry),
		zap.Int("stride", stride),
		zap.Int("size", size),
		zap.Int("buffers", cfg.Buffers),
		zap.Uint32("plane", uint32(d.binding.Plane())),
		zap.Stringer("handoff", d.handoff))
	return nil
}

func (d *Driver) setup(cfg Config) error {
	if err := d.channel.Configure(cfg.Geometry); err != nil {
		return err
	}
	pool, err := buffer.Allocate(d.alloc, cfg.Buffers, cfg.Geometry, buffer.WithLogger(d.log.Named("buffer")))
	if err != nil {
		return err
	}
	d.pool = pool
	if err := d.channel.RegisterBuffers(pool); err != nil {
		return err
	}
	return d.binding.Bind(pool, cfg.Selector, cfg.Priority)
}

// Start queues every buffer in index order and turns capture on.
func (d *Driver) Start() error {
	const op = "start pipeline"

	if d.state != Configured {
		return hwerr.New(hwerr.Protocol, op, "driver is %s", d.state)
	}
	err := func() error {
		for i := 0; i < d.pool.Len(); i++ {
			if err := d.channel.Enqueue(i); err != nil {
				return err
			}
		}
		return d.channel.Start()
	}()
	if err != nil {
		if terr := d.teardown(); terr != nil {
			d.log.Warn("rollback", zap.Error(terr))
		}
		d.state = Uninitialized
		return err
	}
	d.state = Streaming
	d.log.Info("streaming")
	return nil
}

// Run moves count frames from capture to display; a negative count runs until
// ctx is done. A frame the display rejects is dropped and the loop goes on.
// A capture failure stops the driver and is returned. Cancelling ctx
// returns its error and leaves the driver streaming.
func (d *Driver) Run(ctx context.Context, count int) error {
	if d.state != Streaming {
		return hwerr.New(hwerr.Protocol, "run", "driver is %s", d.state)
	}
	for n := 0; count < 0 || n < count; n++ {
		if err := d.step(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return err
			}
			d.log.Error("frame loop failed", zap.Int("frame", d.stats.Frames), zap.Error(err))
			if serr := d.Stop(); serr != nil {
				d.log.Warn("stop after failure", zap.Error(serr))
			}
			return err
		}
	}
	d.log.Info("run complete",
		zap.Int("frames", d.stats.Frames),
		zap.Int("presented", d.stats.Presented),
		zap.Int("dropped", d.stats.Dropped))
	return nil
}

func (d *Driver) step(ctx context.Context) error {
	index, err := d.channel.Dequeue(ctx)
	if err != nil {
		return err
	}
	d.stats.Frames++

	switch d.handoff {
	case HoldDisplayed:
		err = d.hold(index)
	default:
		err = d.requeue(index)
	}
	if err != nil {
		return err
	}
	if d.check {
		return d.pool.Check()
	}
	return nil
}

func (d *Driver) requeue(index int) error {
	if err := d.channel.Enqueue(index); err != nil {
		return err
	}
	d.present(index)
	return nil
}

func (d *Driver) hold(index int) error {
	if !d.present(index) {
		return d.channel.Enqueue(index)
	}
	if err := d.pool.Transition(index, buffer.Displayed); err != nil {
		return err
	}
	prev := d.held
	d.held = index
	if prev < 0 {
		return nil
	}
	return d.channel.Enqueue(prev)
}

func (d *Driver) present(index int) bool {
	if err := d.binding.Present(index, d.cfg.Src, d.cfg.Dst); err != nil {
		d.stats.Dropped++
		d.log.Warn("frame dropped", zap.Int("index", index), zap.Error(err))
		return false
	}
	d.stats.Presented++
	return true
}

// Stop turns capture off and releases the surfaces, the device slots and
// the pool. It is safe to call in any state and more than once.
func (d *Driver) Stop() error {
	if d.state == Uninitialized || d.state == Stopped {
		return nil
	}
	err := d.teardown()
	d.state = Stopped
	d.log.Info("stopped", zap.Error(err))
	return err
}

func (d *Driver) teardown() error {
	err := multierr.Combine(
		d.channel.Stop(),
		d.binding.Release(),
		d.channel.Unregister(),
	)
	if d.pool != nil {
		err = multierr.Append(err, d.pool.Release())
		d.pool = nil
	}
	d.held = -1
	return err
}

// Close stops the driver and closes the capture device, then the display
// and allocator if they can be closed. Close may be called more than once.
func (d *Driver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	err := multierr.Append(d.Stop(), d.channel.Close())
	if c, ok := d.disp.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	if c, ok := d.alloc.(io.Closer); ok && !sameObject(d.alloc, d.disp) {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func sameObject(a buffer.Allocator, b display.Display) bool {
	return interface{}(a) == interface{}(b)
}

func (d *Driver) State() State { return d.state }

func (d *Driver) Stats() Stats { return d.stats }

// Pool is the buffer pool while the driver is configured or streaming.
func (d *Driver) Pool() *buffer.Pool { return d.pool }

// OnScreen is the index of the buffer last shown, or -1.
func (d *Driver) OnScreen() int { return d.binding.OnScreen() }
