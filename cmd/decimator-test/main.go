//go:build linux

// Command decimator-test streams frames from a decimator capture block to a
// display overlay plane through a shared pool of DMA buffers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/adamlouis/decimator/buffer"
	"github.com/adamlouis/decimator/capture"
	"github.com/adamlouis/decimator/config"
	"github.com/adamlouis/decimator/display"
	"github.com/adamlouis/decimator/drm"
	"github.com/adamlouis/decimator/internal/hwerr"
	"github.com/adamlouis/decimator/internal/sim"
	"github.com/adamlouis/decimator/pipeline"
)

const (
	exitConfig = 1
	exitOpen   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "YAML configuration file")
	module := flag.Int("m", 0, "decimator module number")
	width := flag.Int("w", 0, "capture width")
	height := flag.Int("h", 0, "capture height")
	scaleWidth := flag.Int("sw", 0, "width on screen (0 = capture width)")
	scaleHeight := flag.Int("sh", 0, "height on screen (0 = capture height)")
	format := flag.String("f", "", "pixel format fourcc, e.g. NV12")
	formatIndex := flag.Int("fi", 0, "pixel format by display catalog index, used without -f")
	count := flag.Int("c", 0, "frames to run (-1 = until interrupted)")
	drmPath := flag.String("drm", "", "display device")
	videoPath := flag.String("d", "", "capture device node; overrides the lookup by module")
	handoff := flag.String("handoff", "", "requeue-first or hold-displayed")
	verbose := flag.Bool("v", false, "debug logging")
	simulate := flag.Bool("sim", false, "run against simulated hardware")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitConfig
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "m":
			cfg.Capture.Module = *module
		case "w":
			cfg.Capture.Width = *width
		case "h":
			cfg.Capture.Height = *height
		case "sw":
			cfg.Display.ScaleWidth = *scaleWidth
		case "sh":
			cfg.Display.ScaleHeight = *scaleHeight
		case "f":
			cfg.Capture.Format = *format
		case "fi":
			if *format == "" {
				cfg.Capture.Format = ""
				cfg.Capture.FormatIndex = *formatIndex
			}
		case "c":
			cfg.Frames = *count
		case "drm":
			cfg.Display.Device = *drmPath
		case "d":
			cfg.Capture.Device = *videoPath
		case "handoff":
			cfg.Handoff = *handoff
		case "v":
			if *verbose {
				cfg.LogLevel = "debug"
			}
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return exitConfig
	}

	log, err := newLogger(cfg, *verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}
	defer log.Sync()

	pc, err := cfg.Pipeline()
	if err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return exitConfig
	}
	opts, err := cfg.Options()
	if err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return exitConfig
	}

	var (
		dev   capture.Device
		disp  display.Display
		alloc buffer.Allocator
	)
	if *simulate {
		dev, disp, alloc = sim.NewCapture(), sim.NewDisplay(), sim.NewAllocator()
	} else {
		dev, disp, alloc, err = open(cfg, log)
		if err != nil {
			log.Error("failed to open devices", zap.Error(err))
			return exitOpen
		}
	}

	d := pipeline.New(dev, disp, alloc, append(opts, pipeline.WithLogger(log))...)
	defer func() {
		if err := d.Close(); err != nil {
			log.Warn("close", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := start(ctx, d, pc, cfg.Frames); err != nil {
		log.Error("decimator test failed", zap.Error(err))
		return hwerr.KindOf(err).ExitCode()
	}
	stats := d.Stats()
	log.Info("decimator test done",
		zap.Int("frames", stats.Frames),
		zap.Int("presented", stats.Presented),
		zap.Int("dropped", stats.Dropped))
	return 0
}

func start(ctx context.Context, d *pipeline.Driver, pc pipeline.Config, frames int) error {
	if err := d.Configure(pc); err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return err
	}
	err := d.Run(ctx, frames)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}
	if serr := d.Stop(); err == nil {
		err = serr
	}
	return err
}

// open resolves the capture node and opens it and the display device.
// The display device also allocates the frame buffers.
func open(cfg *config.Config, log *zap.Logger) (*capture.V4L2, *drm.Device, *drm.Device, error) {
	path := cfg.Capture.Device
	if path == "" {
		name := capture.ModuleName(cfg.Capture.Block, cfg.Capture.Module)
		var err error
		if path, err = capture.Lookup(capture.VIDEO4LINUX_DIR, name); err != nil {
			return nil, nil, nil, err
		}
	}
	card, err := drm.Open(cfg.Display.Device, log.Named("drm"))
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "open %s", cfg.Display.Device)
	}
	video, err := capture.OpenV4L2(path, log.Named("v4l2"))
	if err != nil {
		card.Close()
		return nil, nil, nil, errors.Wrapf(err, "open %s", path)
	}
	log.Info("devices opened", zap.String("capture", path), zap.String("display", cfg.Display.Device))
	checkFrameSize(video, cfg, log)
	return video, card, card, nil
}

// checkFrameSize warns when the device does not list the configured size.
// A device that lists no sizes passes.
func checkFrameSize(video *capture.V4L2, cfg *config.Config, log *zap.Logger) {
	g, err := cfg.Geometry()
	if err != nil {
		return
	}
	sizes := video.SupportedFrameSizes(g.Format)
	for _, s := range sizes {
		if s.Fits(g.Width, g.Height) {
			return
		}
	}
	if len(sizes) > 0 {
		log.Warn("frame size not listed by capture device",
			zap.Stringer("geometry", g),
			zap.Int("listed", len(sizes)))
	}
}

func newLogger(cfg *config.Config, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if verbose {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(cfg.Level())
	return zc.Build()
}
