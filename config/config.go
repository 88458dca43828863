// Package config loads the settings of a decimator test run from YAML.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/adamlouis/decimator/buffer"
	"github.com/adamlouis/decimator/display"
	"github.com/adamlouis/decimator/frame"
	"github.com/adamlouis/decimator/pipeline"
)

// Config is a complete test run.
type Config struct {
	Capture  CaptureConfig `yaml:"capture"`
	Display  DisplayConfig `yaml:"display"`
	Buffers  int           `yaml:"buffers"`
	Frames   int           `yaml:"frames"`  // -1 runs until interrupted
	Handoff  string        `yaml:"handoff"` // requeue-first, hold-displayed
	Check    bool          `yaml:"check"`
	LogLevel string        `yaml:"log_level"`
}

// CaptureConfig selects the decimator and the frames it produces.
type CaptureConfig struct {
	Block       string        `yaml:"block"`  // sysfs name prefix of the capture block
	Module      int           `yaml:"module"` // instance number of the block
	Device      string        `yaml:"device,omitempty"`
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	Format      string        `yaml:"format"`       // fourcc, e.g. NV12
	FormatIndex int           `yaml:"format_index"` // catalog position, used when format is empty
	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

// DisplayConfig selects the plane and where frames land on it.
type DisplayConfig struct {
	Device      string `yaml:"device"`
	Layer       string `yaml:"layer"`   // overlay, primary, cursor
	Content     string `yaml:"content"` // video, rgb
	Index       int    `yaml:"index"`
	Priority    uint64 `yaml:"priority"`
	ScaleWidth  int    `yaml:"scale_width"`  // 0 keeps the frame width
	ScaleHeight int    `yaml:"scale_height"` // 0 keeps the frame height
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Block:       "nx-decimator",
			Width:       640,
			Height:      480,
			FormatIndex: frame.DefaultCatalogIndex,
			WaitTimeout: 5 * time.Second,
		},
		Display: DisplayConfig{
			Device:   "/dev/dri/card0",
			Layer:    display.Overlay.String(),
			Content:  display.Video.String(),
			Priority: 1,
		},
		Buffers:  buffer.MaxBufferCount,
		Frames:   100,
		Handoff:  pipeline.RequeueFirst.String(),
		LogLevel: "info",
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks every field that can be checked without hardware.
func (c *Config) Validate() error {
	g, err := c.Geometry()
	if err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return err
	}
	if c.Buffers < 1 || c.Buffers > buffer.MaxBufferCount {
		return errors.Errorf("buffers %d not in [1,%d]", c.Buffers, buffer.MaxBufferCount)
	}
	if c.Frames < -1 {
		return errors.Errorf("invalid frame count %d", c.Frames)
	}
	if c.Capture.Block == "" && c.Capture.Device == "" {
		return errors.New("capture block or device is required")
	}
	if c.Capture.Module < 0 {
		return errors.Errorf("negative capture module %d", c.Capture.Module)
	}
	if c.Capture.WaitTimeout < 0 {
		return errors.Errorf("negative wait timeout %v", c.Capture.WaitTimeout)
	}
	if c.Display.ScaleWidth < 0 || c.Display.ScaleHeight < 0 {
		return errors.Errorf("invalid scale %dx%d", c.Display.ScaleWidth, c.Display.ScaleHeight)
	}
	if _, err := c.Selector(); err != nil {
		return err
	}
	if _, err := pipeline.ParseHandoff(c.Handoff); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Geometry is the capture geometry. The format is named by fourcc, or
// picked from frame.Catalog by index when no fourcc is given.
func (c *Config) Geometry() (frame.Geometry, error) {
	var (
		f   frame.PixelFormat
		err error
	)
	if c.Capture.Format == "" {
		f, err = frame.CatalogAt(c.Capture.FormatIndex)
	} else {
		f, err = frame.ParseFourCC(frame.FourCC(c.Capture.Format))
	}
	if err != nil {
		return frame.Geometry{}, err
	}
	return frame.Geometry{Width: c.Capture.Width, Height: c.Capture.Height, Format: f}, nil
}

// Selector is the display plane to present on.
func (c *Config) Selector() (display.Selector, error) {
	sel := display.Selector{Index: c.Display.Index}
	switch c.Display.Layer {
	case "overlay":
		sel.Layer = display.Overlay
	case "primary":
		sel.Layer = display.Primary
	case "cursor":
		sel.Layer = display.Cursor
	default:
		return sel, errors.Errorf("unknown plane layer %q", c.Display.Layer)
	}
	switch c.Display.Content {
	case "video":
		sel.Content = display.Video
	case "rgb":
		sel.Content = display.RGB
	default:
		return sel, errors.Errorf("unknown plane content %q", c.Display.Content)
	}
	if sel.Index < 0 {
		return sel, errors.Errorf("negative plane index %d", sel.Index)
	}
	return sel, nil
}

// Pipeline converts c to a pipeline configuration. The whole frame is
// shown, scaled to ScaleWidth x ScaleHeight when set.
func (c *Config) Pipeline() (pipeline.Config, error) {
	g, err := c.Geometry()
	if err != nil {
		return pipeline.Config{}, err
	}
	sel, err := c.Selector()
	if err != nil {
		return pipeline.Config{}, err
	}
	dst := g.Bounds()
	if c.Display.ScaleWidth > 0 {
		dst.W = c.Display.ScaleWidth
	}
	if c.Display.ScaleHeight > 0 {
		dst.H = c.Display.ScaleHeight
	}
	return pipeline.Config{
		Geometry: g,
		Buffers:  c.Buffers,
		Selector: sel,
		Priority: c.Display.Priority,
		Src:      g.Bounds(),
		Dst:      dst,
	}, nil
}

// Options are the driver options c selects.
func (c *Config) Options() ([]pipeline.Option, error) {
	h, err := pipeline.ParseHandoff(c.Handoff)
	if err != nil {
		return nil, err
	}
	return []pipeline.Option{
		pipeline.WithHandoff(h),
		pipeline.WithWaitTimeout(c.Capture.WaitTimeout),
		pipeline.WithInvariantCheck(c.Check),
	}, nil
}

// Level is the parsed log level.
func (c *Config) Level() zapcore.Level {
	l, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}
