//go:build linux

package drm

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/adamlouis/decimator/buffer"
	"github.com/adamlouis/decimator/display"
	"github.com/adamlouis/decimator/frame"
	"github.com/adamlouis/decimator/ioctl"
)

// CreateSurface imports the buffer behind desc and registers it as a
// framebuffer laid out for g.
func (d *Device) CreateSurface(p display.Plane, desc buffer.Descriptor, g frame.Geometry) (display.Surface, error) {
	planes := g.Planes()
	if planes == nil {
		return 0, errors.Errorf("%v: no plane layout", g)
	}
	// Importing a buffer this device exported returns its existing GEM
	// handle, which stays owned by the allocator.
	prime := &drm_prime_handle{fd: int32(desc)}
	if err := ioctl.Ioctl(d.fd(), DRM_IOCTL_PRIME_FD_TO_HANDLE, uintptr(unsafe.Pointer(prime))); err != nil {
		return 0, errors.Wrap(err, "DRM_IOCTL_PRIME_FD_TO_HANDLE")
	}

	fb := &drm_mode_fb_cmd2{
		width:        uint32(g.Width),
		height:       uint32(g.Height),
		pixel_format: uint32(g.Format),
	}
	for i, pl := range planes {
		fb.handles[i] = prime.handle
		fb.pitches[i] = uint32(pl.Pitch)
		fb.offsets[i] = uint32(pl.Offset)
	}
	if err := ioctl.Ioctl(d.fd(), DRM_IOCTL_MODE_ADDFB2, uintptr(unsafe.Pointer(fb))); err != nil {
		return 0, errors.Wrap(err, "DRM_IOCTL_MODE_ADDFB2")
	}
	return display.Surface(fb.fb_id), nil
}

// UpdatePlane scans out surface s on plane p, cropping src from the frame
// and placing it at dst on the crtc.
func (d *Device) UpdatePlane(p display.Plane, s display.Surface, src, dst frame.Rect) error {
	crtc, ok := d.planeCrtc[p]
	if !ok {
		return errors.Errorf("plane %d was not resolved", p)
	}
	req := &drm_mode_set_plane{
		plane_id: uint32(p),
		crtc_id:  crtc,
		fb_id:    uint32(s),
		crtc_x:   int32(dst.X),
		crtc_y:   int32(dst.Y),
		crtc_w:   uint32(dst.W),
		crtc_h:   uint32(dst.H),
		src_x:    uint32(src.X) << 16,
		src_y:    uint32(src.Y) << 16,
		src_w:    uint32(src.W) << 16,
		src_h:    uint32(src.H) << 16,
	}
	return ioctl.Ioctl(d.fd(), DRM_IOCTL_MODE_SETPLANE, uintptr(unsafe.Pointer(req)))
}

func (d *Device) DestroySurface(s display.Surface) error {
	id := uint32(s)
	return ioctl.Ioctl(d.fd(), DRM_IOCTL_MODE_RMFB, uintptr(unsafe.Pointer(&id)))
}
