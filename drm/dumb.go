//go:build linux

package drm

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/adamlouis/decimator/buffer"
	"github.com/adamlouis/decimator/ioctl"
)

// Dumb buffers are allocated as rows of dumbPitch bytes at 8 bits per
// pixel, enough rows to cover the requested size.
const dumbPitch = 4096

// Allocate creates a physically backed GEM buffer of at least size bytes.
func (d *Device) Allocate(size int, flags uint32) (buffer.AllocHandle, error) {
	if size <= 0 {
		return 0, errors.Errorf("invalid buffer size %d", size)
	}
	req := &drm_mode_create_dumb{
		width:  dumbPitch,
		height: uint32((size + dumbPitch - 1) / dumbPitch),
		bpp:    8,
		flags:  flags,
	}
	if err := ioctl.Ioctl(d.fd(), DRM_IOCTL_MODE_CREATE_DUMB, uintptr(unsafe.Pointer(req))); err != nil {
		return 0, errors.Wrap(err, "DRM_IOCTL_MODE_CREATE_DUMB")
	}
	return buffer.AllocHandle(req.handle), nil
}

// Export returns a dma-buf descriptor for h.
func (d *Device) Export(h buffer.AllocHandle) (buffer.Descriptor, error) {
	req := &drm_prime_handle{handle: uint32(h), flags: DRM_CLOEXEC | DRM_RDWR}
	if err := ioctl.Ioctl(d.fd(), DRM_IOCTL_PRIME_HANDLE_TO_FD, uintptr(unsafe.Pointer(req))); err != nil {
		return buffer.NoDescriptor, errors.Wrap(err, "DRM_IOCTL_PRIME_HANDLE_TO_FD")
	}
	return buffer.Descriptor(req.fd), nil
}

func (d *Device) Free(h buffer.AllocHandle) error {
	req := &drm_mode_destroy_dumb{handle: uint32(h)}
	return errors.Wrap(ioctl.Ioctl(d.fd(), DRM_IOCTL_MODE_DESTROY_DUMB, uintptr(unsafe.Pointer(req))), "DRM_IOCTL_MODE_DESTROY_DUMB")
}

func (d *Device) CloseDescriptor(desc buffer.Descriptor) error {
	return unix.Close(int(desc))
}
