//go:build linux

// Package drm talks to a DRM/KMS display device. It provides the display
// planes and the GEM buffer allocator that the pipeline presents through.
package drm

import (
	"os"
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/adamlouis/decimator/display"
	"github.com/adamlouis/decimator/ioctl"
)

const (
	DRM_CLIENT_CAP_UNIVERSAL_PLANES uint64 = 2
	DRM_MODE_OBJECT_PLANE           uint32 = 0xeeeeeeee
	DRM_CLOEXEC                     uint32 = unix.O_CLOEXEC
	DRM_RDWR                        uint32 = unix.O_RDWR
)

var (
	DRM_IOCTL_SET_CLIENT_CAP         = ioctl.IoW('d', 0x0d, unsafe.Sizeof(drm_set_client_cap{}))
	DRM_IOCTL_PRIME_HANDLE_TO_FD     = ioctl.IoRW('d', 0x2d, unsafe.Sizeof(drm_prime_handle{}))
	DRM_IOCTL_PRIME_FD_TO_HANDLE     = ioctl.IoRW('d', 0x2e, unsafe.Sizeof(drm_prime_handle{}))
	DRM_IOCTL_MODE_GETRESOURCES      = ioctl.IoRW('d', 0xa0, unsafe.Sizeof(drm_mode_card_res{}))
	DRM_IOCTL_MODE_GETPROPERTY       = ioctl.IoRW('d', 0xaa, unsafe.Sizeof(drm_mode_get_property{}))
	DRM_IOCTL_MODE_RMFB              = ioctl.IoRW('d', 0xaf, 4)
	DRM_IOCTL_MODE_CREATE_DUMB       = ioctl.IoRW('d', 0xb2, unsafe.Sizeof(drm_mode_create_dumb{}))
	DRM_IOCTL_MODE_DESTROY_DUMB      = ioctl.IoRW('d', 0xb4, unsafe.Sizeof(drm_mode_destroy_dumb{}))
	DRM_IOCTL_MODE_GETPLANERESOURCES = ioctl.IoRW('d', 0xb5, unsafe.Sizeof(drm_mode_get_plane_res{}))
	DRM_IOCTL_MODE_GETPLANE          = ioctl.IoRW('d', 0xb6, unsafe.Sizeof(drm_mode_get_plane{}))
	DRM_IOCTL_MODE_SETPLANE          = ioctl.IoRW('d', 0xb7, unsafe.Sizeof(drm_mode_set_plane{}))
	DRM_IOCTL_MODE_ADDFB2            = ioctl.IoRW('d', 0xb8, unsafe.Sizeof(drm_mode_fb_cmd2{}))
	DRM_IOCTL_MODE_OBJ_GETPROPERTIES = ioctl.IoRW('d', 0xb9, unsafe.Sizeof(drm_mode_obj_get_properties{}))
	DRM_IOCTL_MODE_OBJ_SETPROPERTY   = ioctl.IoRW('d', 0xba, unsafe.Sizeof(drm_mode_obj_set_property{}))
)

type drm_set_client_cap struct {
	capability uint64
	value      uint64
}

type drm_prime_handle struct {
	handle uint32
	flags  uint32
	fd     int32
}

type drm_mode_card_res struct {
	fb_id_ptr        uint64
	crtc_id_ptr      uint64
	connector_id_ptr uint64
	encoder_id_ptr   uint64
	count_fbs        uint32
	count_crtcs      uint32
	count_connectors uint32
	count_encoders   uint32
	min_width        uint32
	max_width        uint32
	min_height       uint32
	max_height       uint32
}

type drm_mode_get_property struct {
	values_ptr       uint64
	enum_blob_ptr    uint64
	prop_id          uint32
	flags            uint32
	name             [32]uint8
	count_values     uint32
	count_enum_blobs uint32
}

type drm_mode_create_dumb struct {
	height uint32
	width  uint32
	bpp    uint32
	flags  uint32
	handle uint32
	pitch  uint32
	size   uint64
}

type drm_mode_destroy_dumb struct {
	handle uint32
}

type drm_mode_get_plane_res struct {
	plane_id_ptr uint64
	count_planes uint32
	_            uint32
}

type drm_mode_get_plane struct {
	plane_id           uint32
	crtc_id            uint32
	fb_id              uint32
	possible_crtcs     uint32
	gamma_size         uint32
	count_format_types uint32
	format_type_ptr    uint64
}

type drm_mode_set_plane struct {
	plane_id uint32
	crtc_id  uint32
	fb_id    uint32
	flags    uint32
	crtc_x   int32
	crtc_y   int32
	crtc_w   uint32
	crtc_h   uint32
	// 16.16 fixed point
	src_x uint32
	src_y uint32
	src_h uint32
	src_w uint32
}

type drm_mode_fb_cmd2 struct {
	fb_id        uint32
	width        uint32
	height       uint32
	pixel_format uint32
	flags        uint32
	handles      [4]uint32
	pitches      [4]uint32
	offsets      [4]uint32
	_            uint32
	modifier     [4]uint64
}

type drm_mode_obj_get_properties struct {
	props_ptr       uint64
	prop_values_ptr uint64
	count_props     uint32
	obj_id          uint32
	obj_type        uint32
	_               uint32
}

type drm_mode_obj_set_property struct {
	value    uint64
	prop_id  uint32
	obj_id   uint32
	obj_type uint32
	_        uint32
}

// Device is an open DRM card. It implements display.Display and
// buffer.Allocator.
type Device struct {
	path      string
	file      *os.File
	log       *zap.Logger
	crtcs     []uint32
	planeCrtc map[display.Plane]uint32
}

// Open opens the card at path and enables universal planes so that
// primary and cursor planes are listed along with overlays.
func Open(path string, log *zap.Logger) (*Device, error) {
	if log == nil {
		log = zap.NewNop()
	}
	file, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	d := &Device{path: path, file: file, log: log, planeCrtc: make(map[display.Plane]uint32)}

	if err := d.setClientCap(DRM_CLIENT_CAP_UNIVERSAL_PLANES, 1); err != nil {
		log.Warn("universal planes not enabled", zap.String("path", path), zap.Error(err))
	}
	if d.crtcs, err = d.crtcIDs(); err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "%s: mode resources", path)
	}
	log.Debug("display device opened", zap.String("path", path), zap.Int("crtcs", len(d.crtcs)))
	return d, nil
}

func (d *Device) Close() error {
	return d.file.Close()
}

func (d *Device) fd() uintptr { return d.file.Fd() }

func (d *Device) setClientCap(capability, value uint64) error {
	req := &drm_set_client_cap{capability: capability, value: value}
	return ioctl.Ioctl(d.fd(), DRM_IOCTL_SET_CLIENT_CAP, uintptr(unsafe.Pointer(req)))
}

func (d *Device) crtcIDs() ([]uint32, error) {
	res := &drm_mode_card_res{}
	if err := ioctl.Ioctl(d.fd(), DRM_IOCTL_MODE_GETRESOURCES, uintptr(unsafe.Pointer(res))); err != nil {
		return nil, err
	}
	if res.count_crtcs == 0 {
		return nil, nil
	}
	ids := make([]uint32, res.count_crtcs)
	req := &drm_mode_card_res{
		crtc_id_ptr: uint64(uintptr(unsafe.Pointer(&ids[0]))),
		count_crtcs: res.count_crtcs,
	}
	err := ioctl.Ioctl(d.fd(), DRM_IOCTL_MODE_GETRESOURCES, uintptr(unsafe.Pointer(req)))
	runtime.KeepAlive(ids)
	if err != nil {
		return nil, err
	}
	if int(req.count_crtcs) < len(ids) {
		ids = ids[:req.count_crtcs]
	}
	return ids, nil
}
