//go:build linux

package drm

import (
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/adamlouis/decimator/display"
	"github.com/adamlouis/decimator/frame"
	"github.com/adamlouis/decimator/internal/cstr"
	"github.com/adamlouis/decimator/internal/hwerr"
	"github.com/adamlouis/decimator/ioctl"
)

// Property names exposed by the display driver.
const (
	propType          = "type"
	propAlphaBlend    = "alphablend"
	propVideoPriority = "video-priority"
	propZpos          = "zpos"
)

type property struct {
	id    uint32
	value uint64
}

type planeInfo struct {
	id            uint32
	layer         display.LayerType
	hasType       bool
	content       display.ContentType
	possibleCrtcs uint32
}

// matchPlane returns the position in planes of the sel.Index-th plane with
// the selected layer and content type.
func matchPlane(planes []planeInfo, sel display.Selector) (int, bool) {
	seen := 0
	for i, p := range planes {
		if !p.hasType || p.layer != sel.Layer || p.content != sel.Content {
			continue
		}
		if seen == sel.Index {
			return i, true
		}
		seen++
	}
	return -1, false
}

// classify derives a plane's layer and content type from its properties.
// Planes able to alpha-blend are RGB layers; the rest scan out video.
func classify(id, possibleCrtcs uint32, props map[string]property) planeInfo {
	p := planeInfo{id: id, content: display.Video, possibleCrtcs: possibleCrtcs}
	if t, ok := props[propType]; ok {
		p.layer = display.LayerType(t.value)
		p.hasType = true
	}
	if _, ok := props[propAlphaBlend]; ok {
		p.content = display.RGB
	}
	return p
}

// FindPlane resolves sel against the planes the driver exposes.
func (d *Device) FindPlane(sel display.Selector) (display.Plane, error) {
	ids, err := d.planeIDs()
	if err != nil {
		return 0, errors.Wrap(err, "plane resources")
	}
	planes := make([]planeInfo, 0, len(ids))
	for _, id := range ids {
		plane, err := d.getPlane(id, false)
		if err != nil {
			return 0, errors.Wrapf(err, "plane %d", id)
		}
		props, err := d.properties(id, DRM_MODE_OBJECT_PLANE)
		if err != nil {
			return 0, errors.Wrapf(err, "plane %d properties", id)
		}
		info := classify(id, plane.possible_crtcs, props)
		d.log.Debug("plane",
			zap.Uint32("id", id),
			zap.Stringer("layer", info.layer),
			zap.Stringer("content", info.content),
			zap.Int("properties", len(props)))
		planes = append(planes, info)
	}

	i, ok := matchPlane(planes, sel)
	if !ok {
		return 0, hwerr.New(hwerr.NotFound, "find plane", "no plane matches %v", sel)
	}
	crtc, ok := d.crtcFor(planes[i].possibleCrtcs)
	if !ok {
		return 0, hwerr.New(hwerr.NotFound, "find plane", "plane %d has no usable crtc", planes[i].id)
	}
	p := display.Plane(planes[i].id)
	d.planeCrtc[p] = crtc
	return p, nil
}

func (d *Device) crtcFor(possible uint32) (uint32, bool) {
	for i, id := range d.crtcs {
		if possible&(1<<uint(i)) != 0 {
			return id, true
		}
	}
	return 0, false
}

// SetPriority sets the plane's video-priority property, falling back to
// zpos on drivers without one.
func (d *Device) SetPriority(p display.Plane, priority uint64) error {
	props, err := d.properties(uint32(p), DRM_MODE_OBJECT_PLANE)
	if err != nil {
		return err
	}
	prop, ok := props[propVideoPriority]
	if !ok {
		if prop, ok = props[propZpos]; !ok {
			return errors.Errorf("plane %d has no priority property", p)
		}
	}
	req := &drm_mode_obj_set_property{
		value:    priority,
		prop_id:  prop.id,
		obj_id:   uint32(p),
		obj_type: DRM_MODE_OBJECT_PLANE,
	}
	return ioctl.Ioctl(d.fd(), DRM_IOCTL_MODE_OBJ_SETPROPERTY, uintptr(unsafe.Pointer(req)))
}

// Formats returns the pixel formats the plane can scan out.
func (d *Device) Formats(p display.Plane) ([]frame.PixelFormat, error) {
	plane, err := d.getPlane(uint32(p), true)
	if err != nil {
		return nil, err
	}
	formats := make([]frame.PixelFormat, len(plane.formats))
	for i, f := range plane.formats {
		formats[i] = frame.PixelFormat(f)
	}
	return formats, nil
}

func (d *Device) planeIDs() ([]uint32, error) {
	res := &drm_mode_get_plane_res{}
	if err := ioctl.Ioctl(d.fd(), DRM_IOCTL_MODE_GETPLANERESOURCES, uintptr(unsafe.Pointer(res))); err != nil {
		return nil, err
	}
	if res.count_planes == 0 {
		return nil, nil
	}
	ids := make([]uint32, res.count_planes)
	res.plane_id_ptr = uint64(uintptr(unsafe.Pointer(&ids[0])))
	err := ioctl.Ioctl(d.fd(), DRM_IOCTL_MODE_GETPLANERESOURCES, uintptr(unsafe.Pointer(res)))
	runtime.KeepAlive(ids)
	if err != nil {
		return nil, err
	}
	if int(res.count_planes) < len(ids) {
		ids = ids[:res.count_planes]
	}
	return ids, nil
}

type plane struct {
	drm_mode_get_plane
	formats []uint32
}

func (d *Device) getPlane(id uint32, withFormats bool) (*plane, error) {
	p := &plane{}
	p.plane_id = id
	if err := ioctl.Ioctl(d.fd(), DRM_IOCTL_MODE_GETPLANE, uintptr(unsafe.Pointer(&p.drm_mode_get_plane))); err != nil {
		return nil, err
	}
	if !withFormats || p.count_format_types == 0 {
		return p, nil
	}
	p.formats = make([]uint32, p.count_format_types)
	p.format_type_ptr = uint64(uintptr(unsafe.Pointer(&p.formats[0])))
	err := ioctl.Ioctl(d.fd(), DRM_IOCTL_MODE_GETPLANE, uintptr(unsafe.Pointer(&p.drm_mode_get_plane)))
	runtime.KeepAlive(p.formats)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// properties returns the named properties of a mode object with their
// current values.
func (d *Device) properties(objID, objType uint32) (map[string]property, error) {
	req := &drm_mode_obj_get_properties{obj_id: objID, obj_type: objType}
	if err := ioctl.Ioctl(d.fd(), DRM_IOCTL_MODE_OBJ_GETPROPERTIES, uintptr(unsafe.Pointer(req))); err != nil {
		return nil, err
	}
	props := make(map[string]property, req.count_props)
	if req.count_props == 0 {
		return props, nil
	}

	ids := make([]uint32, req.count_props)
	values := make([]uint64, req.count_props)
	req.props_ptr = uint64(uintptr(unsafe.Pointer(&ids[0])))
	req.prop_values_ptr = uint64(uintptr(unsafe.Pointer(&values[0])))
	err := ioctl.Ioctl(d.fd(), DRM_IOCTL_MODE_OBJ_GETPROPERTIES, uintptr(unsafe.Pointer(req)))
	runtime.KeepAlive(ids)
	runtime.KeepAlive(values)
	if err != nil {
		return nil, err
	}

	n := len(ids)
	if int(req.count_props) < n {
		n = int(req.count_props)
	}
	for i := 0; i < n; i++ {
		prop := &drm_mode_get_property{prop_id: ids[i]}
		if err := ioctl.Ioctl(d.fd(), DRM_IOCTL_MODE_GETPROPERTY, uintptr(unsafe.Pointer(prop))); err != nil {
			continue
		}
		props[cstr.ToString(prop.name[:])] = property{id: ids[i], value: values[i]}
	}
	return props, nil
}
