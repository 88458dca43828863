// Package frame describes the geometry and memory layout of captured frames.
package frame

import (
	"fmt"

	"github.com/pkg/errors"
)

// PixelFormat is a fourcc code. V4L2 and DRM share the codes for every
// format used here, so one value names the format on both sides.
type PixelFormat uint32

// FourCC is the four character name of a PixelFormat.
type FourCC string

func fourcc(a, b, c, d byte) PixelFormat {
	return PixelFormat(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

var (
	// packed 4:2:2, one plane
	YUYV = fourcc('Y', 'U', 'Y', 'V')
	YVYU = fourcc('Y', 'V', 'Y', 'U')
	UYVY = fourcc('U', 'Y', 'V', 'Y')
	VYUY = fourcc('V', 'Y', 'U', 'Y')

	// semi-planar, two planes
	NV12 = fourcc('N', 'V', '1', '2')
	NV21 = fourcc('N', 'V', '2', '1')
	NV16 = fourcc('N', 'V', '1', '6')
	NV61 = fourcc('N', 'V', '6', '1')

	// planar, three planes
	YUV420 = fourcc('Y', 'U', '1', '2')
	YVU420 = fourcc('Y', 'V', '1', '2')
	YUV422 = fourcc('Y', 'U', '1', '6')
	YVU422 = fourcc('Y', 'V', '1', '6')
	YUV444 = fourcc('Y', 'U', '2', '4')
	YVU444 = fourcc('Y', 'V', '2', '4')

	RGB565   = fourcc('R', 'G', '1', '6')
	BGR565   = fourcc('B', 'G', '1', '6')
	RGB888   = fourcc('R', 'G', '2', '4')
	BGR888   = fourcc('B', 'G', '2', '4')
	ARGB8888 = fourcc('A', 'R', '2', '4')
	ABGR8888 = fourcc('A', 'B', '2', '4')
	XRGB8888 = fourcc('X', 'R', '2', '4')
	XBGR8888 = fourcc('X', 'B', '2', '4')
)

// Catalog is the ordered list of formats a display plane may be asked to
// show. Selection by index refers to positions in this list.
var Catalog = []PixelFormat{
	YUYV, YVYU, UYVY, VYUY,
	NV12, NV21, NV16, NV61,
	YUV420, YVU420, YUV422, YVU422, YUV444, YVU444,
	RGB565, BGR565, RGB888, BGR888,
	ARGB8888, ABGR8888, XRGB8888, XBGR8888,
}

// DefaultCatalogIndex selects planar YUV 4:2:0.
const DefaultCatalogIndex = 8

func (pf PixelFormat) FourCC() FourCC {
	b := make([]byte, 4)
	b[0] = byte(pf)
	b[1] = byte(pf >> 8)
	b[2] = byte(pf >> 16)
	b[3] = byte(pf >> 24)
	return FourCC(b)
}

func (pf PixelFormat) String() string {
	return string(pf.FourCC())
}

// ParseFourCC converts the four character string to a PixelFormat.
func ParseFourCC(f FourCC) (PixelFormat, error) {
	if len(f) != 4 {
		return 0, fmt.Errorf("%s: illegal fourcc", f)
	}
	return fourcc(f[0], f[1], f[2], f[3]), nil
}

// CatalogAt returns the catalog entry at index.
func CatalogAt(index int) (PixelFormat, error) {
	if index < 0 || index >= len(Catalog) {
		return 0, errors.Errorf("format index %d out of range [0,%d)", index, len(Catalog))
	}
	return Catalog[index], nil
}

// Choose checks that format is in the catalog and in the plane's capability
// set caps, and returns it.
func Choose(format PixelFormat, caps []PixelFormat) (PixelFormat, error) {
	if !contains(Catalog, format) {
		return 0, errors.Errorf("%s: not in the display format catalog", format)
	}
	if !contains(caps, format) {
		return 0, errors.Errorf("%s: not supported by plane", format)
	}
	return format, nil
}

func contains(list []PixelFormat, pf PixelFormat) bool {
	for _, f := range list {
		if f == pf {
			return true
		}
	}
	return false
}
