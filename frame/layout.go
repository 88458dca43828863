package frame

const (
	strideAlign = 32
	heightAlign = 16
	chromaAlign = 16
)

func align(x, a int) int {
	return (x + a - 1) &^ (a - 1)
}

// PlaneLayout locates one memory plane of a frame inside its buffer.
type PlaneLayout struct {
	Offset int
	Pitch  int // bytes per row
}

// Layout returns the row stride in samples and the total buffer size in
// bytes for a width x height frame of format f. The stride is width rounded
// up to 32 samples and the luma plane is padded to a multiple of 16 rows.
// Unsupported formats have a total of 0.
func Layout(width, height int, f PixelFormat) (stride, total int) {
	stride = align(width, strideAlign)
	luma := stride * align(height, heightAlign)

	switch f {
	case YUYV, YVYU, UYVY, VYUY, NV16, NV61:
		total = luma << 1
	case NV12, NV21:
		total = luma + stride*align(height>>1, chromaAlign)
	case YUV420, YVU420:
		total = luma + 2*(align(stride>>1, chromaAlign)*align(height>>1, chromaAlign))
	}
	return stride, total
}

// Planes returns the per-plane offsets and byte pitches matching Layout, or
// nil for an unsupported format.
func Planes(width, height int, f PixelFormat) []PlaneLayout {
	stride, total := Layout(width, height, f)
	if total == 0 {
		return nil
	}
	luma := stride * align(height, heightAlign)

	switch f {
	case YUYV, YVYU, UYVY, VYUY:
		return []PlaneLayout{{0, stride * 2}}
	case NV12, NV21, NV16, NV61:
		return []PlaneLayout{{0, stride}, {luma, stride}}
	default:
		cstride := align(stride>>1, chromaAlign)
		cplane := cstride * align(height>>1, chromaAlign)
		return []PlaneLayout{{0, stride}, {luma, cstride}, {luma + cplane, cstride}}
	}
}

// Supported lists the formats with a non-zero Layout.
func Supported() []PixelFormat {
	return []PixelFormat{YUYV, YVYU, UYVY, VYUY, NV12, NV21, NV16, NV61, YUV420, YVU420}
}
