//go:build linux

package capture

import (
	"bytes"
	"encoding/binary"
	"os"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/adamlouis/decimator/buffer"
	"github.com/adamlouis/decimator/frame"
	"github.com/adamlouis/decimator/internal/cstr"
	"github.com/adamlouis/decimator/ioctl"
)

const (
	V4L2_CAP_VIDEO_CAPTURE      uint32 = 0x00000001
	V4L2_CAP_STREAMING          uint32 = 0x04000000
	V4L2_BUF_TYPE_VIDEO_CAPTURE uint32 = 1
	V4L2_MEMORY_DMABUF          uint32 = 4
	V4L2_FIELD_ANY              uint32 = 0
)

const (
	V4L2_FRMSIZE_TYPE_DISCRETE   uint32 = 1
	V4L2_FRMSIZE_TYPE_CONTINUOUS uint32 = 2
	V4L2_FRMSIZE_TYPE_STEPWISE   uint32 = 3
)

var (
	VIDIOC_QUERYCAP = ioctl.IoR(uintptr('V'), 0, unsafe.Sizeof(v4l2_capability{}))
	VIDIOC_ENUM_FMT = ioctl.IoRW(uintptr('V'), 2, unsafe.Sizeof(v4l2_fmtdesc{}))
	VIDIOC_S_FMT    = ioctl.IoRW(uintptr('V'), 5, unsafe.Sizeof(v4l2_format{}))
	VIDIOC_REQBUFS  = ioctl.IoRW(uintptr('V'), 8, unsafe.Sizeof(v4l2_requestbuffers{}))
	VIDIOC_QBUF     = ioctl.IoRW(uintptr('V'), 15, unsafe.Sizeof(v4l2_buffer{}))
	VIDIOC_DQBUF    = ioctl.IoRW(uintptr('V'), 17, unsafe.Sizeof(v4l2_buffer{}))
	//sizeof int32
	VIDIOC_STREAMON        = ioctl.IoW(uintptr('V'), 18, 4)
	VIDIOC_STREAMOFF       = ioctl.IoW(uintptr('V'), 19, 4)
	VIDIOC_ENUM_FRAMESIZES = ioctl.IoRW(uintptr('V'), 74, unsafe.Sizeof(v4l2_frmsizeenum{}))
	NativeByteOrder        = getNativeByteOrder()
)

const ptrSize = unsafe.Sizeof(uintptr(0))

type v4l2_capability struct {
	driver       [16]uint8
	card         [32]uint8
	bus_info     [32]uint8
	version      uint32
	capabilities uint32
	device_caps  uint32
	reserved     [3]uint32
}

type v4l2_fmtdesc struct {
	index       uint32
	_type       uint32
	flags       uint32
	description [32]uint8
	pixelformat uint32
	mbus_code   uint32
	reserved    [3]uint32
}

type v4l2_frmsizeenum struct {
	index        uint32
	pixel_format uint32
	_type        uint32
	union        [24]uint8
	reserved     [2]uint32
}

type v4l2_frmsize_discrete struct {
	Width  uint32
	Height uint32
}

type v4l2_frmsize_stepwise struct {
	Min_width   uint32
	Max_width   uint32
	Step_width  uint32
	Min_height  uint32
	Max_height  uint32
	Step_height uint32
}

//Hack to make go compiler properly align union
type v4l2_format_aligned_union struct {
	data [200 - ptrSize]byte
	_    unsafe.Pointer
}

type v4l2_format struct {
	_type uint32
	union v4l2_format_aligned_union
}

type v4l2_pix_format struct {
	Width        uint32
	Height       uint32
	Pixelformat  uint32
	Field        uint32
	Bytesperline uint32
	Sizeimage    uint32
	Colorspace   uint32
	Priv         uint32
	Flags        uint32
	Ycbcr_enc    uint32
	Quantization uint32
	Xfer_func    uint32
}

type v4l2_requestbuffers struct {
	count        uint32
	_type        uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

type v4l2_buffer struct {
	index     uint32
	_type     uint32
	bytesused uint32
	flags     uint32
	field     uint32
	timestamp unix.Timeval
	timecode  v4l2_timecode
	sequence  uint32
	memory    uint32
	union     [ptrSize]uint8
	length    uint32
	reserved2 uint32
	reserved  uint32
}

type v4l2_timecode struct {
	_type    uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

// V4L2 is a capture Device backed by a Video4Linux node. Buffers are
// imported from the pool as dma-buf descriptors; the device never
// allocates or maps frame memory itself.
type V4L2 struct {
	path string
	file *os.File
	log  *zap.Logger
}

// OpenV4L2 opens a video capture node in non-blocking mode and checks that
// it supports streaming capture.
func OpenV4L2(path string, log *zap.Logger) (*V4L2, error) {
	if log == nil {
		log = zap.NewNop()
	}
	file, err := os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	supportsVideoCapture, supportsVideoStreaming, err := checkCapabilities(file.Fd())
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "%s: query capabilities", path)
	}
	if !supportsVideoCapture {
		file.Close()
		return nil, errors.Errorf("%s: not a video capture device", path)
	}
	if !supportsVideoStreaming {
		file.Close()
		return nil, errors.Errorf("%s: device does not support the streaming I/O method", path)
	}
	log.Debug("capture device opened", zap.String("path", path))
	return &V4L2{path: path, file: file, log: log}, nil
}

func (v *V4L2) fd() uintptr { return v.file.Fd() }

func (v *V4L2) SetFormat(g frame.Geometry) (frame.Geometry, error) {
	code := uint32(g.Format)
	width := uint32(g.Width)
	height := uint32(g.Height)
	if err := setImageFormat(v.fd(), &code, &width, &height); err != nil {
		return frame.Geometry{}, errors.Wrap(err, "VIDIOC_S_FMT")
	}
	return frame.Geometry{Width: int(width), Height: int(height), Format: frame.PixelFormat(code)}, nil
}

func (v *V4L2) RequestBuffers(count int) (int, error) {
	n := uint32(count)
	if err := dmabufRequestBuffers(v.fd(), &n); err != nil {
		return 0, errors.Wrap(err, "VIDIOC_REQBUFS")
	}
	return int(n), nil
}

func (v *V4L2) Queue(index int, d buffer.Descriptor, size int) error {
	return errors.Wrap(dmabufEnqueueBuffer(v.fd(), uint32(index), int32(d), uint32(size)), "VIDIOC_QBUF")
}

func (v *V4L2) Wait(timeout time.Duration) error {
	count, err := waitForFrame(v.fd(), timeout)
	switch {
	case err != nil:
		return errors.Wrap(err, "select")
	case count == 0:
		return &Timeout{}
	}
	return nil
}

func (v *V4L2) Dequeue() (int, error) {
	var index uint32
	err := dmabufDequeueBuffer(v.fd(), &index)
	if err == unix.EAGAIN {
		return -1, ErrNotReady
	}
	if err != nil {
		return -1, errors.Wrap(err, "VIDIOC_DQBUF")
	}
	return int(index), nil
}

func (v *V4L2) StreamOn() error {
	return errors.Wrap(startStreaming(v.fd()), "VIDIOC_STREAMON")
}

func (v *V4L2) StreamOff() error {
	return errors.Wrap(stopStreaming(v.fd()), "VIDIOC_STREAMOFF")
}

func (v *V4L2) Close() error {
	return v.file.Close()
}

// SupportedFormats returns the device's pixel formats and their descriptions.
func (v *V4L2) SupportedFormats() map[frame.PixelFormat]string {
	result := make(map[frame.PixelFormat]string)
	for index := uint32(0); ; index++ {
		code, desc, err := getPixelFormat(v.fd(), index)
		if err != nil {
			break
		}
		result[frame.PixelFormat(code)] = desc
	}
	return result
}

// SupportedFrameSizes returns the frame sizes the device offers for f.
func (v *V4L2) SupportedFrameSizes(f frame.PixelFormat) []FrameSize {
	var result []FrameSize
	for index := uint32(0); ; index++ {
		s, err := getFrameSize(v.fd(), index, uint32(f))
		if err != nil {
			break
		}
		result = append(result, s)
	}
	return result
}

func checkCapabilities(fd uintptr) (supportsVideoCapture bool, supportsVideoStreaming bool, err error) {

	caps := &v4l2_capability{}

	err = ioctl.Ioctl(fd, VIDIOC_QUERYCAP, uintptr(unsafe.Pointer(caps)))

	if err != nil {
		return
	}

	supportsVideoCapture = (caps.capabilities & V4L2_CAP_VIDEO_CAPTURE) != 0
	supportsVideoStreaming = (caps.capabilities & V4L2_CAP_STREAMING) != 0
	return

}

func getPixelFormat(fd uintptr, index uint32) (code uint32, description string, err error) {

	fmtdesc := &v4l2_fmtdesc{}

	fmtdesc.index = index
	fmtdesc._type = V4L2_BUF_TYPE_VIDEO_CAPTURE

	err = ioctl.Ioctl(fd, VIDIOC_ENUM_FMT, uintptr(unsafe.Pointer(fmtdesc)))

	if err != nil {
		return
	}

	code = fmtdesc.pixelformat
	description = cstr.ToString(fmtdesc.description[:])

	return
}

func getFrameSize(fd uintptr, index uint32, code uint32) (frameSize FrameSize, err error) {

	frmsizeenum := &v4l2_frmsizeenum{}
	frmsizeenum.index = index
	frmsizeenum.pixel_format = code

	err = ioctl.Ioctl(fd, VIDIOC_ENUM_FRAMESIZES, uintptr(unsafe.Pointer(frmsizeenum)))

	if err != nil {
		return
	}

	switch frmsizeenum._type {

	case V4L2_FRMSIZE_TYPE_DISCRETE:
		discrete := &v4l2_frmsize_discrete{}
		err = binary.Read(bytes.NewBuffer(frmsizeenum.union[:]), NativeByteOrder, discrete)

		if err != nil {
			return
		}

		frameSize.MinWidth = discrete.Width
		frameSize.MaxWidth = discrete.Width
		frameSize.MinHeight = discrete.Height
		frameSize.MaxHeight = discrete.Height

	case V4L2_FRMSIZE_TYPE_CONTINUOUS, V4L2_FRMSIZE_TYPE_STEPWISE:
		stepwise := &v4l2_frmsize_stepwise{}
		err = binary.Read(bytes.NewBuffer(frmsizeenum.union[:]), NativeByteOrder, stepwise)

		if err != nil {
			return
		}

		frameSize.MinWidth = stepwise.Min_width
		frameSize.MaxWidth = stepwise.Max_width
		frameSize.StepWidth = stepwise.Step_width
		frameSize.MinHeight = stepwise.Min_height
		frameSize.MaxHeight = stepwise.Max_height
		frameSize.StepHeight = stepwise.Step_height
	}

	return
}

func setImageFormat(fd uintptr, formatcode *uint32, width *uint32, height *uint32) (err error) {

	format := &v4l2_format{
		_type: V4L2_BUF_TYPE_VIDEO_CAPTURE,
	}

	pix := v4l2_pix_format{
		Width:       *width,
		Height:      *height,
		Pixelformat: *formatcode,
		Field:       V4L2_FIELD_ANY,
	}

	pixbytes := &bytes.Buffer{}
	err = binary.Write(pixbytes, NativeByteOrder, pix)

	if err != nil {
		return
	}

	copy(format.union.data[:], pixbytes.Bytes())

	err = ioctl.Ioctl(fd, VIDIOC_S_FMT, uintptr(unsafe.Pointer(format)))

	if err != nil {
		return
	}

	pixReverse := &v4l2_pix_format{}
	err = binary.Read(bytes.NewBuffer(format.union.data[:]), NativeByteOrder, pixReverse)

	if err != nil {
		return
	}

	*width = pixReverse.Width
	*height = pixReverse.Height
	*formatcode = pixReverse.Pixelformat

	return

}

func dmabufRequestBuffers(fd uintptr, buf_count *uint32) (err error) {

	req := &v4l2_requestbuffers{}
	req.count = *buf_count
	req._type = V4L2_BUF_TYPE_VIDEO_CAPTURE
	req.memory = V4L2_MEMORY_DMABUF

	err = ioctl.Ioctl(fd, VIDIOC_REQBUFS, uintptr(unsafe.Pointer(req)))

	if err != nil {
		return
	}

	*buf_count = req.count

	return

}

func dmabufEnqueueBuffer(fd uintptr, index uint32, dmafd int32, length uint32) (err error) {

	buf := &v4l2_buffer{}

	buf._type = V4L2_BUF_TYPE_VIDEO_CAPTURE
	buf.memory = V4L2_MEMORY_DMABUF
	buf.index = index
	buf.length = length
	NativeByteOrder.PutUint32(buf.union[:4], uint32(dmafd))

	err = ioctl.Ioctl(fd, VIDIOC_QBUF, uintptr(unsafe.Pointer(buf)))
	return

}

func dmabufDequeueBuffer(fd uintptr, index *uint32) (err error) {

	buf := &v4l2_buffer{}

	buf._type = V4L2_BUF_TYPE_VIDEO_CAPTURE
	buf.memory = V4L2_MEMORY_DMABUF

	err = ioctl.Ioctl(fd, VIDIOC_DQBUF, uintptr(unsafe.Pointer(buf)))

	if err != nil {
		return
	}

	*index = buf.index

	return

}

func startStreaming(fd uintptr) (err error) {

	var uintPointer uint32 = V4L2_BUF_TYPE_VIDEO_CAPTURE
	err = ioctl.Ioctl(fd, VIDIOC_STREAMON, uintptr(unsafe.Pointer(&uintPointer)))
	return

}

func stopStreaming(fd uintptr) (err error) {

	var uintPointer uint32 = V4L2_BUF_TYPE_VIDEO_CAPTURE
	err = ioctl.Ioctl(fd, VIDIOC_STREAMOFF, uintptr(unsafe.Pointer(&uintPointer)))
	return

}

// waitForFrame waits for fd to become readable. A zero timeout waits
// forever.
func waitForFrame(fd uintptr, timeout time.Duration) (count int, err error) {

	for {
		fds := &unix.FdSet{}
		fds.Set(int(fd))

		var tv *unix.Timeval
		if timeout > 0 {
			nativeTimeVal := unix.NsecToTimeval(timeout.Nanoseconds())
			tv = &nativeTimeVal
		}

		count, err = unix.Select(int(fd+1), fds, nil, nil, tv)

		if err == unix.EINTR {
			continue
		}
		return
	}

}

func getNativeByteOrder() binary.ByteOrder {
	var i int32 = 0x01020304
	u := unsafe.Pointer(&i)
	pb := (*byte)(u)
	b := *pb
	if b == 0x04 {
		return binary.LittleEndian
	} else {
		return binary.BigEndian
	}
}
