package capture

import "fmt"

// FrameSize describes a frame size supported by a capture device.
// For fixed sizes min and max values will be the same and
// step value will be equal to '0'
type FrameSize struct {
	MinWidth  uint32
	MaxWidth  uint32
	StepWidth uint32

	MinHeight  uint32
	MaxHeight  uint32
	StepHeight uint32
}

func (s FrameSize) String() string {
	if s.StepWidth == 0 && s.StepHeight == 0 {
		return fmt.Sprintf("%dx%d", s.MaxWidth, s.MaxHeight)
	}
	return fmt.Sprintf("[%d-%d;%d]x[%d-%d;%d]", s.MinWidth, s.MaxWidth, s.StepWidth, s.MinHeight, s.MaxHeight, s.StepHeight)
}

// Fits reports whether a width x height frame can be captured at this size.
func (s FrameSize) Fits(width, height int) bool {
	w, h := uint32(width), uint32(height)
	if w < s.MinWidth || w > s.MaxWidth || h < s.MinHeight || h > s.MaxHeight {
		return false
	}
	if s.StepWidth > 0 && (w-s.MinWidth)%s.StepWidth != 0 {
		return false
	}
	if s.StepHeight > 0 && (h-s.MinHeight)%s.StepHeight != 0 {
		return false
	}
	return true
}
