package ioctl

import "testing"

func TestRequestNumbers(t *testing.T) {
	tests := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"VIDIOC_STREAMON", IoW('V', 18, 4), 0x40045612},
		{"VIDIOC_STREAMOFF", IoW('V', 19, 4), 0x40045613},
		{"VIDIOC_REQBUFS", IoRW('V', 8, 20), 0xc0145608},
		{"VIDIOC_QUERYCAP", IoR('V', 0, 104), 0x80685600},
		{"DRM_IOCTL_SET_CLIENT_CAP", IoW('d', 0x0d, 16), 0x4010640d},
		{"DRM_IOCTL_MODE_RMFB", IoRW('d', 0xaf, 4), 0xc00464af},
		{"DRM_IO no data", Io('d', 0x00), 0x6400},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %#x, want %#x", tt.name, tt.got, tt.want)
		}
	}
}
