package frame

import (
	"reflect"
	"testing"
)

func TestLayout(t *testing.T) {
	tests := []struct {
		w, h   int
		f      PixelFormat
		stride int
		total  int
	}{
		{640, 480, NV12, 640, 460800},
		{640, 480, NV21, 640, 460800},
		{640, 480, YUYV, 640, 614400},
		{640, 480, UYVY, 640, 614400},
		{640, 480, YUV420, 640, 460800},
		{100, 50, NV12, 128, 12288},
		{100, 50, YVU420, 128, 12288},
		{1920, 1080, NV12, 1920, 3133440},
		{1920, 1080, YUV420, 1920, 3133440},
		{720, 480, NV16, 736, 706560},
		{640, 480, RGB565, 640, 0},
		{640, 480, YUV444, 640, 0},
		{640, 480, PixelFormat(0), 640, 0},
	}
	for _, tt := range tests {
		stride, total := Layout(tt.w, tt.h, tt.f)
		if stride != tt.stride || total != tt.total {
			t.Errorf("Layout(%d, %d, %s) = (%d, %d), want (%d, %d)",
				tt.w, tt.h, tt.f, stride, total, tt.stride, tt.total)
		}
	}
}

func TestLayoutSupported(t *testing.T) {
	sizes := [][2]int{{1, 1}, {31, 15}, {320, 240}, {641, 481}, {4096, 2160}}
	for _, f := range Supported() {
		for _, s := range sizes {
			_, first := Layout(s[0], s[1], f)
			_, again := Layout(s[0], s[1], f)
			if first <= 0 {
				t.Errorf("Layout(%dx%d %s) = %d, want > 0", s[0], s[1], f, first)
			}
			if first != again {
				t.Errorf("Layout(%dx%d %s) not deterministic: %d then %d", s[0], s[1], f, first, again)
			}
		}
	}
	for _, f := range Catalog {
		if contains(Supported(), f) {
			continue
		}
		if _, total := Layout(640, 480, f); total != 0 {
			t.Errorf("Layout(640x480 %s) = %d, want 0", f, total)
		}
	}
}

func TestPlanes(t *testing.T) {
	got := Planes(640, 480, NV12)
	want := []PlaneLayout{{0, 640}, {307200, 640}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NV12 planes = %v, want %v", got, want)
	}

	got = Planes(100, 50, YUV420)
	want = []PlaneLayout{{0, 128}, {8192, 64}, {10240, 64}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("YUV420 planes = %v, want %v", got, want)
	}

	got = Planes(640, 480, YUYV)
	want = []PlaneLayout{{0, 1280}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("YUYV planes = %v, want %v", got, want)
	}

	if p := Planes(640, 480, XRGB8888); p != nil {
		t.Errorf("XRGB8888 planes = %v, want nil", p)
	}
}

func TestGeometryValidate(t *testing.T) {
	if err := (Geometry{640, 480, NV12}).Validate(); err != nil {
		t.Errorf("valid geometry rejected: %v", err)
	}
	for _, g := range []Geometry{{0, 480, NV12}, {640, -1, NV12}, {640, 480, RGB888}} {
		if err := g.Validate(); err == nil {
			t.Errorf("%v: expected error", g)
		}
	}
}
