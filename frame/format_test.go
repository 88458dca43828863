package frame

import "testing"

func TestFourCC(t *testing.T) {
	if NV12.String() != "NV12" {
		t.Errorf("NV12 = %q", NV12.String())
	}
	// Same code as V4L2_PIX_FMT_YUYV.
	if uint32(YUYV) != 0x56595559 {
		t.Errorf("YUYV = %#x", uint32(YUYV))
	}
	for _, f := range Catalog {
		back, err := ParseFourCC(f.FourCC())
		if err != nil || back != f {
			t.Errorf("ParseFourCC(%q) = %v, %v", f.FourCC(), back, err)
		}
	}
	if _, err := ParseFourCC("NV1"); err == nil {
		t.Error("expected error for short fourcc")
	}
}

func TestCatalogAt(t *testing.T) {
	f, err := CatalogAt(DefaultCatalogIndex)
	if err != nil || f != YUV420 {
		t.Errorf("CatalogAt(%d) = %v, %v", DefaultCatalogIndex, f, err)
	}
	if _, err := CatalogAt(len(Catalog)); err == nil {
		t.Error("expected error past the end of the catalog")
	}
	if _, err := CatalogAt(-1); err == nil {
		t.Error("expected error for negative index")
	}
}

func TestChoose(t *testing.T) {
	caps := []PixelFormat{XRGB8888, NV12, YUV420}

	if f, err := Choose(NV12, caps); err != nil || f != NV12 {
		t.Errorf("Choose(NV12) = %v, %v", f, err)
	}
	if _, err := Choose(YUYV, caps); err == nil {
		t.Error("expected error for format the plane lacks")
	}
	grey, _ := ParseFourCC("GREY")
	if _, err := Choose(grey, append(caps, grey)); err == nil {
		t.Error("expected error for format outside the catalog")
	}
}
