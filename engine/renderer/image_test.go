package renderer

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func TestImageFromGo(t *testing.T) {
	src := image.NewGray(image.Rect(2, 3, 4, 4))
	src.SetGray(2, 3, color.Gray{Y: 10})
	src.SetGray(3, 3, color.Gray{Y: 200})
	img := ImageFromGo(src)
	want := []byte{10, 10, 10, 255, 200, 200, 200, 255}
	if img.Width != 2 || img.Height != 1 || img.Format != metadata.FormatRGBA8 || !bytes.Equal(img.Pixels, want) {
		t.Fatalf("ImageFromGo:\nhave %+v\nwant 2x1 RGBA8 %v", img, want)
	}

	scaled := ScaledImageFromGo(src, 4, 2)
	if scaled.Width != 4 || scaled.Height != 2 || len(scaled.Pixels) != 4*2*4 {
		t.Fatalf("ScaledImageFromGo:\nhave %dx%d, %d bytes\nwant 4x2, 32 bytes", scaled.Width, scaled.Height, len(scaled.Pixels))
	}
}

func TestImageToGo(t *testing.T) {
	bgra := Image{Width: 1, Height: 1, Format: metadata.FormatBGRA8, Pixels: []byte{1, 2, 3, 4}}
	if c := bgra.ToGo().NRGBAAt(0, 0); c != (color.NRGBA{3, 2, 1, 4}) {
		t.Fatalf("Image.ToGo (BGRA8):\nhave %v\nwant {3 2 1 4}", c)
	}

	r := Image{Width: 1, Height: 1, Format: metadata.FormatR8, Pixels: []byte{9}}
	if c := r.ToGo().NRGBAAt(0, 0); c != (color.NRGBA{9, 9, 9, 255}) {
		t.Fatalf("Image.ToGo (R8):\nhave %v\nwant {9 9 9 255}", c)
	}

	f := NewImage(1, 1, metadata.FormatRGBA32F)
	for i, v := range []float32{0, 0.5, 2, -1} {
		binary.LittleEndian.PutUint32(f.Pixels[4*i:], math.Float32bits(v))
	}
	if c := f.ToGo().NRGBAAt(0, 0); c != (color.NRGBA{0, 128, 255, 0}) {
		t.Fatalf("Image.ToGo (RGBA32F):\nhave %v\nwant {0 128 255 0}", c)
	}

	// 1.0 and 0.5 in half precision.
	h := Image{Width: 1, Height: 1, Format: metadata.FormatRG16F, Pixels: []byte{0x00, 0x3c, 0x00, 0x38}}
	if c := h.ToGo().NRGBAAt(0, 0); c != (color.NRGBA{255, 128, 0, 255}) {
		t.Fatalf("Image.ToGo (RG16F):\nhave %v\nwant {255 128 0 255}", c)
	}

	d := NewImage(1, 1, metadata.FormatDepth32F)
	if d.ToGo() != nil {
		t.Fatal("Image.ToGo (depth): not nil")
	}
}

func TestHalfToFloat(t *testing.T) {
	for _, x := range [...]struct {
		h uint16
		f float32
	}{
		{0x0000, 0},
		{0x3c00, 1},
		{0xc000, -2},
		{0x3555, 0.333251953125},
		{0x0001, 5.960464477539063e-08},
		{0x7bff, 65504},
	} {
		if f := halfToFloat(x.h); f != x.f {
			t.Fatalf("halfToFloat(%#04x):\nhave %v\nwant %v", x.h, f, x.f)
		}
	}
	if f := halfToFloat(0x7c00); !math.IsInf(float64(f), 1) {
		t.Fatalf("halfToFloat(0x7c00):\nhave %v\nwant +Inf", f)
	}
}
