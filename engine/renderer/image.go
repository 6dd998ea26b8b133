package renderer

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
	"golang.org/x/image/draw"
)

// Image is a tightly packed CPU image.
type Image struct {
	Width  uint32
	Height uint32
	Format metadata.Format
	Pixels []byte
}

// NewImage returns a zeroed image.
func NewImage(width, height uint32, format metadata.Format) Image {
	return Image{
		Width:  width,
		Height: height,
		Format: format,
		Pixels: make([]byte, int(width*height)*format.PixelSize()),
	}
}

// ImageFromGo converts any Go image to RGBA8.
func ImageFromGo(src image.Image) Image {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return Image{
		Width:  uint32(b.Dx()),
		Height: uint32(b.Dy()),
		Format: metadata.FormatRGBA8,
		Pixels: dst.Pix,
	}
}

// ScaledImageFromGo converts src to RGBA8 and resamples it to
// width by height.
func ScaledImageFromGo(src image.Image, width, height uint32) Image {
	dst := image.NewNRGBA(image.Rect(0, 0, int(width), int(height)))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return Image{Width: width, Height: height, Format: metadata.FormatRGBA8, Pixels: dst.Pix}
}

// ToGo converts the image to NRGBA for encoding. Float formats
// are clamped to [0,1]. It returns nil for depth formats.
func (img *Image) ToGo() *image.NRGBA {
	f := img.Format
	if f.IsDepth() || f == metadata.FormatUndefined {
		return nil
	}
	out := image.NewNRGBA(image.Rect(0, 0, int(img.Width), int(img.Height)))
	n := f.Channels()
	cs := f.ChannelSize()
	px := f.PixelSize()
	for y := 0; y < int(img.Height); y++ {
		for x := 0; x < int(img.Width); x++ {
			off := (y*int(img.Width) + x) * px
			if off+px > len(img.Pixels) {
				return out
			}
			var c [4]uint8
			c[3] = 255
			for i := 0; i < n; i++ {
				c[i] = channel(img.Pixels[off+i*cs:off+(i+1)*cs], cs, f.IsFloat())
			}
			if n == 1 {
				c[1], c[2] = c[0], c[0]
			}
			if f == metadata.FormatBGRA8 || f == metadata.FormatSBGRA8 {
				c[0], c[2] = c[2], c[0]
			}
			out.SetNRGBA(x, y, color.NRGBA{c[0], c[1], c[2], c[3]})
		}
	}
	return out
}

func channel(b []byte, size int, float bool) uint8 {
	var v float64
	switch {
	case size == 1:
		return b[0]
	case size == 4 && float:
		v = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case size == 2 && float:
		v = float64(halfToFloat(binary.LittleEndian.Uint16(b)))
	default:
		return 0
	}
	v = math.Max(0, math.Min(1, v))
	return uint8(v*255 + 0.5)
}

func halfToFloat(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff
	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		f := float32(mant) / 1024 / 16384
		if sign != 0 {
			f = -f
		}
		return f
	case 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13)
	}
	return math.Float32frombits(sign | (exp+112)<<23 | mant<<13)
}
