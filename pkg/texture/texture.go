// Package texture converts Go images into tightly packed RGBA8 pixel
// buffers, the layout memory-texture constructors expect as a contiguous
// byte array plus stride.
package texture

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/go-loom/loom/pkg/ffi"
)

// bytesPerPixel for 8-bit RGBA.
const bytesPerPixel = 4

// Payload is a packed RGBA8 pixel buffer. Stride is Width*4: rows are
// contiguous with no padding.
type Payload struct {
	Width  int
	Height int
	Stride int
	Pixels []byte
}

// FromImage repacks an image into RGBA8 at its own size.
func FromImage(img image.Image) Payload {
	b := img.Bounds()
	return render(img, b.Dx(), b.Dy())
}

// Scaled converts and resizes in one pass. Bilinear is a deliberate
// trade: texture uploads happen during commits, where latency matters
// more than resampling quality.
func Scaled(img image.Image, width, height int) Payload {
	if width <= 0 || height <= 0 {
		return Payload{}
	}
	return render(img, width, height)
}

func render(src image.Image, width, height int) Payload {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	// A fresh RGBA at origin is already tightly packed.
	packed := width * bytesPerPixel
	return Payload{Width: width, Height: height, Stride: packed, Pixels: dst.Pix}
}

// Empty reports whether the payload holds no pixels.
func (p Payload) Empty() bool { return len(p.Pixels) == 0 }

// PixelArg wraps the buffer as a borrowed contiguous byte-array argument
// for the texture constructor call.
func (p Payload) PixelArg() ffi.Arg {
	return ffi.Arg{
		Type:  ffi.Array(ffi.Uint8(), ffi.ListNone, true),
		Value: p.Pixels,
	}
}
