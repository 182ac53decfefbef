// Package rimage holds the in-memory pixel buffer shared by the calibration and ISP code, along
// with conversions, kernels and file codecs that operate on it.
package rimage

import (
	"fmt"
	"image"

	"github.com/pkg/errors"
)

// ErrInputInvalid is returned when a buffer or argument is malformed.
var ErrInputInvalid = errors.New("invalid input")

// NewInputInvalidError wraps ErrInputInvalid with a formatted reason.
func NewInputInvalidError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInputInvalid, format, args...)
}

// Format is the pixel layout of a PixelBuffer.
type Format int

const (
	// Gray8 is one byte of luminance per pixel.
	Gray8 Format = iota
	// Raw8 is one byte per pixel of an undemosaiced Bayer mosaic.
	Raw8
	// RGB8 is three interleaved bytes (R, G, B) per pixel.
	RGB8
)

// Channels returns the number of bytes per pixel.
func (f Format) Channels() int {
	switch f {
	case Gray8, Raw8:
		return 1
	case RGB8:
		return 3
	}
	return 0
}

func (f Format) String() string {
	switch f {
	case Gray8:
		return "gray8"
	case Raw8:
		return "raw8"
	case RGB8:
		return "rgb8"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// FormatFromString parses the names produced by Format.String.
func FormatFromString(s string) (Format, error) {
	switch s {
	case "gray8", "gray":
		return Gray8, nil
	case "raw8", "raw", "bayer":
		return Raw8, nil
	case "rgb8", "rgb":
		return RGB8, nil
	}
	return 0, NewInputInvalidError("unknown pixel format %q", s)
}

// PixelBuffer is a tightly packed 8-bit image. Stages never modify a buffer they were handed;
// they return a new one.
type PixelBuffer struct {
	Width  int
	Height int
	Format Format
	Pix    []byte
}

// NewPixelBuffer allocates a zeroed buffer.
func NewPixelBuffer(width, height int, format Format) *PixelBuffer {
	return &PixelBuffer{
		Width:  width,
		Height: height,
		Format: format,
		Pix:    make([]byte, width*height*format.Channels()),
	}
}

// Empty reports whether the buffer holds no pixels.
func (b *PixelBuffer) Empty() bool {
	return b == nil || b.Width == 0 || b.Height == 0
}

// Size returns the buffer dimensions.
func (b *PixelBuffer) Size() image.Point {
	return image.Point{b.Width, b.Height}
}

// Stride returns the number of bytes per row.
func (b *PixelBuffer) Stride() int {
	return b.Width * b.Format.Channels()
}

// Validate checks that the dimensions, format and payload agree.
func (b *PixelBuffer) Validate() error {
	if b == nil {
		return NewInputInvalidError("nil pixel buffer")
	}
	if b.Width < 0 || b.Height < 0 {
		return NewInputInvalidError("negative dimensions %dx%d", b.Width, b.Height)
	}
	channels := b.Format.Channels()
	if channels == 0 {
		return NewInputInvalidError("unknown pixel format %v", b.Format)
	}
	if want := b.Width * b.Height * channels; len(b.Pix) != want {
		return NewInputInvalidError("%v buffer %dx%d needs %d bytes, has %d", b.Format, b.Width, b.Height, want, len(b.Pix))
	}
	return nil
}

// Clone returns a deep copy of the buffer.
func (b *PixelBuffer) Clone() *PixelBuffer {
	if b == nil {
		return nil
	}
	pix := make([]byte, len(b.Pix))
	copy(pix, b.Pix)
	return &PixelBuffer{Width: b.Width, Height: b.Height, Format: b.Format, Pix: pix}
}

// At returns the byte for channel c of pixel (x, y).
func (b *PixelBuffer) At(x, y, c int) uint8 {
	return b.Pix[(y*b.Width+x)*b.Format.Channels()+c]
}

// Set writes the byte for channel c of pixel (x, y).
func (b *PixelBuffer) Set(x, y, c int, v uint8) {
	b.Pix[(y*b.Width+x)*b.Format.Channels()+c] = v
}

// RGBAt returns the three channels of an RGB8 pixel.
func (b *PixelBuffer) RGBAt(x, y int) (uint8, uint8, uint8) {
	i := (y*b.Width + x) * 3
	return b.Pix[i], b.Pix[i+1], b.Pix[i+2]
}

// SetRGB writes the three channels of an RGB8 pixel.
func (b *PixelBuffer) SetRGB(x, y int, r, g, bl uint8) {
	i := (y*b.Width + x) * 3
	b.Pix[i] = r
	b.Pix[i+1] = g
	b.Pix[i+2] = bl
}
