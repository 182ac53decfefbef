package rimage

import (
	"image"
	"image/color"
	"image/draw"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/camisp/utils"
)

// Luma weights for RGB to gray conversion (ITU-R BT.601).
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// ToImage converts the buffer into a standard library image. Gray8 and Raw8 buffers become
// *image.Gray, RGB8 buffers become an opaque *image.RGBA.
func (b *PixelBuffer) ToImage() image.Image {
	rect := image.Rect(0, 0, b.Width, b.Height)
	switch b.Format {
	case RGB8:
		img := image.NewRGBA(rect)
		utils.ParallelForEachRow(b.Height, func(y int) {
			src := b.Pix[y*b.Width*3 : (y+1)*b.Width*3]
			dst := img.Pix[y*img.Stride : y*img.Stride+b.Width*4]
			for x := 0; x < b.Width; x++ {
				dst[4*x] = src[3*x]
				dst[4*x+1] = src[3*x+1]
				dst[4*x+2] = src[3*x+2]
				dst[4*x+3] = 0xff
			}
		})
		return img
	default:
		img := image.NewGray(rect)
		for y := 0; y < b.Height; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+b.Width], b.Pix[y*b.Width:(y+1)*b.Width])
		}
		return img
	}
}

// FromImage converts a standard library image into a buffer. Gray images keep a single channel
// (as Gray8, or Raw8 when raw is set); everything else is converted to RGB8.
func FromImage(img image.Image, raw bool) *PixelBuffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if gray, ok := img.(*image.Gray); ok || raw {
		if !ok {
			gray = image.NewGray(image.Rect(0, 0, w, h))
			draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)
		}
		format := Gray8
		if raw {
			format = Raw8
		}
		out := NewPixelBuffer(w, h, format)
		for y := 0; y < h; y++ {
			off := y * gray.Stride
			copy(out.Pix[y*w:(y+1)*w], gray.Pix[off:off+w])
		}
		return out
	}

	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)
	}
	out := NewPixelBuffer(w, h, RGB8)
	utils.ParallelForEachRow(h, func(y int) {
		src := nrgba.Pix[y*nrgba.Stride:]
		dst := out.Pix[y*w*3:]
		for x := 0; x < w; x++ {
			dst[3*x] = src[4*x]
			dst[3*x+1] = src[4*x+1]
			dst[3*x+2] = src[4*x+2]
		}
	})
	return out
}

// Luminance returns the buffer as a height x width matrix of intensities in [0, 255].
func Luminance(b *PixelBuffer) *mat.Dense {
	lum := mat.NewDense(b.Height, b.Width, nil)
	raw := lum.RawMatrix()
	switch b.Format {
	case RGB8:
		utils.ParallelForEachRow(b.Height, func(y int) {
			row := raw.Data[y*raw.Stride : y*raw.Stride+b.Width]
			for x := range row {
				r, g, bl := b.RGBAt(x, y)
				row[x] = lumaR*float64(r) + lumaG*float64(g) + lumaB*float64(bl)
			}
		})
	default:
		for y := 0; y < b.Height; y++ {
			row := raw.Data[y*raw.Stride : y*raw.Stride+b.Width]
			for x := range row {
				row[x] = float64(b.Pix[y*b.Width+x])
			}
		}
	}
	return lum
}

// ToGray converts the buffer into a Gray8 buffer.
func ToGray(b *PixelBuffer) *PixelBuffer {
	if b.Format != RGB8 {
		out := b.Clone()
		out.Format = Gray8
		return out
	}
	out := NewPixelBuffer(b.Width, b.Height, Gray8)
	utils.ParallelForEachRow(b.Height, func(y int) {
		for x := 0; x < b.Width; x++ {
			r, g, bl := b.RGBAt(x, y)
			out.Pix[y*b.Width+x] = utils.SaturateUint8(lumaR*float64(r) + lumaG*float64(g) + lumaB*float64(bl))
		}
	})
	return out
}

// ToRGB expands a single channel buffer into RGB8 by replicating it. RGB8 input is cloned.
func ToRGB(b *PixelBuffer) *PixelBuffer {
	if b.Format == RGB8 {
		return b.Clone()
	}
	out := NewPixelBuffer(b.Width, b.Height, RGB8)
	for i, v := range b.Pix {
		out.Pix[3*i] = v
		out.Pix[3*i+1] = v
		out.Pix[3*i+2] = v
	}
	return out
}

// GrayFromDense converts a matrix of intensities into a Gray8 buffer, saturating each value.
func GrayFromDense(m mat.Matrix) *PixelBuffer {
	h, w := m.Dims()
	out := NewPixelBuffer(w, h, Gray8)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Pix[y*w+x] = utils.SaturateUint8(m.At(y, x))
		}
	}
	return out
}

// ColorAt returns pixel (x, y) as a color.Color.
func (b *PixelBuffer) ColorAt(x, y int) color.Color {
	if b.Format == RGB8 {
		r, g, bl := b.RGBAt(x, y)
		return color.NRGBA{r, g, bl, 0xff}
	}
	return color.Gray{b.Pix[y*b.Width+x]}
}
