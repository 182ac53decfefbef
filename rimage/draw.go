package rimage

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

var font *truetype.Font

// init sets up the fonts we want to use.
func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Font returns the font we use for drawing.
func Font() *truetype.Font {
	return font
}

// NewDrawContext returns a drawing context over an RGB copy of the buffer.
func NewDrawContext(b *PixelBuffer) *gg.Context {
	return gg.NewContextForImage(ToRGB(b).ToImage())
}

// DrawString writes a string to the given context at a particular point.
func DrawString(dc *gg.Context, text string, x, y float64, c color.Color, size float64) {
	dc.SetFontFace(truetype.NewFace(Font(), &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.DrawString(text, x, y)
}

// DrawCircle outlines a circle of the given radius.
func DrawCircle(dc *gg.Context, x, y, radius float64, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawCircle(x, y, radius)
	dc.Stroke()
}

// DrawLine strokes a segment between two points.
func DrawLine(dc *gg.Context, x0, y0, x1, y1 float64, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawLine(x0, y0, x1, y1)
	dc.Stroke()
}

// DrawRectangleEmpty draws the outline of the given rectangle into the context.
func DrawRectangleEmpty(dc *gg.Context, r image.Rectangle, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
	dc.Stroke()
}

// BufferFromContext converts the drawn context back into an RGB8 buffer.
func BufferFromContext(dc *gg.Context) *PixelBuffer {
	return FromImage(dc.Image(), false)
}
