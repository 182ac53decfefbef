package chessboard

import (
	"image"
	"image/color"
	"strconv"

	"github.com/golang/geo/r2"
	"github.com/lucasb-eyer/go-colorful"

	"go.viam.com/camisp/rimage"
)

var notFoundColor = color.NRGBA{R: 255, A: 255}

// rowColor spreads the rows of a found board around the hue circle.
func rowColor(row, rows int) color.Color {
	hue := 360 * float64(row) / float64(rows)
	return colorful.Hsv(hue, 0.9, 1).Clamped()
}

// DrawCorners renders the detected corners onto an RGB copy of img. Found boards get one color per
// row joined by lines in detection order plus index labels on the row starts. A partial detection
// is drawn as red circles only.
func DrawCorners(img *rimage.PixelBuffer, pattern image.Point, corners []r2.Point, found bool) *rimage.PixelBuffer {
	dc := rimage.NewDrawContext(img)
	radius := 4.
	if !found || pattern.X <= 0 || len(corners) != pattern.X*pattern.Y {
		for _, c := range corners {
			rimage.DrawCircle(dc, c.X, c.Y, radius, notFoundColor, 1)
		}
		return rimage.BufferFromContext(dc)
	}

	for k, c := range corners {
		row := k / pattern.X
		clr := rowColor(row, pattern.Y)
		if k > 0 {
			prev := corners[k-1]
			rimage.DrawLine(dc, prev.X, prev.Y, c.X, c.Y, clr, 1)
		}
		rimage.DrawCircle(dc, c.X, c.Y, radius, clr, 1)
		if k%pattern.X == 0 {
			rimage.DrawString(dc, strconv.Itoa(k), c.X+radius, c.Y-radius, clr, 10)
		}
	}
	return rimage.BufferFromContext(dc)
}
