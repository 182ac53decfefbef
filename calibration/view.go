// Package calibration estimates a camera's intrinsics and lens distortion from views of a planar
// chessboard and persists the result.
package calibration

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// GenerateObjectPoints returns the inner corners of a pattern.X by pattern.Y board with the given
// square size, row by row, at (j*square, i*square, 0) for row i and column j.
func GenerateObjectPoints(pattern image.Point, squareSize float64) []r3.Vector {
	if pattern.X <= 0 || pattern.Y <= 0 {
		return nil
	}
	pts := make([]r3.Vector, 0, pattern.X*pattern.Y)
	for i := 0; i < pattern.Y; i++ {
		for j := 0; j < pattern.X; j++ {
			pts = append(pts, r3.Vector{X: float64(j) * squareSize, Y: float64(i) * squareSize})
		}
	}
	return pts
}

// View is one accepted observation of the board: detected image corners paired with the board
// points they correspond to.
type View struct {
	ImagePoints  []r2.Point
	ObjectPoints []r3.Vector
	Pattern      image.Point
	SquareSize   float64
}

func (v View) clone() View {
	out := View{Pattern: v.Pattern, SquareSize: v.SquareSize}
	out.ImagePoints = append([]r2.Point(nil), v.ImagePoints...)
	out.ObjectPoints = append([]r3.Vector(nil), v.ObjectPoints...)
	return out
}
