package chessboard

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camisp/rimage"
)

// saddleSigma smooths the luminance before taking second derivatives.
const saddleSigma = 1.0

// computePixelWiseHessianDeterminant computes hessian components for each pixel and returns a *mat.Dense containing
// the value of the determinant of the Hessian for each pixel.
// The sign and value of the determinant of the Hessian gives location of saddle points.
func computePixelWiseHessianDeterminant(img *mat.Dense) *mat.Dense {
	nRows, nCols := img.Dims()
	sobelX := rimage.GetSobelX()
	sobelY := rimage.GetSobelY()
	gX := rimage.ConvolveFloat64(img, &sobelX)
	gY := rimage.ConvolveFloat64(img, &sobelY)
	gXX := rimage.ConvolveFloat64(gX, &sobelX)
	gYY := rimage.ConvolveFloat64(gY, &sobelY)
	gXY := rimage.ConvolveFloat64(gX, &sobelY)

	m1 := mat.NewDense(nRows, nCols, nil)
	m2 := mat.NewDense(nRows, nCols, nil)
	out := mat.NewDense(nRows, nCols, nil)
	m1.MulElem(gXX, gYY)
	m2.MulElem(gXY, gXY)
	out.Sub(m1, m2)
	return out
}

// saddleMap returns the negated Hessian determinant of the smoothed luminance, so saddle points
// have positive scores.
func saddleMap(lum *mat.Dense) *mat.Dense {
	hessian := computePixelWiseHessianDeterminant(rimage.GaussianBlur(lum, saddleSigma))
	hessian.Scale(-1.0, hessian)
	return hessian
}

// saddleFraction returns the share of corners whose strongest response in a 3x3 neighbourhood is a
// saddle.
func saddleFraction(saddles *mat.Dense, corners []r2.Point) float64 {
	if len(corners) == 0 {
		return 0
	}
	h, w := saddles.Dims()
	count := 0
	for _, c := range corners {
		cx, cy := int(math.Round(c.X)), int(math.Round(c.Y))
		best := math.Inf(-1)
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				x, y := cx+dx, cy+dy
				if x < 0 || y < 0 || x >= w || y >= h {
					continue
				}
				best = math.Max(best, saddles.At(y, x))
			}
		}
		if best > 0 {
			count++
		}
	}
	return float64(count) / float64(len(corners))
}
