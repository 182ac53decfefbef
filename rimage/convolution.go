package rimage

import (
	"image"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camisp/utils"
)

// Kernel is a 2D convolution kernel scaled by Factor.
type Kernel struct {
	Content [][]float64
	Height  int
	Width   int
	Factor  float64
}

// NewKernel builds a kernel from rows of weights; every row must have the same length.
func NewKernel(rows [][]float64, factor float64) (Kernel, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return Kernel{}, errors.New("kernel must not be empty")
	}
	for _, row := range rows {
		if len(row) != len(rows[0]) {
			return Kernel{}, errors.New("kernel rows must have the same length")
		}
	}
	if factor == 0 {
		factor = 1
	}
	return Kernel{Content: rows, Height: len(rows), Width: len(rows[0]), Factor: factor}, nil
}

// Size returns the kernel dimensions.
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// At returns the scaled weight at (x, y).
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x] / k.Factor
}

// Anchor returns the kernel centre.
func (k *Kernel) Anchor() image.Point {
	return image.Point{k.Width / 2, k.Height / 2}
}

// GetSobelX returns the Kernel corresponding to the Sobel kernel in the x direction.
func GetSobelX() Kernel {
	return Kernel{[][]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}, 3, 3, 1}
}

// GetSobelY returns the Kernel corresponding to the Sobel kernel in the y direction.
func GetSobelY() Kernel {
	return Kernel{[][]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}, 3, 3, 1}
}

// ConvolveFloat64 correlates the matrix with the kernel centred on its anchor. Samples outside the
// matrix are mirrored without repeating the edge (reflect 101). There is no clamping.
func ConvolveFloat64(m *mat.Dense, kernel *Kernel) *mat.Dense {
	h, w := m.Dims()
	result := mat.NewDense(h, w, nil)
	anchor := kernel.Anchor()
	src := m.RawMatrix()
	dst := result.RawMatrix()
	utils.ParallelForEachRow(h, func(y int) {
		for x := 0; x < w; x++ {
			sum := 0.
			for ky := 0; ky < kernel.Height; ky++ {
				sy := utils.Reflect101(y+ky-anchor.Y, h)
				for kx := 0; kx < kernel.Width; kx++ {
					kE := kernel.Content[ky][kx]
					if kE == 0 {
						continue
					}
					sx := utils.Reflect101(x+kx-anchor.X, w)
					sum += src.Data[sy*src.Stride+sx] * kE
				}
			}
			dst.Data[y*dst.Stride+x] = sum / kernel.Factor
		}
	})
	return result
}

// Gradients returns the Sobel derivatives of the matrix in x and y.
func Gradients(m *mat.Dense) (*mat.Dense, *mat.Dense) {
	sobelX, sobelY := GetSobelX(), GetSobelY()
	return ConvolveFloat64(m, &sobelX), ConvolveFloat64(m, &sobelY)
}
