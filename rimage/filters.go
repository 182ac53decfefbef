package rimage

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/camisp/utils"
)

// Helper function for convolving matrices together, When used with i, dx := range makeRangeArray(n)
// i is the position within the kernel and dx gives the offset within the image.
// if length is even, then the origin is to the right of middle i.e. 4 -> {-2, -1, 0, 1}.
func makeRangeArray(length int) []int {
	if length <= 0 {
		return make([]int, 0)
	}
	rangeArray := make([]int, length)
	var span int
	if length%2 == 0 {
		oddArr := makeRangeArray(length - 1)
		span = length / 2
		rangeArray = append([]int{-span}, oddArr...)
	} else {
		span = (length - 1) / 2
		for i := 0; i < span; i++ {
			rangeArray[length-1-i] = span - i
			rangeArray[i] = -span + i
		}
	}
	return rangeArray
}

// GaussianFunction1D takes in a sigma and returns a gaussian function useful for weighing averages or blurring.
func GaussianFunction1D(sigma float64) func(p float64) float64 {
	if sigma <= 0. {
		return func(p float64) float64 {
			return 1.
		}
	}
	return func(p float64) float64 {
		return math.Exp(-0.5*math.Pow(p, 2)/math.Pow(sigma, 2)) / (sigma * math.Sqrt(2.*math.Pi))
	}
}

// GaussianKernel1D returns normalized gaussian weights covering three sigma on each side.
func GaussianKernel1D(sigma float64) []float64 {
	k := 1 + 2*int(math.Ceil(3.*sigma))
	if k < 3 {
		k = 3
	}
	gaus := GaussianFunction1D(sigma)
	weights := make([]float64, k)
	sum := 0.
	for i, dx := range makeRangeArray(k) {
		weights[i] = gaus(float64(dx))
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// GaussianBlur smooths the matrix with a separable gaussian and reflect 101 borders.
func GaussianBlur(m *mat.Dense, sigma float64) *mat.Dense {
	weights := GaussianKernel1D(sigma)
	row, err := NewKernel([][]float64{weights}, 1)
	if err != nil {
		return mat.DenseCopyOf(m)
	}
	col := make([][]float64, len(weights))
	for i, w := range weights {
		col[i] = []float64{w}
	}
	column, err := NewKernel(col, 1)
	if err != nil {
		return mat.DenseCopyOf(m)
	}
	return ConvolveFloat64(ConvolveFloat64(m, &row), &column)
}

// IntegralImage holds summed area tables with one extra leading row and column of zeros.
type IntegralImage struct {
	Width, Height int
	sum           []float64
}

// NewIntegralImage builds the summed area table of m.
func NewIntegralImage(m *mat.Dense) *IntegralImage {
	h, w := m.Dims()
	ii := &IntegralImage{Width: w, Height: h, sum: make([]float64, (w+1)*(h+1))}
	for y := 0; y < h; y++ {
		rowSum := 0.
		for x := 0; x < w; x++ {
			rowSum += m.At(y, x)
			ii.sum[(y+1)*(w+1)+x+1] = ii.sum[y*(w+1)+x+1] + rowSum
		}
	}
	return ii
}

// Sum returns the sum over the half open rectangle [x0, x1) x [y0, y1), clipped to the image.
func (ii *IntegralImage) Sum(x0, y0, x1, y1 int) float64 {
	x0 = utils.ClampInt(x0, 0, ii.Width)
	x1 = utils.ClampInt(x1, 0, ii.Width)
	y0 = utils.ClampInt(y0, 0, ii.Height)
	y1 = utils.ClampInt(y1, 0, ii.Height)
	if x1 <= x0 || y1 <= y0 {
		return 0
	}
	stride := ii.Width + 1
	return ii.sum[y1*stride+x1] - ii.sum[y0*stride+x1] - ii.sum[y1*stride+x0] + ii.sum[y0*stride+x0]
}

// BoxMean returns the mean of every blockSize x blockSize neighbourhood, shrinking the window at
// the borders.
func BoxMean(m *mat.Dense, blockSize int) *mat.Dense {
	h, w := m.Dims()
	ii := NewIntegralImage(m)
	half := blockSize / 2
	out := mat.NewDense(h, w, nil)
	raw := out.RawMatrix()
	utils.ParallelForEachRow(h, func(y int) {
		y0, y1 := y-half, y+half+1
		for x := 0; x < w; x++ {
			x0, x1 := x-half, x+half+1
			cx0, cx1 := utils.ClampInt(x0, 0, w), utils.ClampInt(x1, 0, w)
			cy0, cy1 := utils.ClampInt(y0, 0, h), utils.ClampInt(y1, 0, h)
			area := float64((cx1 - cx0) * (cy1 - cy0))
			raw.Data[y*raw.Stride+x] = ii.Sum(x0, y0, x1, y1) / area
		}
	})
	return out
}
