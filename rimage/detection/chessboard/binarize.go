package chessboard

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/camisp/rimage"
	"go.viam.com/camisp/utils"
)

// binaryImage marks dark pixels with true, row-major.
type binaryImage struct {
	width, height int
	dark          []bool
}

func (b *binaryImage) at(x, y int) bool {
	return b.dark[y*b.width+x]
}

// adaptiveThreshold marks pixels darker than their blockSize neighbourhood mean by more than offset.
func adaptiveThreshold(lum *mat.Dense, blockSize int, offset float64) *binaryImage {
	h, w := lum.Dims()
	mean := rimage.BoxMean(lum, blockSize)
	out := &binaryImage{width: w, height: h, dark: make([]bool, w*h)}
	utils.ParallelForEachRow(h, func(y int) {
		for x := 0; x < w; x++ {
			out.dark[y*w+x] = lum.At(y, x) < mean.At(y, x)-offset
		}
	})
	return out
}

// otsuLevel returns the gray level maximizing the between-class variance of the histogram.
func otsuLevel(lum *mat.Dense) float64 {
	var hist [256]float64
	h, w := lum.Dims()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hist[utils.SaturateUint8(lum.At(y, x))]++
		}
	}
	total := float64(w * h)
	sum := 0.
	for i, c := range hist {
		sum += float64(i) * c
	}
	sumB, wB := 0., 0.
	best, level := -1., 0.
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * hist[t]
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			level = float64(t)
		}
	}
	return level
}

// globalThreshold marks pixels at or below level as dark.
func globalThreshold(lum *mat.Dense, level float64) *binaryImage {
	h, w := lum.Dims()
	out := &binaryImage{width: w, height: h, dark: make([]bool, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.dark[y*w+x] = lum.At(y, x) <= level
		}
	}
	return out
}

// erodeDark shrinks dark regions with a 3x3 cross, iterations times. Squares that touch at a corner
// come apart this way.
func erodeDark(b *binaryImage, iterations int) *binaryImage {
	cur := b
	for it := 0; it < iterations; it++ {
		next := &binaryImage{width: b.width, height: b.height, dark: make([]bool, len(b.dark))}
		for y := 0; y < b.height; y++ {
			for x := 0; x < b.width; x++ {
				if !cur.at(x, y) {
					continue
				}
				keep := true
				for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					nx, ny := x+d[0], y+d[1]
					if nx < 0 || ny < 0 || nx >= b.width || ny >= b.height || !cur.at(nx, ny) {
						keep = false
						break
					}
				}
				next.dark[y*b.width+x] = keep
			}
		}
		cur = next
	}
	return cur
}

// contrastRange returns the spread between the 2nd and 98th luminance percentiles.
func contrastRange(lum *mat.Dense) float64 {
	var hist [256]int
	h, w := lum.Dims()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hist[utils.SaturateUint8(lum.At(y, x))]++
		}
	}
	total := w * h
	lowCount := int(math.Ceil(0.02 * float64(total)))
	lo, hi := 0, 255
	acc := 0
	for i := 0; i < 256; i++ {
		acc += hist[i]
		if acc >= lowCount {
			lo = i
			break
		}
	}
	acc = 0
	for i := 255; i >= 0; i-- {
		acc += hist[i]
		if acc >= lowCount {
			hi = i
			break
		}
	}
	return float64(hi - lo)
}
