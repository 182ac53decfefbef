package chessboard

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camisp/utils"
)

// SubPixConfiguration controls iterative corner refinement.
type SubPixConfiguration struct {
	// HalfWindow is the half side of the search window; the window is 2*HalfWindow+1 pixels wide.
	HalfWindow    int     `json:"half_window"`
	MaxIterations int     `json:"max_iterations"`
	Epsilon       float64 `json:"epsilon"`
}

// DefaultSubPixConf is an 11x11 window, 30 iterations and a 0.01 pixel stopping distance.
var DefaultSubPixConf = SubPixConfiguration{
	HalfWindow:    5,
	MaxIterations: 30,
	Epsilon:       0.01,
}

// sampleBilinear reads lum at a sub-pixel location, clamping to the image.
func sampleBilinear(lum *mat.Dense, x, y float64) float64 {
	h, w := lum.Dims()
	x = utils.Clamp(x, 0, float64(w-1))
	y = utils.Clamp(y, 0, float64(h-1))
	x0, y0 := int(x), int(y)
	x1, y1 := utils.ClampInt(x0+1, 0, w-1), utils.ClampInt(y0+1, 0, h-1)
	fx, fy := x-float64(x0), y-float64(y0)
	top := lum.At(y0, x0)*(1-fx) + lum.At(y0, x1)*fx
	bottom := lum.At(y1, x0)*(1-fx) + lum.At(y1, x1)*fx
	return top*(1-fy) + bottom*fy
}

// RefineCorners moves every corner to the point where image gradients inside the window are
// orthogonal to the vectors from the corner, which holds exactly at a chessboard saddle. Each
// corner iterates until it moves less than Epsilon or MaxIterations is reached. A corner that
// drifts outside its window keeps its starting position.
func RefineCorners(lum *mat.Dense, corners []r2.Point, cfg SubPixConfiguration) []r2.Point {
	half := cfg.HalfWindow
	if half < 1 {
		half = 1
	}
	size := 2*half + 1

	// gaussian weights over the window
	weights := make([]float64, size*size)
	sigma := float64(half) / 2
	if sigma < 1 {
		sigma = 1
	}
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			weights[(dy+half)*size+dx+half] = math.Exp(-float64(dx*dx+dy*dy) / (2 * sigma * sigma))
		}
	}

	out := make([]r2.Point, len(corners))
	patchLen := (size + 2) * (size + 2)
	utils.GroupWorkParallel(len(corners), func(_, _, _, _ int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
		localPatch := make([]float64, patchLen)
		return func(_, k int) {
			start := corners[k]
			cur := start
			for it := 0; it < cfg.MaxIterations; it++ {
				// sample a patch one pixel larger than the window so gradients are central
				for py := 0; py < size+2; py++ {
					for px := 0; px < size+2; px++ {
						localPatch[py*(size+2)+px] = sampleBilinear(lum,
							cur.X+float64(px-half-1), cur.Y+float64(py-half-1))
					}
				}
				var a, b, c, bb1, bb2 float64
				for py := 1; py <= size; py++ {
					for px := 1; px <= size; px++ {
						gx := (localPatch[py*(size+2)+px+1] - localPatch[py*(size+2)+px-1]) / 2
						gy := (localPatch[(py+1)*(size+2)+px] - localPatch[(py-1)*(size+2)+px]) / 2
						wgt := weights[(py-1)*size+px-1]
						gxx, gxy, gyy := gx*gx*wgt, gx*gy*wgt, gy*gy*wgt
						ox, oy := float64(px-half-1), float64(py-half-1)
						a += gxx
						b += gxy
						c += gyy
						bb1 += gxx*ox + gxy*oy
						bb2 += gxy*ox + gyy*oy
					}
				}
				det := a*c - b*b
				if math.Abs(det) <= 1e-12 {
					break
				}
				// offset of the saddle relative to cur
				shiftX := (c*bb1 - b*bb2) / det
				shiftY := (a*bb2 - b*bb1) / det
				next := r2.Point{X: cur.X + shiftX, Y: cur.Y + shiftY}
				moved := next.Sub(cur).Norm()
				cur = next
				if moved <= cfg.Epsilon {
					break
				}
			}
			if math.Abs(cur.X-start.X) > float64(half) || math.Abs(cur.Y-start.Y) > float64(half) ||
				!utils.IsFinite(cur.X, cur.Y) {
				cur = start
			}
			out[k] = cur
		}, nil
	})
	return out
}
