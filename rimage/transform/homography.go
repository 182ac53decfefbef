package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 matrix (represented as a 2D array) used to map points of one plane onto
// another. Indices are [row][column].
type Homography [3][3]float64

// At returns the entry at (row, col).
func (h *Homography) At(row, col int) float64 {
	return h[row][col]
}

// Apply maps a point through the homography.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / z, Y: y / z}
}

// Dense returns the homography as a gonum matrix.
func (h *Homography) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	})
}

// normalizePoints returns the similarity that moves the centroid to the origin and scales the
// mean distance from it to sqrt(2).
func normalizePoints(pts []r2.Point) *mat.Dense {
	var c r2.Point
	for _, p := range pts {
		c = c.Add(p)
	}
	c = c.Mul(1 / float64(len(pts)))
	meanDist := 0.
	for _, p := range pts {
		meanDist += p.Sub(c).Norm()
	}
	meanDist /= float64(len(pts))
	s := 1.
	if meanDist > 0 {
		s = math.Sqrt2 / meanDist
	}
	return mat.NewDense(3, 3, []float64{
		s, 0, -s * c.X,
		0, s, -s * c.Y,
		0, 0, 1,
	})
}

func applyDense(t *mat.Dense, p r2.Point) r2.Point {
	x := t.At(0, 0)*p.X + t.At(0, 1)*p.Y + t.At(0, 2)
	y := t.At(1, 0)*p.X + t.At(1, 1)*p.Y + t.At(1, 2)
	w := t.At(2, 0)*p.X + t.At(2, 1)*p.Y + t.At(2, 2)
	return r2.Point{X: x / w, Y: y / w}
}

// EstimateHomography solves for H with dst ~ H·src using the normalized direct linear transform.
// At least four correspondences are needed.
func EstimateHomography(src, dst []r2.Point) (*Homography, error) {
	if len(src) != len(dst) {
		return nil, errors.Errorf("point count mismatch %d != %d", len(src), len(dst))
	}
	if len(src) < 4 {
		return nil, errors.Errorf("need at least 4 correspondences, got %d", len(src))
	}
	tSrc := normalizePoints(src)
	tDst := normalizePoints(dst)

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range src {
		p := applyDense(tSrc, src[i])
		q := applyDense(tDst, dst[i])
		a.SetRow(2*i, []float64{-p.X, -p.Y, -1, 0, 0, 0, q.X * p.X, q.X * p.Y, q.X})
		a.SetRow(2*i+1, []float64{0, 0, 0, -p.X, -p.Y, -1, q.Y * p.X, q.Y * p.Y, q.Y})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return nil, errors.New("homography SVD did not converge")
	}
	var v mat.Dense
	svd.VTo(&v)
	hn := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, v.At(i, 8))
	}

	// H = T_dst^-1 · Hn · T_src
	var tDstInv mat.Dense
	if err := tDstInv.Inverse(tDst); err != nil {
		return nil, errors.Wrap(err, "degenerate point set")
	}
	var tmp, full mat.Dense
	tmp.Mul(&tDstInv, hn)
	full.Mul(&tmp, tSrc)

	scale := full.At(2, 2)
	if math.Abs(scale) < 1e-15 {
		return nil, errors.New("degenerate homography")
	}
	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r][c] = full.At(r, c) / scale
		}
	}
	return &h, nil
}
