package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// RodriguesToMatrix converts an axis-angle vector, whose norm is the rotation angle in radians,
// into a 3x3 rotation matrix.
func RodriguesToMatrix(rvec r3.Vector) *mat.Dense {
	theta := rvec.Norm()
	if theta < 1e-12 {
		// first order expansion I + [r]x
		return mat.NewDense(3, 3, []float64{
			1, -rvec.Z, rvec.Y,
			rvec.Z, 1, -rvec.X,
			-rvec.Y, rvec.X, 1,
		})
	}
	k := rvec.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	c1 := 1 - c
	return mat.NewDense(3, 3, []float64{
		c + c1*k.X*k.X, c1*k.X*k.Y - s*k.Z, c1*k.X*k.Z + s*k.Y,
		c1*k.Y*k.X + s*k.Z, c + c1*k.Y*k.Y, c1*k.Y*k.Z - s*k.X,
		c1*k.Z*k.X - s*k.Y, c1*k.Z*k.Y + s*k.X, c + c1*k.Z*k.Z,
	})
}

// NearestRotation projects a 3x3 matrix onto SO(3) through its singular value decomposition.
func NearestRotation(m mat.Matrix) *mat.Dense {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return mat.DenseCopyOf(m)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		// flip the axis of the smallest singular value to stay a proper rotation
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	return &r
}

// MatrixToRodrigues converts a rotation matrix into its axis-angle vector. The input is first
// re-orthonormalized so small numerical drift is tolerated.
func MatrixToRodrigues(m mat.Matrix) r3.Vector {
	rot := NearestRotation(m)
	rx := rot.At(2, 1) - rot.At(1, 2)
	ry := rot.At(0, 2) - rot.At(2, 0)
	rz := rot.At(1, 0) - rot.At(0, 1)

	s := math.Sqrt((rx*rx + ry*ry + rz*rz) * 0.25)
	c := (rot.At(0, 0) + rot.At(1, 1) + rot.At(2, 2) - 1) * 0.5
	c = math.Max(-1, math.Min(1, c))
	theta := math.Acos(c)

	if s >= 1e-5 {
		vth := 1 / (2 * s) * theta
		return r3.Vector{X: rx * vth, Y: ry * vth, Z: rz * vth}
	}
	if c > 0 {
		return r3.Vector{}
	}

	// theta is close to pi, recover the axis from the symmetric part
	t00 := (rot.At(0, 0) + 1) * 0.5
	t11 := (rot.At(1, 1) + 1) * 0.5
	t22 := (rot.At(2, 2) + 1) * 0.5
	ax := math.Sqrt(math.Max(t00, 0))
	ay := math.Sqrt(math.Max(t11, 0))
	az := math.Sqrt(math.Max(t22, 0))
	if rot.At(0, 1) < 0 {
		ay = -ay
	}
	if rot.At(0, 2) < 0 {
		az = -az
	}
	if math.Abs(ax) < math.Abs(ay) && math.Abs(ax) < math.Abs(az) && (rot.At(1, 2) > 0) != (ay*az > 0) {
		az = -az
	}
	axis := r3.Vector{X: ax, Y: ay, Z: az}
	return axis.Mul(theta / axis.Norm())
}
