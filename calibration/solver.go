package calibration

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camisp/logging"
	"go.viam.com/camisp/rimage/transform"
	"go.viam.com/camisp/utils"
)

// MinViews is the fewest views a solve accepts.
const MinViews = 5

var (
	// ErrInsufficientViews is returned when a solve is attempted with fewer than MinViews views.
	ErrInsufficientViews = errors.New("not enough calibration views")
	// ErrSolverDivergence is returned for degenerate view geometry or a numerical failure.
	ErrSolverDivergence = errors.New("calibration solver diverged")
)

func newDivergenceError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrSolverDivergence, format, args...)
}

// layout maps between the packed parameter vector the optimizer sees and the camera model. Fixed
// parameters keep the value they were initialized with.
type layout struct {
	flags    Flags
	freeDist []int
	numViews int

	aspect     float64
	cx, cy     float64
	distortion [transform.DistortionThinPrism]float64
	distLen    int
	imageSize  image.Point
}

func (l *layout) numIntrinsics() int {
	n := 2
	if l.flags.FixAspectRatio {
		n = 1
	}
	if !l.flags.FixPrincipalPoint {
		n += 2
	}
	return n + len(l.freeDist)
}

func (l *layout) size() int {
	return l.numIntrinsics() + 6*l.numViews
}

// pack writes fx, fy, the principal point, the free distortion terms and the poses into a vector.
func (l *layout) pack(fx, fy float64, rvecs, tvecs []r3.Vector) []float64 {
	x := make([]float64, 0, l.size())
	x = append(x, fx)
	if !l.flags.FixAspectRatio {
		x = append(x, fy)
	}
	if !l.flags.FixPrincipalPoint {
		x = append(x, l.cx, l.cy)
	}
	for _, i := range l.freeDist {
		x = append(x, l.distortion[i])
	}
	for v := 0; v < l.numViews; v++ {
		x = append(x, rvecs[v].X, rvecs[v].Y, rvecs[v].Z, tvecs[v].X, tvecs[v].Y, tvecs[v].Z)
	}
	return x
}

// model rebuilds the camera model from a parameter vector.
func (l *layout) model(x []float64) *transform.PinholeCameraModel {
	k := 0
	fx := x[k]
	k++
	fy := fx * l.aspect
	if !l.flags.FixAspectRatio {
		fy = x[k]
		k++
	}
	cx, cy := l.cx, l.cy
	if !l.flags.FixPrincipalPoint {
		cx, cy = x[k], x[k+1]
		k += 2
	}
	dist := &transform.BrownConrady{Coefficients: l.distortion, Length: l.distLen}
	for _, i := range l.freeDist {
		dist.Coefficients[i] = x[k]
		k++
	}
	return &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
			Width: l.imageSize.X, Height: l.imageSize.Y, Fx: fx, Fy: fy, Ppx: cx, Ppy: cy,
		},
		Distortion: dist,
	}
}

func (l *layout) pose(x []float64, view int) (r3.Vector, r3.Vector) {
	o := l.numIntrinsics() + 6*view
	return r3.Vector{X: x[o], Y: x[o+1], Z: x[o+2]}, r3.Vector{X: x[o+3], Y: x[o+4], Z: x[o+5]}
}

// residuals fills dst with the x and y reprojection differences of every point of every view.
func (l *layout) residuals(views []View) func(dst, x []float64) {
	return func(dst, x []float64) {
		model := l.model(x)
		k := 0
		for v, view := range views {
			rvec, tvec := l.pose(x, v)
			projected := model.ProjectPoints(view.ObjectPoints, rvec, tvec)
			for i, p := range projected {
				dst[k] = p.X - view.ImagePoints[i].X
				dst[k+1] = p.Y - view.ImagePoints[i].Y
				k += 2
			}
		}
	}
}

// Solve estimates the intrinsics, distortion and per-view poses that best reproject the views'
// object points onto their image points. Views must all come from images of imageSize.
func Solve(views []View, imageSize image.Point, flags Flags, logger logging.Logger) (*Result, error) {
	if len(views) < MinViews {
		return nil, errors.Wrapf(ErrInsufficientViews, "have %d, need %d", len(views), MinViews)
	}
	if err := flags.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewBlankLogger("calibration")
	}
	numPoints := 0
	for i, v := range views {
		if len(v.ImagePoints) != len(v.ObjectPoints) || len(v.ImagePoints) < 4 {
			return nil, errors.Errorf("view %d has %d image points for %d object points", i,
				len(v.ImagePoints), len(v.ObjectPoints))
		}
		numPoints += len(v.ImagePoints)
	}

	homographies := make([]*transform.Homography, len(views))
	for i, v := range views {
		src := make([]r2.Point, len(v.ObjectPoints))
		for k, p := range v.ObjectPoints {
			src[k] = r2.Point{X: p.X, Y: p.Y}
		}
		h, err := transform.EstimateHomography(src, v.ImagePoints)
		if err != nil {
			return nil, newDivergenceError("view %d: %v", i, err)
		}
		homographies[i] = h
	}

	lay := &layout{
		flags:     flags,
		freeDist:  flags.freeDistortion(),
		numViews:  len(views),
		aspect:    1,
		cx:        float64(imageSize.X-1) / 2,
		cy:        float64(imageSize.Y-1) / 2,
		distLen:   flags.DistortionLength(),
		imageSize: imageSize,
	}
	fx, fy, err := initFocalLengths(homographies, lay.cx, lay.cy, flags.FixAspectRatio)
	if err != nil {
		return nil, err
	}
	if flags.FixAspectRatio {
		lay.aspect = fy / fx
	}
	rvecs := make([]r3.Vector, len(views))
	tvecs := make([]r3.Vector, len(views))
	k := mat.NewDense(3, 3, []float64{fx, 0, lay.cx, 0, fy, lay.cy, 0, 0, 1})
	for i, h := range homographies {
		if rvecs[i], tvecs[i], err = initPose(k, h); err != nil {
			return nil, errors.Wrapf(err, "view %d", i)
		}
	}
	logger.Debugw("initial estimate", "fx", fx, "fy", fy, "cx", lay.cx, "cy", lay.cy)

	x := lay.pack(fx, fy, rvecs, tvecs)
	x, iterations, err := levenbergMarquardt(lay.residuals(views), x, 2*numPoints, flags.Criteria, logger)
	if err != nil {
		return nil, err
	}

	res := make([]float64, 2*numPoints)
	lay.residuals(views)(res, x)
	model := lay.model(x)
	if err := model.CheckValid(); err != nil {
		return nil, newDivergenceError("solved model is invalid: %v", err)
	}

	result := &Result{
		Intrinsics:    *model.PinholeCameraIntrinsics,
		Distortion:    model.Distortion.Parameters(),
		Rotations:     make([]r3.Vector, len(views)),
		Translations:  make([]r3.Vector, len(views)),
		PerViewErrors: make([]float64, len(views)),
		ImageSize:     imageSize,
		PatternSize:   views[len(views)-1].Pattern,
		SquareSize:    views[len(views)-1].SquareSize,
		Iterations:    iterations,
	}
	total, offset := 0., 0
	for v, view := range views {
		result.Rotations[v], result.Translations[v] = lay.pose(x, v)
		n := 2 * len(view.ImagePoints)
		sq := floats.Dot(res[offset:offset+n], res[offset:offset+n])
		result.PerViewErrors[v] = math.Sqrt(sq / float64(len(view.ImagePoints)))
		total += sq
		offset += n
	}
	result.RMS = math.Sqrt(total / float64(numPoints))
	if !utils.IsFinite(result.RMS) {
		return nil, newDivergenceError("reprojection error is not finite")
	}
	return result, nil
}

// initFocalLengths estimates fx and fy from the orthogonality and equal norm constraints each
// homography puts on the image of the absolute conic, with the principal point at (cx, cy).
func initFocalLengths(homographies []*transform.Homography, cx, cy float64, tied bool) (float64, float64, error) {
	cols := 2
	if tied {
		cols = 1
	}
	a := mat.NewDense(2*len(homographies), cols, nil)
	b := mat.NewVecDense(2*len(homographies), nil)
	for i, h := range homographies {
		// move the principal point to the origin and normalize the scale
		var hc [3][3]float64
		norm := 0.
		for c := 0; c < 3; c++ {
			hc[0][c] = h.At(0, c) - cx*h.At(2, c)
			hc[1][c] = h.At(1, c) - cy*h.At(2, c)
			hc[2][c] = h.At(2, c)
			for r := 0; r < 3; r++ {
				norm += hc[r][c] * hc[r][c]
			}
		}
		norm = math.Sqrt(norm)
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				hc[r][c] /= norm
			}
		}
		h1x, h1y, h1z := hc[0][0], hc[1][0], hc[2][0]
		h2x, h2y, h2z := hc[0][1], hc[1][1], hc[2][1]
		ortho := []float64{h1x * h2x, h1y * h2y}
		equal := []float64{h1x*h1x - h2x*h2x, h1y*h1y - h2y*h2y}
		if tied {
			ortho = []float64{ortho[0] + ortho[1]}
			equal = []float64{equal[0] + equal[1]}
		}
		a.SetRow(2*i, ortho)
		a.SetRow(2*i+1, equal)
		b.SetVec(2*i, -h1z*h2z)
		b.SetVec(2*i+1, -(h1z*h1z - h2z*h2z))
	}

	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		return 0, 0, newDivergenceError("views do not constrain the focal length: %v", err)
	}
	invFx2 := sol.AtVec(0)
	invFy2 := invFx2
	if !tied {
		invFy2 = sol.AtVec(1)
	}
	if invFx2 <= 0 || invFy2 <= 0 || !utils.IsFinite(invFx2, invFy2) {
		return 0, 0, newDivergenceError("degenerate view geometry")
	}
	return 1 / math.Sqrt(invFx2), 1 / math.Sqrt(invFy2), nil
}

// initPose recovers the board pose from K^-1 H.
func initPose(k *mat.Dense, h *transform.Homography) (r3.Vector, r3.Vector, error) {
	var kinv mat.Dense
	if err := kinv.Inverse(k); err != nil {
		return r3.Vector{}, r3.Vector{}, newDivergenceError("singular camera matrix")
	}
	var m mat.Dense
	m.Mul(&kinv, h.Dense())
	col := func(c int) r3.Vector {
		return r3.Vector{X: m.At(0, c), Y: m.At(1, c), Z: m.At(2, c)}
	}
	h1, h2, h3 := col(0), col(1), col(2)
	scale := 2 / (h1.Norm() + h2.Norm())
	if h3.Z < 0 {
		// the board must be in front of the camera
		scale = -scale
	}
	r1, r2v, t := h1.Mul(scale), h2.Mul(scale), h3.Mul(scale)
	r3v := r1.Cross(r2v)
	rot := mat.NewDense(3, 3, []float64{
		r1.X, r2v.X, r3v.X,
		r1.Y, r2v.Y, r3v.Y,
		r1.Z, r2v.Z, r3v.Z,
	})
	rvec := transform.MatrixToRodrigues(rot)
	if !utils.IsFinite(rvec.X, rvec.Y, rvec.Z, t.X, t.Y, t.Z) {
		return r3.Vector{}, r3.Vector{}, newDivergenceError("non-finite initial pose")
	}
	return rvec, t, nil
}

// levenbergMarquardt minimizes half the squared norm of f over x using a central difference
// Jacobian and Marquardt diagonal scaling. It returns the refined vector and the number of Jacobian
// evaluations.
func levenbergMarquardt(
	f func(dst, x []float64),
	x []float64,
	m int,
	criteria TermCriteria,
	logger logging.Logger,
) ([]float64, int, error) {
	const maxDampingTries = 20
	n := len(x)
	r := make([]float64, m)
	f(r, x)
	cost := floats.Dot(r, r)
	if !utils.IsFinite(cost) {
		return nil, 0, newDivergenceError("initial cost is not finite")
	}

	lambda := 1e-3
	jac := mat.NewDense(m, n, nil)
	trial := make([]float64, n)
	trialRes := make([]float64, m)
	iterations := 0
	for iterations < criteria.MaxIterations {
		iterations++
		fd.Jacobian(jac, f, x, &fd.JacobianSettings{
			Formula:     fd.Central,
			OriginValue: r,
			Concurrent:  true,
		})
		var jtj mat.SymDense
		jtj.SymOuterK(1, jac.T())
		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))

		accepted := false
		var newCost float64
		for try := 0; try < maxDampingTries; try++ {
			damped := mat.NewSymDense(n, nil)
			damped.CopySym(&jtj)
			for i := 0; i < n; i++ {
				d := jtj.At(i, i)
				damped.SetSym(i, i, d+lambda*math.Max(d, 1e-12))
			}
			var chol mat.Cholesky
			if !chol.Factorize(damped) {
				lambda *= 10
				continue
			}
			var step mat.VecDense
			if err := chol.SolveVecTo(&step, &grad); err != nil {
				lambda *= 10
				continue
			}
			for i := range x {
				trial[i] = x[i] - step.AtVec(i)
			}
			f(trialRes, trial)
			newCost = floats.Dot(trialRes, trialRes)
			if utils.IsFinite(newCost) && newCost < cost {
				accepted = true
				break
			}
			lambda *= 10
		}
		if !accepted {
			// no damping makes progress: at a minimum
			break
		}

		change := cost - newCost
		stepNorm := floats.Distance(trial, x, 2)
		copy(x, trial)
		copy(r, trialRes)
		cost = newCost
		lambda = math.Max(lambda/10, 1e-12)
		logger.Debugw("refinement step", "iteration", iterations, "cost", cost, "lambda", lambda)

		if change <= criteria.Epsilon*cost || stepNorm <= criteria.Epsilon*(floats.Norm(x, 2)+criteria.Epsilon) {
			break
		}
	}
	if !utils.IsFinite(x...) {
		return nil, iterations, newDivergenceError("parameters are not finite")
	}
	return x, iterations, nil
}
