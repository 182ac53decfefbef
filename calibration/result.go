package calibration

import (
	"image"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camisp/rimage/transform"
)

// Result is a solved (or loaded) calibration. It is never modified after it is produced.
type Result struct {
	Intrinsics transform.PinholeCameraIntrinsics
	// Distortion is [k1, k2, p1, p2, k3, k4, k5, k6, s1, s2, s3, s4] truncated to 5, 8 or 12 terms.
	Distortion []float64
	// Rotations and Translations are the per-view board poses; a loaded result has none.
	Rotations    []r3.Vector
	Translations []r3.Vector

	RMS           float64
	PerViewErrors []float64
	ImageSize     image.Point
	PatternSize   image.Point
	SquareSize    float64
	Iterations    int
}

// CameraMatrix returns the 3x3 intrinsic matrix.
func (r *Result) CameraMatrix() *mat.Dense {
	return r.Intrinsics.CameraMatrix()
}

// Model returns a camera model usable for projection and undistortion.
func (r *Result) Model() (*transform.PinholeCameraModel, error) {
	distortion, err := transform.NewBrownConrady(r.Distortion)
	if err != nil {
		return nil, err
	}
	intrinsics := r.Intrinsics
	model := &transform.PinholeCameraModel{PinholeCameraIntrinsics: &intrinsics, Distortion: distortion}
	if err := model.CheckValid(); err != nil {
		return nil, err
	}
	return model, nil
}

// Clone returns a deep copy.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Distortion = append([]float64(nil), r.Distortion...)
	out.Rotations = append([]r3.Vector(nil), r.Rotations...)
	out.Translations = append([]r3.Vector(nil), r.Translations...)
	out.PerViewErrors = append([]float64(nil), r.PerViewErrors...)
	return &out
}
