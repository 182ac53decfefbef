package transform

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camisp/rimage"
	rutils "go.viam.com/camisp/utils"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
	Skew   float64 `json:"skew,omitempty"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width == 0 || params.Height == 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 || !rutils.IsFinite(params.Fx) {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 || !rutils.IsFinite(params.Fy) {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 || !rutils.IsFinite(params.Ppx) {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 || !rutils.IsFinite(params.Ppy) {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// CameraMatrix returns the 3x3 matrix
//
//	[fx skew cx]
//	[0   fy  cy]
//	[0   0    1]
func (params *PinholeCameraIntrinsics) CameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		params.Fx, params.Skew, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	})
}

// NewPinholeCameraIntrinsicsFromMatrix reads fx, fy, cx, cy and skew back out of a 3x3 camera matrix.
func NewPinholeCameraIntrinsicsFromMatrix(k mat.Matrix, width, height int) (*PinholeCameraIntrinsics, error) {
	if r, c := k.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("camera matrix must be 3x3, got %dx%d", r, c)
	}
	params := &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     k.At(0, 0),
		Fy:     k.At(1, 1),
		Ppx:    k.At(0, 2),
		Ppy:    k.At(1, 2),
		Skew:   k.At(0, 1),
	}
	return params, params.CheckValid()
}

// NewPinholeCameraIntrinsicsFromJSONFile takes in a file path to a JSON and turns it into PinholeCameraIntrinsics.
func NewPinholeCameraIntrinsicsFromJSONFile(jsonPath string) (*PinholeCameraIntrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	intrinsics := &PinholeCameraIntrinsics{}
	if err := json.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	return intrinsics, nil
}

// NormalizedToPixel maps a normalized image point onto the pixel grid.
func (params *PinholeCameraIntrinsics) NormalizedToPixel(x, y float64) r2.Point {
	return r2.Point{X: params.Fx*x + params.Skew*y + params.Ppx, Y: params.Fy*y + params.Ppy}
}

// PixelToNormalized is the inverse of NormalizedToPixel.
func (params *PinholeCameraIntrinsics) PixelToNormalized(u, v float64) (float64, float64) {
	y := (v - params.Ppy) / params.Fy
	x := (u - params.Ppx - params.Skew*y) / params.Fx
	return x, y
}

// PinholeCameraModel is the model of a pinhole camera.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               Distorter `json:"distortion"`
}

// CheckValid checks the intrinsics and, when present, the distortion model.
func (params *PinholeCameraModel) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("camera model does not exist")
	}
	if err := params.PinholeCameraIntrinsics.CheckValid(); err != nil {
		return err
	}
	if params.Distortion != nil {
		return params.Distortion.CheckValid()
	}
	return nil
}

// DistortionMap is a function that transforms the undistorted input points (u,v) to the distorted points (x,y)
// according to the model in PinholeCameraModel.Distortion.
func (params *PinholeCameraModel) DistortionMap() func(u, v float64) (float64, float64) {
	return func(u, v float64) (float64, float64) {
		x, y := params.PixelToNormalized(u, v)
		if params.Distortion != nil {
			x, y = params.Distortion.Transform(x, y)
		}
		p := params.NormalizedToPixel(x, y)
		return p.X, p.Y
	}
}

// ProjectPoint transforms a 3D point into the camera frame with rotation rmat and translation t,
// then projects and distorts it onto the image plane.
func (params *PinholeCameraModel) ProjectPoint(rmat *mat.Dense, t, pt r3.Vector) r2.Point {
	xc := rmat.At(0, 0)*pt.X + rmat.At(0, 1)*pt.Y + rmat.At(0, 2)*pt.Z + t.X
	yc := rmat.At(1, 0)*pt.X + rmat.At(1, 1)*pt.Y + rmat.At(1, 2)*pt.Z + t.Y
	zc := rmat.At(2, 0)*pt.X + rmat.At(2, 1)*pt.Y + rmat.At(2, 2)*pt.Z + t.Z
	if zc == 0 {
		zc = math.SmallestNonzeroFloat64
	}
	x, y := xc/zc, yc/zc
	if params.Distortion != nil {
		x, y = params.Distortion.Transform(x, y)
	}
	return params.NormalizedToPixel(x, y)
}

// ProjectPoints projects object points seen with pose (rvec, tvec), where rvec is a Rodrigues
// rotation vector.
func (params *PinholeCameraModel) ProjectPoints(objectPoints []r3.Vector, rvec, tvec r3.Vector) []r2.Point {
	rmat := RodriguesToMatrix(rvec)
	out := make([]r2.Point, len(objectPoints))
	for i, pt := range objectPoints {
		out[i] = params.ProjectPoint(rmat, tvec, pt)
	}
	return out
}

// UndistortPoint maps a distorted pixel to where it would land through an ideal lens with the same
// camera matrix.
func (params *PinholeCameraModel) UndistortPoint(p r2.Point) r2.Point {
	x, y := params.PixelToNormalized(p.X, p.Y)
	if inv, ok := params.Distortion.(Undistorter); ok {
		x, y = inv.Inverse(x, y)
	}
	return params.NormalizedToPixel(x, y)
}

// UndistortImage takes an input image and creates a new image the same size with the same camera parameters
// as the original image, but undistorted according to the distortion model in PinholeCameraModel. A bilinear
// interpolation is used to interpolate values between image pixels and samples falling outside the
// source are black.
func (params *PinholeCameraModel) UndistortImage(img *rimage.PixelBuffer) (*rimage.PixelBuffer, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	// Check dimensions, they should be equal between the color image and what the intrinsics expect
	if params.Width != img.Width || params.Height != img.Height {
		return nil, errors.Errorf("img dimension and intrinsics don't match Image(%d,%d) != Intrinsics(%d,%d)",
			img.Width, img.Height, params.Width, params.Height)
	}
	channels := img.Format.Channels()
	undistortedImg := rimage.NewPixelBuffer(img.Width, img.Height, img.Format)
	distortionMap := params.DistortionMap()
	rutils.ParallelForEachRow(params.Height, func(v int) {
		var px [3]float64
		for u := 0; u < params.Width; u++ {
			x, y := distortionMap(float64(u), float64(v))
			if !BilinearInterpolation(img, x, y, px[:channels]) {
				continue
			}
			for c := 0; c < channels; c++ {
				undistortedImg.Set(u, v, c, rutils.SaturateUint8(px[c]))
			}
		}
	})
	return undistortedImg, nil
}

// BilinearInterpolation samples every channel of img at the sub-pixel location (x, y) into out. It
// returns false when the location is outside the image.
func BilinearInterpolation(img *rimage.PixelBuffer, x, y float64, out []float64) bool {
	const edgeTolerance = 1e-6
	maxX, maxY := float64(img.Width-1), float64(img.Height-1)
	if x < -edgeTolerance || y < -edgeTolerance || x > maxX+edgeTolerance || y > maxY+edgeTolerance {
		return false
	}
	x = rutils.Clamp(x, 0, maxX)
	y = rutils.Clamp(y, 0, maxY)
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := x0+1, y0+1
	if x1 >= img.Width {
		x1 = x0
	}
	if y1 >= img.Height {
		y1 = y0
	}
	fx, fy := x-float64(x0), y-float64(y0)
	for c := range out {
		top := float64(img.At(x0, y0, c))*(1-fx) + float64(img.At(x1, y0, c))*fx
		bottom := float64(img.At(x0, y1, c))*(1-fx) + float64(img.At(x1, y1, c))*fx
		out[c] = top*(1-fy) + bottom*fy
	}
	return true
}
