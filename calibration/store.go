package calibration

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go.viam.com/camisp/rimage/transform"
	"go.viam.com/camisp/utils"
)

// ErrIOFailure is returned when a calibration cannot be written or read back.
var ErrIOFailure = errors.New("calibration persistence failed")

type matrixRecord struct {
	Rows int       `json:"rows" yaml:"rows"`
	Cols int       `json:"cols" yaml:"cols"`
	Data []float64 `json:"data" yaml:"data,flow"`
}

// calibrationRecord is the on-disk layout. It has no version field.
type calibrationRecord struct {
	CameraMatrix           matrixRecord `json:"camera_matrix" yaml:"camera_matrix"`
	DistortionCoefficients matrixRecord `json:"distortion_coefficients" yaml:"distortion_coefficients"`
	ReprojectionError      float64      `json:"reprojection_error" yaml:"reprojection_error"`
	ImageWidth             int32        `json:"image_width" yaml:"image_width"`
	ImageHeight            int32        `json:"image_height" yaml:"image_height"`
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func newRecord(r *Result) calibrationRecord {
	k := r.CameraMatrix()
	return calibrationRecord{
		CameraMatrix: matrixRecord{Rows: 3, Cols: 3, Data: append([]float64(nil), k.RawMatrix().Data...)},
		DistortionCoefficients: matrixRecord{
			Rows: len(r.Distortion), Cols: 1, Data: append([]float64(nil), r.Distortion...),
		},
		ReprojectionError: r.RMS,
		ImageWidth:        int32(r.ImageSize.X),
		ImageHeight:       int32(r.ImageSize.Y),
	}
}

// SaveResult writes the camera matrix, distortion vector, RMS error and image size of r to path,
// as JSON when the extension is .json and YAML otherwise. The file is replaced atomically so a
// failed save leaves any previous file untouched.
func SaveResult(path string, r *Result) error {
	if r == nil {
		return errors.Wrap(ErrIOFailure, "no calibration to save")
	}
	rec := newRecord(r)
	var data []byte
	var err error
	if isJSON(path) {
		data, err = json.MarshalIndent(rec, "", "  ")
	} else {
		data, err = yaml.Marshal(rec)
	}
	if err != nil {
		return errors.Wrapf(ErrIOFailure, "encoding calibration: %v", err)
	}
	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return errors.Wrapf(ErrIOFailure, "writing %q: %v", path, err)
	}
	return nil
}

// LoadResult reads a calibration written by SaveResult. Only the record's structure is checked:
// a 3x3 camera matrix, a 4, 5, 8 or 12 term distortion column and finite values. Whether the
// coefficient count matches the flags of a later solve is not checked.
func LoadResult(path string) (*Result, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrIOFailure, "reading %q: %v", path, err)
	}
	var rec calibrationRecord
	if isJSON(path) {
		err = json.Unmarshal(data, &rec)
	} else {
		err = yaml.Unmarshal(data, &rec)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrIOFailure, "decoding %q: %v", path, err)
	}
	return rec.result(path)
}

func (rec *calibrationRecord) result(path string) (*Result, error) {
	k := rec.CameraMatrix
	if k.Rows != 3 || k.Cols != 3 || len(k.Data) != 9 {
		return nil, errors.Wrapf(ErrIOFailure, "%q: camera_matrix must be 3x3, got %dx%d with %d values",
			path, k.Rows, k.Cols, len(k.Data))
	}
	d := rec.DistortionCoefficients
	if d.Cols != 1 || d.Rows != len(d.Data) {
		return nil, errors.Wrapf(ErrIOFailure, "%q: distortion_coefficients must be Nx1, got %dx%d with %d values",
			path, d.Rows, d.Cols, len(d.Data))
	}
	if !utils.IsFinite(k.Data...) || !utils.IsFinite(d.Data...) || !utils.IsFinite(rec.ReprojectionError) {
		return nil, errors.Wrapf(ErrIOFailure, "%q: non-finite values", path)
	}
	dist, err := transform.NewBrownConrady(d.Data)
	if err != nil {
		return nil, errors.Wrapf(ErrIOFailure, "%q: %v", path, err)
	}
	return &Result{
		Intrinsics: transform.PinholeCameraIntrinsics{
			Width:  int(rec.ImageWidth),
			Height: int(rec.ImageHeight),
			Fx:     k.Data[0],
			Skew:   k.Data[1],
			Ppx:    k.Data[2],
			Fy:     k.Data[4],
			Ppy:    k.Data[5],
		},
		Distortion: dist.Parameters(),
		RMS:        rec.ReprojectionError,
		ImageSize:  image.Point{int(rec.ImageWidth), int(rec.ImageHeight)},
	}, nil
}
