package isp

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go.viam.com/camisp/utils"
)

type colorMatrixRecord struct {
	ColorMatrix struct {
		Rows int       `json:"rows" yaml:"rows"`
		Cols int       `json:"cols" yaml:"cols"`
		Data []float64 `json:"data" yaml:"data,flow"`
	} `json:"ColorMatrix" yaml:"ColorMatrix"`
}

// SaveColorMatrix writes m under the ColorMatrix key, as JSON for a .json path and YAML otherwise.
func SaveColorMatrix(path string, m [9]float64) error {
	var rec colorMatrixRecord
	rec.ColorMatrix.Rows, rec.ColorMatrix.Cols = 3, 3
	rec.ColorMatrix.Data = m[:]
	var data []byte
	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(rec, "", "  ")
	} else {
		data, err = yaml.Marshal(rec)
	}
	if err != nil {
		return err
	}
	return errors.Wrapf(utils.WriteFileAtomic(path, data, 0o644), "writing color matrix %q", path)
}

// LoadColorMatrix reads a matrix written by SaveColorMatrix.
func LoadColorMatrix(path string) ([9]float64, error) {
	var m [9]float64
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return m, errors.Wrap(err, "reading color matrix")
	}
	var rec colorMatrixRecord
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &rec)
	} else {
		err = yaml.Unmarshal(data, &rec)
	}
	if err != nil {
		return m, errors.Wrapf(err, "decoding color matrix %q", path)
	}
	cm := rec.ColorMatrix
	if cm.Rows != 3 || cm.Cols != 3 || len(cm.Data) != 9 {
		return m, errors.Errorf("%q: ColorMatrix must be 3x3, got %dx%d with %d values", path, cm.Rows, cm.Cols, len(cm.Data))
	}
	if !utils.IsFinite(cm.Data...) {
		return m, errors.Errorf("%q: ColorMatrix has non-finite values", path)
	}
	copy(m[:], cm.Data)
	return m, nil
}
