// Package config defines the camisp configuration file: board pattern, solver flags, ISP parameters,
// detection tuning and the frame source, plus reading, validation, hot reload and a JSON schema.
package config

import (
	"image"
	"path/filepath"
	"slices"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/camisp/calibration"
	"go.viam.com/camisp/framesource"
	"go.viam.com/camisp/isp"
	"go.viam.com/camisp/logging"
	"go.viam.com/camisp/rimage/detection/chessboard"
)

// PatternConfig describes the calibration chessboard by its inner corners.
type PatternConfig struct {
	Columns    int     `json:"columns"`
	Rows       int     `json:"rows"`
	SquareSize float64 `json:"square_size_mm"`
}

// Size returns the pattern as (columns, rows).
func (p PatternConfig) Size() image.Point {
	return image.Point{p.Columns, p.Rows}
}

// Validate ensures all parts of the config are valid.
func (p PatternConfig) Validate() error {
	if p.Columns < 2 || p.Rows < 2 {
		return errors.Errorf("pattern needs at least 2x2 inner corners, got %dx%d", p.Columns, p.Rows)
	}
	if p.SquareSize <= 0 {
		return errors.Errorf("square_size_mm must be positive, got %v", p.SquareSize)
	}
	return nil
}

// Config describes a camisp run.
type Config struct {
	LogLevel    string            `json:"log_level,omitempty"`
	Pattern     PatternConfig     `json:"pattern"`
	Calibration calibration.Flags `json:"calibration"`
	// CalibrationFile is a saved calibration whose lens model feeds lens correction. Relative paths
	// are resolved against the directory of the config file.
	CalibrationFile string                             `json:"calibration_file,omitempty"`
	ISP             *isp.Parameters                    `json:"isp"`
	FrameSource     *framesource.Config                `json:"frame_source,omitempty"`
	Detection       *chessboard.DetectionConfiguration `json:"detection,omitempty"`

	ConfigFilePath string `json:"-"`
}

// Default returns the configuration used for every field a config file leaves out.
func Default() *Config {
	detection := chessboard.DefaultDetectionConf
	// decoding writes into existing slices
	detection.AdaptiveBlockFractions = slices.Clone(detection.AdaptiveBlockFractions)
	detection.Erosions = slices.Clone(detection.Erosions)
	return &Config{
		LogLevel:    "info",
		Pattern:     PatternConfig{Columns: 9, Rows: 6, SquareSize: 25},
		Calibration: calibration.DefaultFlags(),
		ISP:         isp.DefaultParameters(),
		Detection:   &detection,
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	if c.LogLevel != "" {
		if _, err := logging.LevelFromString(c.LogLevel); err != nil {
			return err
		}
	}
	if err := c.Pattern.Validate(); err != nil {
		return errors.Wrap(err, "pattern")
	}
	if err := c.Calibration.Validate(); err != nil {
		return errors.Wrap(err, "calibration")
	}
	if c.ISP != nil {
		if err := c.ISP.Validate(); err != nil {
			return errors.Wrap(err, "isp")
		}
	}
	if c.Detection != nil {
		if err := c.Detection.Validate(); err != nil {
			return errors.Wrap(err, "detection")
		}
	}
	if c.FrameSource != nil {
		if types := framesource.RegisteredTypes(); !lo.Contains(types, c.FrameSource.Type) {
			return errors.Errorf("frame_source: unknown type %q, expected one of %v", c.FrameSource.Type, types)
		}
	}
	return nil
}

// Level returns the configured log level, Info when unset.
func (c *Config) Level() logging.Level {
	if c.LogLevel == "" {
		return logging.INFO
	}
	level, err := logging.LevelFromString(c.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}

// ResolvePath makes a relative path relative to the directory of the config file.
func (c *Config) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || c.ConfigFilePath == "" {
		return path
	}
	return filepath.Join(filepath.Dir(c.ConfigFilePath), path)
}

// ISPParameters returns the configured ISP parameters with lens correction fed from
// CalibrationFile when one is set.
func (c *Config) ISPParameters() (*isp.Parameters, error) {
	params := isp.DefaultParameters()
	if c.ISP != nil {
		params = c.ISP.Snapshot()
	}
	if c.CalibrationFile == "" {
		return params, nil
	}
	result, err := calibration.LoadResult(c.ResolvePath(c.CalibrationFile))
	if err != nil {
		return nil, err
	}
	if err := params.UseCalibration(result); err != nil {
		return nil, err
	}
	return params, nil
}

type section struct {
	name        string
	left, right interface{}
}

// ChangedSections lists the top level keys whose values differ between two configs.
func ChangedSections(left, right *Config) []string {
	opts := cmp.Options{cmpopts.IgnoreUnexported(isp.Parameters{}), cmpopts.EquateEmpty()}
	sections := []section{
		{"log_level", left.LogLevel, right.LogLevel},
		{"pattern", left.Pattern, right.Pattern},
		{"calibration", left.Calibration, right.Calibration},
		{"calibration_file", left.CalibrationFile, right.CalibrationFile},
		{"isp", left.ISP, right.ISP},
		{"frame_source", left.FrameSource, right.FrameSource},
		{"detection", left.Detection, right.Detection},
	}
	return lo.FilterMap(sections, func(s section, _ int) (string, bool) {
		return s.name, !cmp.Equal(s.left, s.right, opts)
	})
}
