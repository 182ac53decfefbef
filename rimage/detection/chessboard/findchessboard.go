// Package chessboard finds the inner corners of a planar chessboard target.
package chessboard

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camisp/logging"
	"go.viam.com/camisp/rimage"
)

// ErrPatternNotFound is returned when the full grid of inner corners cannot be located.
var ErrPatternNotFound = errors.New("chessboard pattern not found")

// DetectionConfiguration stores the parameters necessary for chessboard detection in an image.
type DetectionConfiguration struct {
	// AdaptiveBlockFractions are the adaptive threshold neighbourhoods to try, as fractions of the
	// smaller image side.
	AdaptiveBlockFractions []float64 `json:"adaptive_block_fractions"`
	// AdaptiveOffset is how much darker than the local mean a pixel must be to count as dark.
	AdaptiveOffset float64 `json:"adaptive_offset"`
	// GlobalFallback adds an Otsu global threshold after the adaptive attempts.
	GlobalFallback bool `json:"global_fallback"`
	// Erosions are the dark region erosion counts tried for each threshold.
	Erosions []int `json:"erosions"`
	// MinContrast is the smallest 2nd to 98th percentile luminance spread worth searching.
	MinContrast float64 `json:"min_contrast"`
	// MinSaddleFraction is the share of refined corners that must look like saddles.
	MinSaddleFraction float64             `json:"min_saddle_fraction"`
	SubPix            SubPixConfiguration `json:"subpix"`
}

// DefaultDetectionConf is used when no configuration is given.
var DefaultDetectionConf = DetectionConfiguration{
	AdaptiveBlockFractions: []float64{0.2, 0.1},
	AdaptiveOffset:         5,
	GlobalFallback:         true,
	Erosions:               []int{1, 2},
	MinContrast:            20,
	MinSaddleFraction:      0.75,
	SubPix:                 DefaultSubPixConf,
}

// Validate ensures all parts of the config are valid.
func (cfg *DetectionConfiguration) Validate() error {
	if len(cfg.AdaptiveBlockFractions) == 0 && !cfg.GlobalFallback {
		return errors.New("detection needs at least one adaptive block fraction or the global fallback")
	}
	for _, frac := range cfg.AdaptiveBlockFractions {
		if frac <= 0 || frac > 1 {
			return errors.Errorf("adaptive block fraction must be in (0, 1], got %v", frac)
		}
	}
	if len(cfg.Erosions) == 0 {
		return errors.New("detection needs at least one erosion count")
	}
	for _, e := range cfg.Erosions {
		if e < 0 {
			return errors.Errorf("erosion count must not be negative, got %d", e)
		}
	}
	if cfg.MinSaddleFraction < 0 || cfg.MinSaddleFraction > 1 {
		return errors.Errorf("min_saddle_fraction must be in [0, 1], got %v", cfg.MinSaddleFraction)
	}
	if cfg.SubPix.HalfWindow < 1 || cfg.SubPix.MaxIterations < 0 || cfg.SubPix.Epsilon < 0 {
		return errors.Errorf("bad subpixel settings %+v", cfg.SubPix)
	}
	return nil
}

type thresholdAttempt struct {
	name string
	run  func(lum *mat.Dense) *binaryImage
}

func (cfg *DetectionConfiguration) attempts(w, h int) []thresholdAttempt {
	var out []thresholdAttempt
	minSide := math.Min(float64(w), float64(h))
	for _, frac := range cfg.AdaptiveBlockFractions {
		block := int(math.Round(minSide*frac)) | 1
		if block < 3 {
			block = 3
		}
		offset := cfg.AdaptiveOffset
		out = append(out, thresholdAttempt{
			name: fmt.Sprintf("adaptive/%d", block),
			run: func(lum *mat.Dense) *binaryImage {
				return adaptiveThreshold(lum, block, offset)
			},
		})
	}
	if cfg.GlobalFallback {
		out = append(out, thresholdAttempt{
			name: "otsu",
			run: func(lum *mat.Dense) *binaryImage {
				return globalThreshold(lum, otsuLevel(lum))
			},
		})
	}
	return out
}

// FindChessboardCorners locates the pattern.X by pattern.Y inner corners of a chessboard and
// returns them row by row with sub-pixel accuracy. ErrPatternNotFound is returned when no
// thresholding attempt yields the complete grid.
func FindChessboardCorners(
	img *rimage.PixelBuffer,
	pattern image.Point,
	cfg *DetectionConfiguration,
	logger logging.Logger,
) ([]r2.Point, error) {
	if cfg == nil {
		cfg = &DefaultDetectionConf
	}
	if logger == nil {
		logger = logging.NewBlankLogger("chessboard")
	}
	if pattern.X < 2 || pattern.Y < 2 {
		return nil, rimage.NewInputInvalidError("pattern must have at least 2x2 inner corners, got %dx%d", pattern.X, pattern.Y)
	}
	if err := cfg.Validate(); err != nil {
		return nil, rimage.NewInputInvalidError("%v", err)
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, errors.Wrap(ErrPatternNotFound, "empty image")
	}

	lum := rimage.Luminance(img)
	if spread := contrastRange(lum); spread < cfg.MinContrast {
		return nil, errors.Wrapf(ErrPatternNotFound, "insufficient contrast (%.0f)", spread)
	}

	minArea := 9
	maxArea := img.Width * img.Height / 4
	var saddles *mat.Dense
	for _, attempt := range cfg.attempts(img.Width, img.Height) {
		thresholded := attempt.run(lum)
		for _, erosions := range cfg.Erosions {
			binary := erodeDark(thresholded, erosions)
			var quads []quad
			for _, comp := range darkComponents(binary, minArea, maxArea) {
				if q, ok := quadFromComponent(binary, comp); ok {
					quads = append(quads, q)
				}
			}
			corners, side, ok := gridFromQuads(quads, pattern)
			logger.Debugw("chessboard attempt", "threshold", attempt.name, "erosions", erosions,
				"quads", len(quads), "found", ok)
			if !ok {
				continue
			}

			subPix := cfg.SubPix
			if limit := int(side/2) - 1; limit < subPix.HalfWindow {
				subPix.HalfWindow = limit
				if subPix.HalfWindow < 2 {
					subPix.HalfWindow = 2
				}
			}
			refined := RefineCorners(lum, corners, subPix)

			if saddles == nil {
				saddles = saddleMap(lum)
			}
			if frac := saddleFraction(saddles, refined); frac < cfg.MinSaddleFraction {
				logger.Debugw("rejecting grid without saddles", "fraction", frac)
				continue
			}
			return refined, nil
		}
	}
	return nil, ErrPatternNotFound
}

// gridFromQuads builds the lattice from the quads and returns the ordered corner seeds plus the
// median square side.
func gridFromQuads(quads []quad, pattern image.Point) ([]r2.Point, float64, bool) {
	want := pattern.X * pattern.Y
	if len(quads) < (want+1)/2 {
		return nil, 0, false
	}
	seeds, _ := pairCorners(quads)
	if len(seeds) < want {
		return nil, 0, false
	}
	for _, group := range connectedGroups(seeds) {
		if len(group) != want {
			continue
		}
		corners, ok := assignGrid(seeds, group, pattern)
		if !ok {
			continue
		}
		sides := make([]float64, 0, len(quads))
		for _, q := range quads {
			sides = append(sides, q.minSide)
		}
		sort.Float64s(sides)
		return corners, sides[len(sides)/2], true
	}
	return nil, 0, false
}
