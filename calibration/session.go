package calibration

import (
	"image"
	"math"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/camisp/logging"
	"go.viam.com/camisp/rimage"
	"go.viam.com/camisp/rimage/detection/chessboard"
)

// Session accumulates views of one camera and holds its current calibration. Methods are safe for
// concurrent use; a solve blocks other mutations of the same session.
type Session struct {
	id     uuid.UUID
	logger logging.Logger

	// DetectionConfig tunes corner detection for AddCalibrationImage; nil uses the defaults.
	DetectionConfig *chessboard.DetectionConfiguration

	mu        sync.RWMutex
	views     []View
	imageSize image.Point
	result    *Result
}

// NewSession returns an empty session.
func NewSession(logger logging.Logger) *Session {
	id := uuid.New()
	if logger == nil {
		logger = logging.NewBlankLogger("calibration")
	}
	return &Session{id: id, logger: logger.Sublogger(id.String()[:8])}
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// AddCalibrationImage detects the board in img and, when all corners are found, stores the view.
func (s *Session) AddCalibrationImage(img *rimage.PixelBuffer, pattern image.Point, squareSize float64) error {
	if err := img.Validate(); err != nil {
		return err
	}
	if img.Empty() {
		return rimage.NewInputInvalidError("empty calibration image")
	}
	if err := s.checkImageSize(img.Size()); err != nil {
		return err
	}
	corners, err := chessboard.FindChessboardCorners(img, pattern, s.DetectionConfig, s.logger)
	if err != nil {
		return err
	}
	return s.AddView(corners, pattern, squareSize, img.Size())
}

// AddView stores already detected corners of a pattern seen in an image of imageSize.
func (s *Session) AddView(corners []r2.Point, pattern image.Point, squareSize float64, imageSize image.Point) error {
	if pattern.X < 2 || pattern.Y < 2 {
		return rimage.NewInputInvalidError("pattern must have at least 2x2 inner corners, got %dx%d", pattern.X, pattern.Y)
	}
	if len(corners) != pattern.X*pattern.Y {
		return rimage.NewInputInvalidError("got %d corners for a %dx%d pattern", len(corners), pattern.X, pattern.Y)
	}
	if squareSize <= 0 || math.IsNaN(squareSize) || math.IsInf(squareSize, 0) {
		return rimage.NewInputInvalidError("square size must be positive, got %v", squareSize)
	}
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return rimage.NewInputInvalidError("bad image size %v", imageSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkImageSizeLocked(imageSize); err != nil {
		return err
	}
	if s.imageSize == (image.Point{}) {
		s.imageSize = imageSize
	}
	s.views = append(s.views, View{
		ImagePoints:  append([]r2.Point(nil), corners...),
		ObjectPoints: GenerateObjectPoints(pattern, squareSize),
		Pattern:      pattern,
		SquareSize:   squareSize,
	})
	s.logger.Debugw("added calibration view", "views", len(s.views), "image_size", imageSize)
	return nil
}

func (s *Session) checkImageSize(size image.Point) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkImageSizeLocked(size)
}

func (s *Session) checkImageSizeLocked(size image.Point) error {
	if s.imageSize != (image.Point{}) && s.imageSize != size {
		return rimage.NewInputInvalidError("image size %v does not match session image size %v", size, s.imageSize)
	}
	return nil
}

// Calibrate solves over every stored view. The current result is replaced only on success.
func (s *Session) Calibrate(flags Flags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.views) < MinViews {
		return errors.Wrapf(ErrInsufficientViews, "have %d, need %d", len(s.views), MinViews)
	}
	result, err := Solve(s.views, s.imageSize, flags, s.logger)
	if err != nil {
		s.logger.Warnw("calibration failed", "views", len(s.views), "error", err)
		return err
	}
	s.result = result
	s.logger.Infow("calibration done",
		"views", len(s.views), "rms", result.RMS, "fx", result.Intrinsics.Fx, "fy", result.Intrinsics.Fy,
		"cx", result.Intrinsics.Ppx, "cy", result.Intrinsics.Ppy, "iterations", result.Iterations)
	return nil
}

// ComputeReprojectionError reprojects every stored view through its solved pose and returns the
// RMS pixel error over all points. It returns -1 when there is no calibration or the calibration
// holds no pose for each stored view.
func (s *Session) ComputeReprojectionError() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil || len(s.views) == 0 || len(s.result.Rotations) != len(s.views) {
		return -1
	}
	model, err := s.result.Model()
	if err != nil {
		return -1
	}
	total, count := 0., 0
	for i, view := range s.views {
		projected := model.ProjectPoints(view.ObjectPoints, s.result.Rotations[i], s.result.Translations[i])
		for k, p := range projected {
			d := p.Sub(view.ImagePoints[k])
			total += d.Dot(d)
		}
		count += len(projected)
	}
	return math.Sqrt(total / float64(count))
}

// Undistort removes lens distortion from img using the current calibration. Without a calibration
// it returns a copy of img.
func (s *Session) Undistort(img *rimage.PixelBuffer) (*rimage.PixelBuffer, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	result := s.result
	s.mu.RUnlock()
	if result == nil || img.Empty() {
		return img.Clone(), nil
	}
	model, err := result.Model()
	if err != nil {
		return nil, err
	}
	return model.UndistortImage(img)
}

// Clear drops every view, the calibration and the image size.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = nil
	s.imageSize = image.Point{}
	s.result = nil
}

// Result returns a copy of the current calibration, or nil.
func (s *Session) Result() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result.Clone()
}

// IsCalibrated reports whether a calibration is held.
func (s *Session) IsCalibrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result != nil
}

// NumViews returns the number of stored views.
func (s *Session) NumViews() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.views)
}

// ImageSize returns the size fixed by the first view, or zero.
func (s *Session) ImageSize() image.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.imageSize
}

// Views returns copies of the stored views.
func (s *Session) Views() []View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]View, len(s.views))
	for i, v := range s.views {
		out[i] = v.clone()
	}
	return out
}

// SaveCalibration writes the current calibration to path.
func (s *Session) SaveCalibration(path string) error {
	s.mu.RLock()
	result := s.result
	s.mu.RUnlock()
	if result == nil {
		return errors.Wrap(ErrIOFailure, "no calibration to save")
	}
	return SaveResult(path, result)
}

// LoadCalibration replaces the current calibration with the one stored at path. The loaded result
// carries no poses, so ComputeReprojectionError reports -1 until the next solve.
func (s *Session) LoadCalibration(path string) error {
	result, err := LoadResult(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = result
	s.logger.Infow("loaded calibration", "path", path, "rms", result.RMS, "distortion_terms", len(result.Distortion))
	return nil
}
