package isp

import (
	"time"

	"github.com/pkg/errors"

	"go.viam.com/camisp/logging"
	"go.viam.com/camisp/rimage"
)

// A Stage is one transform of the pipeline. Transform never modifies its input.
type Stage interface {
	Name() string
	// Enabled reports whether the stage runs for this frame.
	Enabled(p *Parameters, img *rimage.PixelBuffer) bool
	Transform(img *rimage.PixelBuffer, p *Parameters) (*rimage.PixelBuffer, error)
}

// StageHook is called after every stage that ran.
type StageHook func(stage string, elapsed time.Duration)

// Pipeline runs the ISP stages in their fixed order.
type Pipeline struct {
	logger logging.Logger
	stages []Stage
	hook   StageHook
}

// NewPipeline returns a pipeline with the standard stage order.
func NewPipeline(logger logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewBlankLogger("isp")
	}
	return &Pipeline{
		logger: logger,
		stages: []Stage{
			demosaicStage{},
			lensCorrectionStage{},
			whiteBalanceStage{},
			colorCorrectionStage{},
			gammaStage{},
			toneMappingStage{},
			denoiseStage{},
			sharpenStage{},
		},
	}
}

// SetStageHook installs a callback observing the stages of later runs.
func (p *Pipeline) SetStageHook(hook StageHook) {
	p.hook = hook
}

// StageNames lists the stages in the order they run.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Process runs every enabled stage over img using a snapshot of params; nil params use the
// defaults. An empty img yields an empty RGB8 buffer without running any stage. Gray8 input is
// expanded to RGB8 and Raw8 input is demosaiced.
func (p *Pipeline) Process(img *rimage.PixelBuffer, params *Parameters) (*rimage.PixelBuffer, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if img.Empty() {
		return rimage.NewPixelBuffer(img.Width, img.Height, rimage.RGB8), nil
	}
	if params == nil {
		params = DefaultParameters()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	snapshot := params.Snapshot()

	current := img
	if current.Format == rimage.Gray8 {
		current = rimage.ToRGB(current)
	}
	for _, stage := range p.stages {
		if !stage.Enabled(snapshot, current) {
			continue
		}
		start := time.Now()
		next, err := stage.Transform(current, snapshot)
		if err != nil {
			return nil, errors.Wrapf(err, "isp stage %s", stage.Name())
		}
		elapsed := time.Since(start)
		p.logger.Debugw("stage done", "stage", stage.Name(), "duration", elapsed)
		if p.hook != nil {
			p.hook(stage.Name(), elapsed)
		}
		current = next
	}
	return current, nil
}
