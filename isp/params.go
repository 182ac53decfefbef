// Package isp turns raw or lightly processed sensor frames into display ready color images. A
// Pipeline runs a fixed sequence of stages (demosaic, lens correction, white balance, color
// correction, gamma, tone mapping, denoise, sharpen) configured by Parameters.
package isp

import (
	"image"
	"math"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camisp/calibration"
	"go.viam.com/camisp/rimage"
	"go.viam.com/camisp/rimage/transform"
	"go.viam.com/camisp/utils"
)

// DemosaicMethod selects how a Bayer mosaic is turned into color.
type DemosaicMethod string

// The supported demosaic methods.
const (
	DemosaicBilinear          DemosaicMethod = "bilinear"
	DemosaicEdgeAware         DemosaicMethod = "edge_aware"
	DemosaicGradientCorrected DemosaicMethod = "gradient_corrected"
)

func (m DemosaicMethod) validate() error {
	switch m {
	case DemosaicBilinear, DemosaicEdgeAware, DemosaicGradientCorrected:
		return nil
	default:
		return rimage.NewInputInvalidError("unknown demosaic method %q", m)
	}
}

// BayerPattern names the colors of the top left 2x2 cell of a mosaic, row by row.
type BayerPattern string

// The supported Bayer layouts.
const (
	BayerRGGB BayerPattern = "RGGB"
	BayerBGGR BayerPattern = "BGGR"
	BayerGRBG BayerPattern = "GRBG"
	BayerGBRG BayerPattern = "GBRG"
)

// IdentityColorMatrix leaves colors unchanged.
var IdentityColorMatrix = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}

// LensModel is the camera matrix and distortion vector used for lens correction. Width and Height
// are the image size the model was solved for; frames of another size use a scaled camera matrix.
type LensModel struct {
	CameraMatrix [9]float64 `json:"camera_matrix"`
	Distortion   []float64  `json:"distortion_coefficients"`
	Width        int        `json:"image_width,omitempty"`
	Height       int        `json:"image_height,omitempty"`
}

// Validate checks the camera matrix and distortion vector.
func (l *LensModel) Validate() error {
	if !utils.IsFinite(l.CameraMatrix[:]...) || !utils.IsFinite(l.Distortion...) {
		return errors.New("lens model has non-finite values")
	}
	if l.CameraMatrix[0] <= 0 || l.CameraMatrix[4] <= 0 {
		return errors.Errorf("lens model focal lengths must be positive, got %v and %v", l.CameraMatrix[0], l.CameraMatrix[4])
	}
	if l.Width < 0 || l.Height < 0 {
		return errors.Errorf("lens model has negative size %dx%d", l.Width, l.Height)
	}
	_, err := transform.NewBrownConrady(l.Distortion)
	return err
}

func (l *LensModel) clone() *LensModel {
	if l == nil {
		return nil
	}
	out := *l
	out.Distortion = append([]float64(nil), l.Distortion...)
	return &out
}

// cameraModel returns the lens model for a frame of the given size.
func (l *LensModel) cameraModel(size image.Point) (*transform.PinholeCameraModel, error) {
	distortion, err := transform.NewBrownConrady(l.Distortion)
	if err != nil {
		return nil, err
	}
	sx, sy := 1., 1.
	if l.Width > 0 && l.Height > 0 {
		sx = float64(size.X) / float64(l.Width)
		sy = float64(size.Y) / float64(l.Height)
	}
	k := l.CameraMatrix
	intrinsics, err := transform.NewPinholeCameraIntrinsicsFromMatrix(mat.NewDense(3, 3, []float64{
		k[0] * sx, k[1] * sx, k[2] * sx,
		0, k[4] * sy, k[5] * sy,
		0, 0, 1,
	}), size.X, size.Y)
	if err != nil {
		return nil, err
	}
	return &transform.PinholeCameraModel{PinholeCameraIntrinsics: intrinsics, Distortion: distortion}, nil
}

// Parameters configure one pipeline run. The zero value is not useful; start from
// DefaultParameters. Callers may change fields between frames; a run works on a Snapshot.
type Parameters struct {
	DemosaicMethod DemosaicMethod `json:"demosaic_method"`
	BayerPattern   BayerPattern   `json:"bayer_pattern"`

	WBRed   float64 `json:"wb_red"`
	WBGreen float64 `json:"wb_green"`
	WBBlue  float64 `json:"wb_blue"`
	AutoWB  bool    `json:"auto_wb"`

	// ColorMatrix is row major and maps (R, G, B) column vectors.
	ColorMatrix [9]float64 `json:"color_matrix"`

	Gamma float64 `json:"gamma"`

	Exposure   float64 `json:"exposure"`
	Contrast   float64 `json:"contrast"`
	Brightness float64 `json:"brightness"`

	DenoiseEnabled  bool    `json:"denoise_enabled"`
	DenoiseStrength float64 `json:"denoise_strength"`

	SharpenEnabled  bool    `json:"sharpen_enabled"`
	SharpenStrength float64 `json:"sharpen_strength"`

	LensCorrection bool       `json:"lens_correction"`
	Lens           *LensModel `json:"lens,omitempty"`

	gammaLUT *[256]uint8
	lutGamma float64
}

// DefaultParameters returns gray world white balance, gamma 2.2, light denoise and sharpening,
// and no lens correction.
func DefaultParameters() *Parameters {
	return &Parameters{
		DemosaicMethod:  DemosaicEdgeAware,
		BayerPattern:    BayerRGGB,
		WBRed:           1,
		WBGreen:         1,
		WBBlue:          1,
		AutoWB:          true,
		ColorMatrix:     IdentityColorMatrix,
		Gamma:           2.2,
		Exposure:        1,
		Contrast:        1,
		Brightness:      0,
		DenoiseEnabled:  true,
		DenoiseStrength: 1,
		SharpenEnabled:  true,
		SharpenStrength: 0.5,
	}
}

// Validate checks that every setting is usable.
func (p *Parameters) Validate() error {
	if err := p.DemosaicMethod.validate(); err != nil {
		return err
	}
	if _, err := bayerOffsets(p.BayerPattern); err != nil {
		return err
	}
	for name, v := range map[string]float64{
		"wb_red":           p.WBRed,
		"wb_green":         p.WBGreen,
		"wb_blue":          p.WBBlue,
		"exposure":         p.Exposure,
		"contrast":         p.Contrast,
		"denoise_strength": p.DenoiseStrength,
		"sharpen_strength": p.SharpenStrength,
	} {
		if v < 0 || !utils.IsFinite(v) {
			return utils.NewOutOfRangeError(name, v, 0, math.Inf(1))
		}
	}
	if p.Gamma <= 0 || !utils.IsFinite(p.Gamma) {
		return utils.NewOutOfRangeError("gamma", p.Gamma, 0, math.Inf(1))
	}
	if !utils.IsFinite(p.Brightness) {
		return utils.NewOutOfRangeError("brightness", p.Brightness, math.Inf(-1), math.Inf(1))
	}
	if !utils.IsFinite(p.ColorMatrix[:]...) {
		return rimage.NewInputInvalidError("color matrix has non-finite values")
	}
	if p.Lens != nil {
		if err := p.Lens.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GammaLUT returns the lookup table for the current gamma. The table is rebuilt only when gamma
// has changed since the last call; the returned array must not be modified.
func (p *Parameters) GammaLUT() *[256]uint8 {
	if p.gammaLUT == nil || p.lutGamma != p.Gamma {
		p.gammaLUT = sharedGammaLUT(p.Gamma)
		p.lutGamma = p.Gamma
	}
	return p.gammaLUT
}

// lastGammaLUT keeps the most recently generated table so that snapshots of unchanged
// parameters reuse it.
var lastGammaLUT struct {
	mu    sync.Mutex
	gamma float64
	lut   *[256]uint8
}

func sharedGammaLUT(gamma float64) *[256]uint8 {
	lastGammaLUT.mu.Lock()
	defer lastGammaLUT.mu.Unlock()
	if lastGammaLUT.lut == nil || lastGammaLUT.gamma != gamma {
		lastGammaLUT.lut = generateGammaLUT(gamma)
		lastGammaLUT.gamma = gamma
	}
	return lastGammaLUT.lut
}

func generateGammaLUT(gamma float64) *[256]uint8 {
	var lut [256]uint8
	inv := 1 / gamma
	for i := range lut {
		lut[i] = utils.SaturateUint8(255 * math.Pow(float64(i)/255, inv))
	}
	return &lut
}

// Snapshot returns a deep copy for one pipeline run with its gamma table in place. p itself is
// only read.
func (p *Parameters) Snapshot() *Parameters {
	out := *p
	out.Lens = p.Lens.clone()
	out.GammaLUT()
	return &out
}

// UseCalibration takes the lens model from a calibration result and turns lens correction on.
func (p *Parameters) UseCalibration(r *calibration.Result) error {
	if r == nil {
		return errors.New("no calibration result")
	}
	lens := &LensModel{
		Distortion: append([]float64(nil), r.Distortion...),
		Width:      r.ImageSize.X,
		Height:     r.ImageSize.Y,
	}
	copy(lens.CameraMatrix[:], r.CameraMatrix().RawMatrix().Data)
	if err := lens.Validate(); err != nil {
		return err
	}
	p.Lens = lens
	p.LensCorrection = true
	return nil
}

func (p *Parameters) hasIdentityColorMatrix() bool {
	return p.ColorMatrix == IdentityColorMatrix
}
