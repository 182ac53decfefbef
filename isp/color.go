package isp

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/camisp/rimage"
	"go.viam.com/camisp/utils"
)

// channelMeans returns the mean of each channel of an RGB8 buffer.
func channelMeans(img *rimage.PixelBuffer) ([3]float64, error) {
	var means [3]float64
	n := img.Width * img.Height
	if n == 0 {
		return means, errors.New("cannot average an empty image")
	}
	planes := [3]stats.Float64Data{make([]float64, n), make([]float64, n), make([]float64, n)}
	for i := 0; i < n; i++ {
		planes[red][i] = float64(img.Pix[3*i])
		planes[green][i] = float64(img.Pix[3*i+1])
		planes[blue][i] = float64(img.Pix[3*i+2])
	}
	for c, plane := range planes {
		mean, err := plane.Mean()
		if err != nil {
			return means, err
		}
		means[c] = mean
	}
	return means, nil
}

// GrayWorldGains returns the red, green and blue gains that bring each channel mean of an RGB8
// image to the average of the three means. A channel with a zero mean keeps a gain of 1.
func GrayWorldGains(img *rimage.PixelBuffer) (float64, float64, float64, error) {
	if img.Format != rimage.RGB8 {
		return 0, 0, 0, rimage.NewInputInvalidError("gray world needs an %v buffer, got %v", rimage.RGB8, img.Format)
	}
	means, err := channelMeans(img)
	if err != nil {
		return 0, 0, 0, err
	}
	avg := (means[red] + means[green] + means[blue]) / 3
	var gains [3]float64
	for c, m := range means {
		gains[c] = 1
		if m > 0 {
			gains[c] = avg / m
		}
	}
	return gains[red], gains[green], gains[blue], nil
}

// CalibrateWhiteBalance sets all three gains of p to the mean intensity of a gray reference frame
// divided by 128.
func CalibrateWhiteBalance(p *Parameters, gray *rimage.PixelBuffer) error {
	if err := gray.Validate(); err != nil {
		return err
	}
	if gray.Empty() {
		return rimage.NewInputInvalidError("empty white balance reference")
	}
	lum := rimage.ToGray(gray)
	data := make(stats.Float64Data, len(lum.Pix))
	for i, v := range lum.Pix {
		data[i] = float64(v)
	}
	mean, err := stats.Mean(data)
	if err != nil {
		return err
	}
	gain := mean / 128
	p.WBRed, p.WBGreen, p.WBBlue = gain, gain, gain
	return nil
}

type whiteBalanceStage struct{}

func (whiteBalanceStage) Name() string { return "white_balance" }

func (whiteBalanceStage) Enabled(*Parameters, *rimage.PixelBuffer) bool { return true }

// Transform scales each channel by its gain (gray world gains in auto mode) and stretches the
// result over [0, 255]. An image with no range is clamped instead.
func (whiteBalanceStage) Transform(img *rimage.PixelBuffer, p *Parameters) (*rimage.PixelBuffer, error) {
	gains := [3]float64{p.WBRed, p.WBGreen, p.WBBlue}
	if p.AutoWB {
		r, g, b, err := GrayWorldGains(img)
		if err != nil {
			return nil, err
		}
		gains = [3]float64{r, g, b}
	}
	scaled := make([]float64, len(img.Pix))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, v := range img.Pix {
		s := float64(v) * gains[i%3]
		scaled[i] = s
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	out := rimage.NewPixelBuffer(img.Width, img.Height, rimage.RGB8)
	if hi-lo < utils.Epsilon {
		for i, s := range scaled {
			out.Pix[i] = utils.SaturateUint8(s)
		}
		return out, nil
	}
	k := 255 / (hi - lo)
	for i, s := range scaled {
		out.Pix[i] = utils.SaturateUint8((s - lo) * k)
	}
	return out, nil
}

type colorCorrectionStage struct{}

func (colorCorrectionStage) Name() string { return "color_correction" }

func (colorCorrectionStage) Enabled(*Parameters, *rimage.PixelBuffer) bool { return true }

func (colorCorrectionStage) Transform(img *rimage.PixelBuffer, p *Parameters) (*rimage.PixelBuffer, error) {
	if p.hasIdentityColorMatrix() {
		return img.Clone(), nil
	}
	m := p.ColorMatrix
	out := rimage.NewPixelBuffer(img.Width, img.Height, rimage.RGB8)
	utils.ParallelForEachRow(img.Height, func(y int) {
		row := y * img.Width * 3
		for x := 0; x < img.Width; x++ {
			i := row + 3*x
			r, g, b := float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
			out.Pix[i] = utils.SaturateUint8(m[0]*r + m[1]*g + m[2]*b)
			out.Pix[i+1] = utils.SaturateUint8(m[3]*r + m[4]*g + m[5]*b)
			out.Pix[i+2] = utils.SaturateUint8(m[6]*r + m[7]*g + m[8]*b)
		}
	})
	return out, nil
}

type gammaStage struct{}

func (gammaStage) Name() string { return "gamma" }

func (gammaStage) Enabled(*Parameters, *rimage.PixelBuffer) bool { return true }

func (gammaStage) Transform(img *rimage.PixelBuffer, p *Parameters) (*rimage.PixelBuffer, error) {
	lut := p.GammaLUT()
	out := rimage.NewPixelBuffer(img.Width, img.Height, img.Format)
	for i, v := range img.Pix {
		out.Pix[i] = lut[v]
	}
	return out, nil
}

type toneMappingStage struct{}

func (toneMappingStage) Name() string { return "tone_mapping" }

func (toneMappingStage) Enabled(*Parameters, *rimage.PixelBuffer) bool { return true }

// Transform applies exposure, then contrast and brightness, on intensities normalized to [0, 1].
func (toneMappingStage) Transform(img *rimage.PixelBuffer, p *Parameters) (*rimage.PixelBuffer, error) {
	var lut [256]uint8
	for i := range lut {
		v := float64(i) / 255 * p.Exposure
		v = v*p.Contrast + p.Brightness
		lut[i] = utils.SaturateUint8(utils.Clamp(v, 0, 1) * 255)
	}
	out := rimage.NewPixelBuffer(img.Width, img.Height, img.Format)
	for i, v := range img.Pix {
		out.Pix[i] = lut[v]
	}
	return out, nil
}
