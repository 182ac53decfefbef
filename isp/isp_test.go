package isp

import (
	"image"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/camisp/calibration"
	"go.viam.com/camisp/logging"
	"go.viam.com/camisp/rimage"
	"go.viam.com/camisp/rimage/transform"
)

func uniformRGB(w, h int, r, g, b uint8) *rimage.PixelBuffer {
	img := rimage.NewPixelBuffer(w, h, rimage.RGB8)
	for i := 0; i < w*h; i++ {
		img.Pix[3*i], img.Pix[3*i+1], img.Pix[3*i+2] = r, g, b
	}
	return img
}

func randomRGB(w, h int, seed uint64) *rimage.PixelBuffer {
	rng := rand.New(rand.NewPCG(seed, 0))
	img := rimage.NewPixelBuffer(w, h, rimage.RGB8)
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.IntN(256))
	}
	return img
}

// mosaicOf samples an RGB8 image through a Bayer layout.
func mosaicOf(t *testing.T, img *rimage.PixelBuffer, pattern BayerPattern) *rimage.PixelBuffer {
	t.Helper()
	colors, err := bayerOffsets(pattern)
	test.That(t, err, test.ShouldBeNil)
	raw := rimage.NewPixelBuffer(img.Width, img.Height, rimage.Raw8)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			raw.Pix[y*img.Width+x] = img.At(x, y, colors[(x&1)+2*(y&1)])
		}
	}
	return raw
}

func TestGammaLUT(t *testing.T) {
	p := DefaultParameters()
	first := p.GammaLUT()
	second := p.GammaLUT()
	test.That(t, second, test.ShouldEqual, first)
	test.That(t, *second, test.ShouldResemble, *first)
	test.That(t, first[0], test.ShouldEqual, uint8(0))
	test.That(t, first[255], test.ShouldEqual, uint8(255))
	test.That(t, first[128], test.ShouldEqual, uint8(math.Round(255*math.Pow(128./255, 1/2.2))))

	p.Gamma = 1
	linear := p.GammaLUT()
	test.That(t, linear, test.ShouldNotEqual, first)
	for i, v := range linear {
		test.That(t, v, test.ShouldEqual, uint8(i))
	}

	p.Gamma = 2.2
	test.That(t, *p.GammaLUT(), test.ShouldResemble, *first)

	snap := p.Snapshot()
	test.That(t, snap.GammaLUT(), test.ShouldEqual, p.GammaLUT())

	t.Run("snapshot leaves the receiver untouched", func(t *testing.T) {
		shared := DefaultParameters()
		shared.Gamma = 1.7
		var wg sync.WaitGroup
		snaps := make([]*Parameters, 8)
		for i := range snaps {
			wg.Add(1)
			go func() {
				defer wg.Done()
				snaps[i] = shared.Snapshot()
			}()
		}
		wg.Wait()
		test.That(t, shared.gammaLUT, test.ShouldBeNil)
		for _, s := range snaps {
			test.That(t, s.lutGamma, test.ShouldEqual, 1.7)
			test.That(t, s.GammaLUT()[128], test.ShouldEqual, uint8(math.Round(255*math.Pow(128./255, 1/1.7))))
		}
		test.That(t, snaps[1].GammaLUT(), test.ShouldEqual, snaps[0].GammaLUT())
	})
}

func TestColorCorrection(t *testing.T) {
	img := randomRGB(16, 12, 1)
	p := DefaultParameters()
	out, err := colorCorrectionStage{}.Transform(img, p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Pix, test.ShouldResemble, img.Pix)
	out.Pix[0]++
	test.That(t, out.Pix[0], test.ShouldNotEqual, img.Pix[0])

	// swap red and blue
	p.ColorMatrix = [9]float64{0, 0, 1, 0, 1, 0, 1, 0, 0}
	out, err = colorCorrectionStage{}.Transform(img, p)
	test.That(t, err, test.ShouldBeNil)
	r, g, b := img.RGBAt(3, 4)
	or, og, ob := out.RGBAt(3, 4)
	test.That(t, []uint8{or, og, ob}, test.ShouldResemble, []uint8{b, g, r})

	// saturation
	p.ColorMatrix = [9]float64{2, 0, 0, 0, -1, 0, 0, 0, 1}
	out, err = colorCorrectionStage{}.Transform(uniformRGB(2, 2, 200, 50, 7), p)
	test.That(t, err, test.ShouldBeNil)
	or, og, ob = out.RGBAt(1, 1)
	test.That(t, []uint8{or, og, ob}, test.ShouldResemble, []uint8{255, 0, 7})
}

func TestWhiteBalance(t *testing.T) {
	t.Run("gray world on a uniform gray image", func(t *testing.T) {
		img := uniformRGB(8, 8, 128, 128, 128)
		r, g, b, err := GrayWorldGains(img)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, r, test.ShouldAlmostEqual, 1.0)
		test.That(t, g, test.ShouldAlmostEqual, 1.0)
		test.That(t, b, test.ShouldAlmostEqual, 1.0)

		out, err := whiteBalanceStage{}.Transform(img, DefaultParameters())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Pix, test.ShouldResemble, img.Pix)
	})

	t.Run("gray world on a color cast", func(t *testing.T) {
		r, g, b, err := GrayWorldGains(uniformRGB(4, 4, 150, 100, 50))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, r, test.ShouldAlmostEqual, 100./150)
		test.That(t, g, test.ShouldAlmostEqual, 1.0)
		test.That(t, b, test.ShouldAlmostEqual, 2.0)

		r, _, _, err = GrayWorldGains(uniformRGB(4, 4, 0, 100, 50))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, r, test.ShouldEqual, 1.0)
	})

	t.Run("range stretch", func(t *testing.T) {
		img := uniformRGB(4, 2, 50, 50, 50)
		for i := 12; i < len(img.Pix); i++ {
			img.Pix[i] = 150
		}
		out, err := whiteBalanceStage{}.Transform(img, DefaultParameters())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Pix[0], test.ShouldEqual, uint8(0))
		test.That(t, out.Pix[len(out.Pix)-1], test.ShouldEqual, uint8(255))
	})

	t.Run("manual gains", func(t *testing.T) {
		p := DefaultParameters()
		p.AutoWB = false
		p.WBRed = 2
		img := uniformRGB(2, 2, 100, 100, 100)
		out, err := whiteBalanceStage{}.Transform(img, p)
		test.That(t, err, test.ShouldBeNil)
		r, g, b := out.RGBAt(0, 0)
		test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{255, 0, 0})
		test.That(t, p.WBRed, test.ShouldEqual, 2.0)
	})

	t.Run("calibrate from a gray card", func(t *testing.T) {
		p := DefaultParameters()
		gray := rimage.NewPixelBuffer(4, 4, rimage.Gray8)
		for i := range gray.Pix {
			gray.Pix[i] = 64
		}
		test.That(t, CalibrateWhiteBalance(p, gray), test.ShouldBeNil)
		test.That(t, p.WBRed, test.ShouldEqual, 0.5)
		test.That(t, p.WBGreen, test.ShouldEqual, 0.5)
		test.That(t, p.WBBlue, test.ShouldEqual, 0.5)

		err := CalibrateWhiteBalance(p, rimage.NewPixelBuffer(0, 0, rimage.Gray8))
		test.That(t, errors.Is(err, rimage.ErrInputInvalid), test.ShouldBeTrue)
	})
}

func TestToneMapping(t *testing.T) {
	img := uniformRGB(2, 1, 100, 0, 255)
	p := DefaultParameters()
	p.Exposure = 2
	out, err := toneMappingStage{}.Transform(img, p)
	test.That(t, err, test.ShouldBeNil)
	r, g, b := out.RGBAt(0, 0)
	test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{200, 0, 255})

	p = DefaultParameters()
	p.Contrast = 0.5
	p.Brightness = 0.5
	out, err = toneMappingStage{}.Transform(img, p)
	test.That(t, err, test.ShouldBeNil)
	_, g, b = out.RGBAt(1, 0)
	test.That(t, g, test.ShouldEqual, uint8(128))
	test.That(t, b, test.ShouldEqual, uint8(255))

	p.Brightness = -2
	out, err = toneMappingStage{}.Transform(img, p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Pix, test.ShouldResemble, make([]byte, len(img.Pix)))
}

func TestDemosaic(t *testing.T) {
	flat := uniformRGB(10, 8, 200, 100, 50)
	for _, pattern := range []BayerPattern{BayerRGGB, BayerBGGR, BayerGRBG, BayerGBRG} {
		raw := mosaicOf(t, flat, pattern)
		for _, method := range []DemosaicMethod{DemosaicBilinear, DemosaicEdgeAware, DemosaicGradientCorrected} {
			t.Run(string(pattern)+"/"+string(method), func(t *testing.T) {
				out, err := Demosaic(raw, method, pattern)
				test.That(t, err, test.ShouldBeNil)
				test.That(t, out.Format, test.ShouldEqual, rimage.RGB8)
				test.That(t, out.Pix, test.ShouldResemble, flat.Pix)
			})
		}
	}

	t.Run("smooth gradient", func(t *testing.T) {
		ramp := rimage.NewPixelBuffer(16, 16, rimage.RGB8)
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				ramp.SetRGB(x, y, uint8(10*x), uint8(5*x+5*y), uint8(10*y))
			}
		}
		raw := mosaicOf(t, ramp, BayerRGGB)
		for _, method := range []DemosaicMethod{DemosaicBilinear, DemosaicEdgeAware, DemosaicGradientCorrected} {
			out, err := Demosaic(raw, method, BayerRGGB)
			test.That(t, err, test.ShouldBeNil)
			// linear ramps are reproduced away from the border
			for y := 2; y < 14; y++ {
				for x := 2; x < 14; x++ {
					for c := 0; c < 3; c++ {
						d := int(out.At(x, y, c)) - int(ramp.At(x, y, c))
						test.That(t, d, test.ShouldBeBetween, -3, 3)
					}
				}
			}
		}
	})

	t.Run("tiny and bad input", func(t *testing.T) {
		raw := rimage.NewPixelBuffer(1, 1, rimage.Raw8)
		raw.Pix[0] = 77
		out, err := Demosaic(raw, DemosaicGradientCorrected, BayerRGGB)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Pix, test.ShouldResemble, []byte{77, 77, 77})

		_, err = Demosaic(flat, DemosaicBilinear, BayerRGGB)
		test.That(t, errors.Is(err, rimage.ErrInputInvalid), test.ShouldBeTrue)
		_, err = Demosaic(raw, DemosaicBilinear, "RGBG")
		test.That(t, errors.Is(err, rimage.ErrInputInvalid), test.ShouldBeTrue)
		_, err = Demosaic(raw, "vng", BayerRGGB)
		test.That(t, errors.Is(err, rimage.ErrInputInvalid), test.ShouldBeTrue)
		_, err = Demosaic(rimage.NewPixelBuffer(0, 0, rimage.Raw8), "vng", BayerRGGB)
		test.That(t, errors.Is(err, rimage.ErrInputInvalid), test.ShouldBeTrue)
		_, err = Demosaic(rimage.NewPixelBuffer(4, 4, rimage.Raw8), "vng", BayerRGGB)
		test.That(t, errors.Is(err, rimage.ErrInputInvalid), test.ShouldBeTrue)
	})
}

func channelStdDev(t *testing.T, img *rimage.PixelBuffer, c int) float64 {
	t.Helper()
	var data stats.Float64Data
	for i := c; i < len(img.Pix); i += 3 {
		data = append(data, float64(img.Pix[i]))
	}
	sd, err := data.StandardDeviation()
	test.That(t, err, test.ShouldBeNil)
	return sd
}

func TestDenoise(t *testing.T) {
	flat := uniformRGB(12, 12, 120, 60, 200)
	out, err := Denoise(flat, 3)
	test.That(t, err, test.ShouldBeNil)
	for i := range out.Pix {
		test.That(t, int(out.Pix[i])-int(flat.Pix[i]), test.ShouldBeBetween, -3, 3)
	}

	noisy := uniformRGB(24, 24, 120, 120, 120)
	rng := rand.New(rand.NewPCG(7, 7))
	for i := range noisy.Pix {
		noisy.Pix[i] = uint8(int(noisy.Pix[i]) + rng.IntN(41) - 20)
	}
	out, err = Denoise(noisy, 30)
	test.That(t, err, test.ShouldBeNil)
	for c := 0; c < 3; c++ {
		test.That(t, channelStdDev(t, out, c), test.ShouldBeLessThan, channelStdDev(t, noisy, c)/2)
	}

	step := rimage.NewPixelBuffer(16, 16, rimage.RGB8)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			v := uint8(40)
			if x >= 8 {
				v = 200
			}
			step.SetRGB(x, y, v, v, v)
		}
	}
	out, err = Denoise(step, 10)
	test.That(t, err, test.ShouldBeNil)
	for _, y := range []int{0, 7, 15} {
		r, _, _ := out.RGBAt(7, y)
		test.That(t, int(r), test.ShouldBeBetween, 37, 43)
		r, _, _ = out.RGBAt(8, y)
		test.That(t, int(r), test.ShouldBeBetween, 197, 203)
	}

	nlm := &nlMeans{width: 10, height: 8, templateRadius: 3, searchRadius: 10}
	test.That(t, nlm.templateArea(0, 0), test.ShouldEqual, 16.0)
	test.That(t, nlm.templateArea(5, 4), test.ShouldEqual, 49.0)
	test.That(t, nlm.templateArea(9, 7), test.ShouldEqual, 16.0)
	test.That(t, nlm.templateArea(1, 4), test.ShouldEqual, 35.0)

	same, err := Denoise(noisy, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, same.Pix, test.ShouldResemble, noisy.Pix)

	_, err = Denoise(rimage.NewPixelBuffer(2, 2, rimage.Gray8), 1)
	test.That(t, err, test.ShouldNotBeNil)

	tr, sr := nlmWindows(100)
	test.That(t, 2*tr+1, test.ShouldEqual, 7)
	test.That(t, 2*sr+1, test.ShouldEqual, 21)
	tr, _ = nlmWindows(0.5)
	test.That(t, tr, test.ShouldEqual, 1)
}

func TestSharpen(t *testing.T) {
	step := rimage.NewPixelBuffer(40, 20, rimage.RGB8)
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			v := uint8(50)
			if x >= 20 {
				v = 200
			}
			step.SetRGB(x, y, v, v, v)
		}
	}
	out := Sharpen(step, 1)
	r, _, _ := out.RGBAt(19, 10)
	test.That(t, r, test.ShouldBeLessThan, uint8(50))
	r, _, _ = out.RGBAt(20, 10)
	test.That(t, r, test.ShouldBeGreaterThan, uint8(200))
	r, _, _ = out.RGBAt(0, 10)
	test.That(t, r, test.ShouldEqual, uint8(50))
	test.That(t, step.At(19, 10, 0), test.ShouldEqual, uint8(50))

	test.That(t, Sharpen(step, 0).Pix, test.ShouldResemble, step.Pix)

	flat := uniformRGB(16, 16, 90, 90, 90)
	test.That(t, Sharpen(flat, 2).Pix, test.ShouldResemble, flat.Pix)
}

func TestLensCorrection(t *testing.T) {
	img := randomRGB(32, 24, 3)
	p := DefaultParameters()
	p.LensCorrection = true
	test.That(t, lensCorrectionStage{}.Enabled(p, img), test.ShouldBeFalse)

	p.Lens = &LensModel{
		CameraMatrix: [9]float64{40, 0, 15.5, 0, 40, 11.5, 0, 0, 1},
		Distortion:   []float64{0, 0, 0, 0, 0},
		Width:        32,
		Height:       24,
	}
	test.That(t, lensCorrectionStage{}.Enabled(p, img), test.ShouldBeTrue)
	out, err := lensCorrectionStage{}.Transform(img, p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Pix, test.ShouldResemble, img.Pix)

	// a model solved at twice the resolution is scaled to the frame
	p.Lens.CameraMatrix = [9]float64{80, 0, 31, 0, 80, 23, 0, 0, 1}
	p.Lens.Distortion = []float64{-0.3, 0.1, 0, 0, 0}
	p.Lens.Width, p.Lens.Height = 64, 48
	out, err = lensCorrectionStage{}.Transform(img, p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Size(), test.ShouldResemble, img.Size())
	test.That(t, out.Pix, test.ShouldNotResemble, img.Pix)
	cx, cy := 15, 11
	test.That(t, out.At(cx, cy, 0), test.ShouldEqual, img.At(cx, cy, 0))

	p.LensCorrection = false
	test.That(t, lensCorrectionStage{}.Enabled(p, img), test.ShouldBeFalse)
}

func TestUseCalibration(t *testing.T) {
	p := DefaultParameters()
	test.That(t, p.UseCalibration(nil), test.ShouldNotBeNil)
	res := &calibration.Result{
		Intrinsics: transform.PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 600, Fy: 610, Ppx: 320, Ppy: 240},
		Distortion: []float64{-0.1, 0.05, 0, 0, 0},
		ImageSize:  image.Point{640, 480},
	}
	test.That(t, p.UseCalibration(res), test.ShouldBeNil)
	test.That(t, p.LensCorrection, test.ShouldBeTrue)
	test.That(t, p.Lens.CameraMatrix, test.ShouldResemble, [9]float64{600, 0, 320, 0, 610, 240, 0, 0, 1})
	test.That(t, p.Lens.Distortion, test.ShouldResemble, res.Distortion)
	test.That(t, p.Validate(), test.ShouldBeNil)

	res.Distortion = []float64{1, 2, 3}
	test.That(t, p.UseCalibration(res), test.ShouldNotBeNil)
	test.That(t, len(p.Lens.Distortion), test.ShouldEqual, 5)
}

func TestParametersValidate(t *testing.T) {
	test.That(t, DefaultParameters().Validate(), test.ShouldBeNil)
	for name, mutate := range map[string]func(p *Parameters){
		"gamma":    func(p *Parameters) { p.Gamma = 0 },
		"gain":     func(p *Parameters) { p.WBBlue = -1 },
		"method":   func(p *Parameters) { p.DemosaicMethod = "vng" },
		"pattern":  func(p *Parameters) { p.BayerPattern = "RGBW" },
		"matrix":   func(p *Parameters) { p.ColorMatrix[4] = math.NaN() },
		"strength": func(p *Parameters) { p.SharpenStrength = math.Inf(1) },
		"lens":     func(p *Parameters) { p.Lens = &LensModel{Distortion: []float64{0, 0, 0, 0, 0}} },
	} {
		t.Run(name, func(t *testing.T) {
			p := DefaultParameters()
			mutate(p)
			test.That(t, p.Validate(), test.ShouldNotBeNil)
		})
	}
}

func TestPipeline(t *testing.T) {
	logger := logging.NewTestLogger(t)
	pipeline := NewPipeline(logger)
	test.That(t, pipeline.StageNames(), test.ShouldResemble, []string{
		"demosaic", "lens_correction", "white_balance", "color_correction",
		"gamma", "tone_mapping", "denoise", "sharpen",
	})

	var ran []string
	pipeline.SetStageHook(func(stage string, elapsed time.Duration) {
		test.That(t, elapsed, test.ShouldBeGreaterThanOrEqualTo, time.Duration(0))
		ran = append(ran, stage)
	})

	t.Run("empty input runs nothing", func(t *testing.T) {
		ran = nil
		out, err := pipeline.Process(rimage.NewPixelBuffer(0, 0, rimage.Raw8), DefaultParameters())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Empty(), test.ShouldBeTrue)
		test.That(t, ran, test.ShouldBeEmpty)
	})

	t.Run("malformed input", func(t *testing.T) {
		ran = nil
		bad := &rimage.PixelBuffer{Width: 4, Height: 4, Format: rimage.RGB8, Pix: make([]byte, 10)}
		_, err := pipeline.Process(bad, nil)
		test.That(t, errors.Is(err, rimage.ErrInputInvalid), test.ShouldBeTrue)
		_, err = pipeline.Process(nil, nil)
		test.That(t, errors.Is(err, rimage.ErrInputInvalid), test.ShouldBeTrue)
		test.That(t, ran, test.ShouldBeEmpty)
	})

	t.Run("raw input", func(t *testing.T) {
		ran = nil
		p := DefaultParameters()
		p.DenoiseEnabled = false
		raw := mosaicOf(t, randomRGB(16, 12, 5), BayerRGGB)
		before := append([]byte(nil), raw.Pix...)
		out, err := pipeline.Process(raw, p)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Format, test.ShouldEqual, rimage.RGB8)
		test.That(t, out.Size(), test.ShouldResemble, raw.Size())
		test.That(t, raw.Pix, test.ShouldResemble, before)
		test.That(t, ran, test.ShouldResemble, []string{
			"demosaic", "white_balance", "color_correction", "gamma", "tone_mapping", "sharpen",
		})
		test.That(t, p.WBRed, test.ShouldEqual, 1.0)
	})

	t.Run("gray input with lens correction", func(t *testing.T) {
		ran = nil
		p := DefaultParameters()
		p.SharpenEnabled = false
		p.LensCorrection = true
		p.Lens = &LensModel{CameraMatrix: [9]float64{20, 0, 7.5, 0, 20, 5.5, 0, 0, 1}}
		gray := rimage.NewPixelBuffer(16, 12, rimage.Gray8)
		for i := range gray.Pix {
			gray.Pix[i] = uint8(i)
		}
		out, err := pipeline.Process(gray, p)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Format, test.ShouldEqual, rimage.RGB8)
		test.That(t, ran, test.ShouldResemble, []string{
			"lens_correction", "white_balance", "color_correction", "gamma", "tone_mapping", "denoise",
		})
		r, g, b := out.RGBAt(8, 6)
		test.That(t, int(r)-int(g), test.ShouldBeBetween, -2, 2)
		test.That(t, int(g)-int(b), test.ShouldBeBetween, -2, 2)
	})

	t.Run("bad parameters", func(t *testing.T) {
		p := DefaultParameters()
		p.Gamma = -1
		_, err := pipeline.Process(uniformRGB(2, 2, 1, 2, 3), p)
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestColorMatrixStore(t *testing.T) {
	m := [9]float64{1.2, -0.1, -0.1, -0.05, 1.1, -0.05, 0, -0.2, 1.2}
	for _, name := range []string{"ccm.yaml", "ccm.json"} {
		path := filepath.Join(t.TempDir(), name)
		test.That(t, SaveColorMatrix(path, m), test.ShouldBeNil)
		got, err := LoadColorMatrix(path)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldResemble, m)
	}

	_, err := LoadColorMatrix(filepath.Join(t.TempDir(), "missing.yaml"))
	test.That(t, err, test.ShouldNotBeNil)

	path := filepath.Join(t.TempDir(), "short.yaml")
	test.That(t, SaveColorMatrix(path, m), test.ShouldBeNil)
	test.That(t, os.WriteFile(path, []byte("ColorMatrix: {rows: 2, cols: 2, data: [1, 0, 0, 1]}\n"), 0o600), test.ShouldBeNil)
	_, err = LoadColorMatrix(path)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "3x3")
}
