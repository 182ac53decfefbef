package isp

import (
	"image"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/mat"
	"golang.org/x/sync/errgroup"

	"go.viam.com/camisp/rimage"
	"go.viam.com/camisp/utils"
)

const (
	sharpenSigma      = 3.
	maxTemplateRadius = 3
)

type denoiseStage struct{}

func (denoiseStage) Name() string { return "denoise" }

func (denoiseStage) Enabled(p *Parameters, _ *rimage.PixelBuffer) bool {
	return p.DenoiseEnabled
}

func (denoiseStage) Transform(img *rimage.PixelBuffer, p *Parameters) (*rimage.PixelBuffer, error) {
	return Denoise(img, p.DenoiseStrength)
}

// nlmWindows returns the template and search radii for a denoise strength. They grow with the
// strength up to a 7x7 template and a 21x21 search window.
func nlmWindows(strength float64) (int, int) {
	t := utils.ClampInt(int(math.Ceil(strength)), 1, maxTemplateRadius)
	return t, 3*t + 1
}

// Denoise applies non-local means to an RGB8 image in CIE Lab. Lightness is filtered with
// strength as the filter parameter and the two chroma channels together with half of it, each pass
// weighting patches by their mean squared difference per channel. A strength of zero returns a copy.
func Denoise(img *rimage.PixelBuffer, strength float64) (*rimage.PixelBuffer, error) {
	if img.Format != rimage.RGB8 {
		return nil, rimage.NewInputInvalidError("denoise needs an %v buffer, got %v", rimage.RGB8, img.Format)
	}
	if strength <= 0 || img.Empty() {
		return img.Clone(), nil
	}
	w, h := img.Width, img.Height
	n := w * h
	var planes [3][]float64
	for c := range planes {
		planes[c] = make([]float64, n)
	}
	utils.ParallelForEachRow(h, func(y int) {
		for x := 0; x < w; x++ {
			i := y*w + x
			l, a, b := colorful.Color{
				R: float64(img.Pix[3*i]) / 255,
				G: float64(img.Pix[3*i+1]) / 255,
				B: float64(img.Pix[3*i+2]) / 255,
			}.Lab()
			// 8-bit Lab scale: L in [0, 255], a and b in CIE units
			planes[0][i], planes[1][i], planes[2][i] = l*labLightScale, a*labChromaScale, b*labChromaScale
		}
	})

	templateRadius, searchRadius := nlmWindows(strength)
	nlm := &nlMeans{width: w, height: h, templateRadius: templateRadius, searchRadius: searchRadius}
	light, err := nlm.filter(planes[:1], strength)
	if err != nil {
		return nil, err
	}
	chroma, err := nlm.filter(planes[1:], strength/2)
	if err != nil {
		return nil, err
	}

	out := rimage.NewPixelBuffer(w, h, rimage.RGB8)
	utils.ParallelForEachRow(h, func(y int) {
		for x := 0; x < w; x++ {
			i := y*w + x
			c := colorful.Lab(light[0][i]/labLightScale, chroma[0][i]/labChromaScale, chroma[1][i]/labChromaScale).Clamped()
			out.Pix[3*i], out.Pix[3*i+1], out.Pix[3*i+2] = c.RGB255()
		}
	})
	return out, nil
}

const (
	labLightScale  = 255.
	labChromaScale = 100.
)

// nlMeans filters groups of planes that share one patch weight per offset.
type nlMeans struct {
	width, height  int
	templateRadius int
	searchRadius   int
}

func (nlm *nlMeans) offsets() []image.Point {
	var offsets []image.Point
	for dy := -nlm.searchRadius; dy <= nlm.searchRadius; dy++ {
		for dx := -nlm.searchRadius; dx <= nlm.searchRadius; dx++ {
			offsets = append(offsets, image.Point{dx, dy})
		}
	}
	return offsets
}

// templateArea is the number of template pixels inside the image around (x, y).
func (nlm *nlMeans) templateArea(x, y int) float64 {
	r := nlm.templateRadius
	cols := min(x+r+1, nlm.width) - max(x-r, 0)
	rows := min(y+r+1, nlm.height) - max(y-r, 0)
	return float64(cols * rows)
}

// filter returns the non-local means of planes with filter parameter hParam. The distance between
// two patches is their squared difference averaged over template pixels and planes.
func (nlm *nlMeans) filter(planes [][]float64, hParam float64) ([][]float64, error) {
	w, h := nlm.width, nlm.height
	n := w * h
	r := nlm.templateRadius
	scale := 1 / (hParam * hParam * float64(len(planes)))
	offsets := nlm.offsets()

	var mu sync.Mutex
	weights := make([]float64, n)
	sums := make([][]float64, len(planes))
	for c := range sums {
		sums[c] = make([]float64, n)
	}

	var g errgroup.Group
	g.SetLimit(utils.ParallelFactor)
	chunk := (len(offsets) + utils.ParallelFactor - 1) / utils.ParallelFactor
	for start := 0; start < len(offsets); start += chunk {
		part := offsets[start:min(start+chunk, len(offsets))]
		g.Go(func() error {
			localW := make([]float64, n)
			local := make([][]float64, len(planes))
			for c := range local {
				local[c] = make([]float64, n)
			}
			diff := mat.NewDense(h, w, nil)
			raw := diff.RawMatrix().Data
			for _, off := range part {
				for y := 0; y < h; y++ {
					sy := utils.Reflect101(y+off.Y, h)
					for x := 0; x < w; x++ {
						i, j := y*w+x, sy*w+utils.Reflect101(x+off.X, w)
						d := 0.
						for _, plane := range planes {
							dv := plane[i] - plane[j]
							d += dv * dv
						}
						raw[i] = d
					}
				}
				ii := rimage.NewIntegralImage(diff)
				for y := 0; y < h; y++ {
					sy := utils.Reflect101(y+off.Y, h)
					for x := 0; x < w; x++ {
						d := ii.Sum(x-r, y-r, x+r+1, y+r+1) / nlm.templateArea(x, y)
						wt := math.Exp(-d * scale)
						i, j := y*w+x, sy*w+utils.Reflect101(x+off.X, w)
						localW[i] += wt
						for c, plane := range planes {
							local[c][i] += wt * plane[j]
						}
					}
				}
			}
			mu.Lock()
			defer mu.Unlock()
			for i := range weights {
				weights[i] += localW[i]
				for c := range sums {
					sums[c][i] += local[c][i]
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// the zero offset always contributes a weight of one
	for c := range sums {
		for i, wt := range weights {
			sums[c][i] /= wt
		}
	}
	return sums, nil
}

type sharpenStage struct{}

func (sharpenStage) Name() string { return "sharpen" }

func (sharpenStage) Enabled(p *Parameters, _ *rimage.PixelBuffer) bool {
	return p.SharpenEnabled
}

func (sharpenStage) Transform(img *rimage.PixelBuffer, p *Parameters) (*rimage.PixelBuffer, error) {
	return Sharpen(img, p.SharpenStrength), nil
}

// Sharpen applies an unsharp mask: original*(1+strength) - blurred*strength with a Gaussian blur of
// sigma 3.
func Sharpen(img *rimage.PixelBuffer, strength float64) *rimage.PixelBuffer {
	if strength == 0 || img.Empty() {
		return img.Clone()
	}
	blurred := imaging.Blur(img.ToImage(), sharpenSigma)
	channels := img.Format.Channels()
	out := rimage.NewPixelBuffer(img.Width, img.Height, img.Format)
	utils.ParallelForEachRow(img.Height, func(y int) {
		for x := 0; x < img.Width; x++ {
			bi := blurred.PixOffset(x, y)
			for c := 0; c < channels; c++ {
				// imaging.Blur keeps gray images gray, so any color channel is the intensity
				orig := float64(img.At(x, y, c))
				blur := float64(blurred.Pix[bi+c])
				out.Set(x, y, c, utils.SaturateUint8(orig*(1+strength)-blur*strength))
			}
		}
	})
	return out
}

type lensCorrectionStage struct{}

func (lensCorrectionStage) Name() string { return "lens_correction" }

func (lensCorrectionStage) Enabled(p *Parameters, _ *rimage.PixelBuffer) bool {
	return p.LensCorrection && p.Lens != nil
}

func (lensCorrectionStage) Transform(img *rimage.PixelBuffer, p *Parameters) (*rimage.PixelBuffer, error) {
	if p.Lens == nil {
		return img.Clone(), nil
	}
	model, err := p.Lens.cameraModel(img.Size())
	if err != nil {
		return nil, err
	}
	return model.UndistortImage(img)
}
