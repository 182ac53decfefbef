package isp

import (
	"math"

	"go.viam.com/camisp/rimage"
	"go.viam.com/camisp/utils"
)

const (
	red = iota
	green
	blue
)

// bayerOffsets returns the channel sampled at each position of the 2x2 cell, indexed by
// (x&1) + 2*(y&1).
func bayerOffsets(pattern BayerPattern) ([4]int, error) {
	switch pattern {
	case BayerRGGB:
		return [4]int{red, green, green, blue}, nil
	case BayerBGGR:
		return [4]int{blue, green, green, red}, nil
	case BayerGRBG:
		return [4]int{green, red, blue, green}, nil
	case BayerGBRG:
		return [4]int{green, blue, red, green}, nil
	}
	return [4]int{}, rimage.NewInputInvalidError("unknown bayer pattern %q", pattern)
}

// mosaic reads a Raw8 buffer with mirrored borders.
type mosaic struct {
	pix    []byte
	w, h   int
	colors [4]int
}

func (m *mosaic) sample(x, y int) (float64, int) {
	x, y = utils.Reflect101(x, m.w), utils.Reflect101(y, m.h)
	return float64(m.pix[y*m.w+x]), m.colors[(x&1)+2*(y&1)]
}

func (m *mosaic) value(x, y int) float64 {
	v, _ := m.sample(x, y)
	return v
}

// neighborMean averages the 3x3 neighbors of (x, y) sampling channel c, each reduced by base
// when base is given.
func (m *mosaic) neighborMean(x, y, c int, base func(x, y int) float64) (float64, bool) {
	sum, n := 0., 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			v, vc := m.sample(x+dx, y+dy)
			if vc != c {
				continue
			}
			if base != nil {
				v -= base(x+dx, y+dy)
			}
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

type demosaicStage struct{}

func (demosaicStage) Name() string { return "demosaic" }

func (demosaicStage) Enabled(_ *Parameters, img *rimage.PixelBuffer) bool {
	return img.Format == rimage.Raw8
}

func (demosaicStage) Transform(img *rimage.PixelBuffer, p *Parameters) (*rimage.PixelBuffer, error) {
	return Demosaic(img, p.DemosaicMethod, p.BayerPattern)
}

// Demosaic reconstructs an RGB8 image from a Raw8 mosaic with the given layout.
func Demosaic(img *rimage.PixelBuffer, method DemosaicMethod, pattern BayerPattern) (*rimage.PixelBuffer, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if img.Format != rimage.Raw8 {
		return nil, rimage.NewInputInvalidError("demosaic needs a %v buffer, got %v", rimage.Raw8, img.Format)
	}
	if err := method.validate(); err != nil {
		return nil, err
	}
	colors, err := bayerOffsets(pattern)
	if err != nil {
		return nil, err
	}
	out := rimage.NewPixelBuffer(img.Width, img.Height, rimage.RGB8)
	if img.Empty() {
		return out, nil
	}
	m := &mosaic{pix: img.Pix, w: img.Width, h: img.Height, colors: colors}
	if m.w < 2 || m.h < 2 {
		method = DemosaicBilinear
	}
	switch method {
	case DemosaicBilinear:
		demosaicBilinear(m, out)
	case DemosaicEdgeAware:
		demosaicEdgeAware(m, out)
	case DemosaicGradientCorrected:
		demosaicGradientCorrected(m, out)
	}
	return out, nil
}

func demosaicBilinear(m *mosaic, out *rimage.PixelBuffer) {
	utils.ParallelForEachRow(m.h, func(y int) {
		for x := 0; x < m.w; x++ {
			own, oc := m.sample(x, y)
			for c := red; c <= blue; c++ {
				v := own
				if c != oc {
					if mean, ok := m.neighborMean(x, y, c, nil); ok {
						v = mean
					}
				}
				out.Set(x, y, c, utils.SaturateUint8(v))
			}
		}
	})
}

// demosaicEdgeAware interpolates green along the direction of the smaller gradient (with a second
// order correction from the site's own channel), then fills red and blue from color differences
// against that green plane.
func demosaicEdgeAware(m *mosaic, out *rimage.PixelBuffer) {
	g := make([]float64, m.w*m.h)
	utils.ParallelForEachRow(m.h, func(y int) {
		for x := 0; x < m.w; x++ {
			v, c := m.sample(x, y)
			if c == green {
				g[y*m.w+x] = v
				continue
			}
			left, right := m.value(x-1, y), m.value(x+1, y)
			up, down := m.value(x, y-1), m.value(x, y+1)
			lapH := 2*v - m.value(x-2, y) - m.value(x+2, y)
			lapV := 2*v - m.value(x, y-2) - m.value(x, y+2)
			gradH := math.Abs(left-right) + math.Abs(lapH)
			gradV := math.Abs(up-down) + math.Abs(lapV)
			estH := (left+right)/2 + lapH/4
			estV := (up+down)/2 + lapV/4
			var est float64
			switch {
			case gradH < gradV:
				est = estH
			case gradV < gradH:
				est = estV
			default:
				est = (estH + estV) / 2
			}
			g[y*m.w+x] = utils.Clamp(est, 0, 255)
		}
	})
	greenAt := func(x, y int) float64 {
		return g[utils.Reflect101(y, m.h)*m.w+utils.Reflect101(x, m.w)]
	}
	utils.ParallelForEachRow(m.h, func(y int) {
		for x := 0; x < m.w; x++ {
			own, oc := m.sample(x, y)
			gv := g[y*m.w+x]
			out.Set(x, y, green, utils.SaturateUint8(gv))
			for _, c := range []int{red, blue} {
				v := own
				if c != oc {
					v = gv
					if diff, ok := m.neighborMean(x, y, c, greenAt); ok {
						v += diff
					}
				}
				out.Set(x, y, c, utils.SaturateUint8(v))
			}
		}
	})
}

// Malvar, He and Cutler 5x5 filters. Each sums to 8.
var (
	greenAtRedBlue = mustKernel([][]float64{
		{0, 0, -1, 0, 0},
		{0, 0, 2, 0, 0},
		{-1, 2, 4, 2, -1},
		{0, 0, 2, 0, 0},
		{0, 0, -1, 0, 0},
	})
	// at a green site whose row neighbors carry the wanted channel
	rowNeighbors = mustKernel([][]float64{
		{0, 0, 0.5, 0, 0},
		{0, -1, 0, -1, 0},
		{-1, 4, 5, 4, -1},
		{0, -1, 0, -1, 0},
		{0, 0, 0.5, 0, 0},
	})
	// at a green site whose column neighbors carry the wanted channel
	columnNeighbors = mustKernel([][]float64{
		{0, 0, -1, 0, 0},
		{0, -1, 4, -1, 0},
		{0.5, 0, 5, 0, 0.5},
		{0, -1, 4, -1, 0},
		{0, 0, -1, 0, 0},
	})
	// red at blue sites and blue at red sites
	diagonalNeighbors = mustKernel([][]float64{
		{0, 0, -1.5, 0, 0},
		{0, 2, 0, 2, 0},
		{-1.5, 0, 6, 0, -1.5},
		{0, 2, 0, 2, 0},
		{0, 0, -1.5, 0, 0},
	})
)

func mustKernel(rows [][]float64) rimage.Kernel {
	k, err := rimage.NewKernel(rows, 8)
	if err != nil {
		panic(err)
	}
	return k
}

func (m *mosaic) apply(k *rimage.Kernel, x, y int) float64 {
	anchor := k.Anchor()
	sum := 0.
	for ky := 0; ky < k.Height; ky++ {
		for kx := 0; kx < k.Width; kx++ {
			if w := k.At(kx, ky); w != 0 {
				sum += w * m.value(x+kx-anchor.X, y+ky-anchor.Y)
			}
		}
	}
	return sum
}

func demosaicGradientCorrected(m *mosaic, out *rimage.PixelBuffer) {
	utils.ParallelForEachRow(m.h, func(y int) {
		for x := 0; x < m.w; x++ {
			own, oc := m.sample(x, y)
			for c := red; c <= blue; c++ {
				var v float64
				switch {
				case c == oc:
					v = own
				case c == green:
					v = m.apply(&greenAtRedBlue, x, y)
				case oc != green:
					v = m.apply(&diagonalNeighbors, x, y)
				default:
					if _, rc := m.sample(x+1, y); rc == c {
						v = m.apply(&rowNeighbors, x, y)
					} else {
						v = m.apply(&columnNeighbors, x, y)
					}
				}
				out.Set(x, y, c, utils.SaturateUint8(v))
			}
		}
	})
}
