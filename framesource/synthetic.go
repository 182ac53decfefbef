package framesource

import (
	"context"
	"image"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camisp/logging"
	"go.viam.com/camisp/rimage"
	"go.viam.com/camisp/rimage/transform"
	"go.viam.com/camisp/utils"
)

// SyntheticType is the name of the rendered chessboard backend.
const SyntheticType = "synthetic"

func init() {
	Register(SyntheticType, func(attributes utils.AttributeMap, logger logging.Logger) (Source, error) {
		conf, err := utils.TransformAttributeMap[*SyntheticConfig](attributes)
		if err != nil {
			return nil, err
		}
		return NewSyntheticSource(conf, logger)
	})
}

// Board describes a printed chessboard. Pattern counts inner corners; the board has one more
// square than that along each side plus a light margin one square wide.
type Board struct {
	Pattern    image.Point
	SquareSize float64
	Dark       uint8
	Light      uint8
	Background uint8
}

// DefaultBoard is a 9x6 inner corner board of 25mm squares.
var DefaultBoard = Board{
	Pattern:    image.Point{9, 6},
	SquareSize: 25,
	Dark:       30,
	Light:      230,
	Background: 100,
}

// Pose places the board in the camera frame. Rotation is a Rodrigues vector.
type Pose struct {
	Rotation    [3]float64 `json:"rotation"`
	Translation [3]float64 `json:"translation"`
}

// RVec returns the rotation as a vector.
func (p Pose) RVec() r3.Vector {
	return r3.Vector{X: p.Rotation[0], Y: p.Rotation[1], Z: p.Rotation[2]}
}

// TVec returns the translation as a vector.
func (p Pose) TVec() r3.Vector {
	return r3.Vector{X: p.Translation[0], Y: p.Translation[1], Z: p.Translation[2]}
}

// DefaultPoses returns n views of the board, centred on the optical axis at a distance where the
// board spans about half the image width, tilted in turn about both image axes.
func DefaultPoses(model *transform.PinholeCameraModel, board Board, n int) []Pose {
	boardWidth := float64(board.Pattern.X+1) * board.SquareSize
	distance := model.Fx * boardWidth / (0.5 * float64(model.Width))
	center := r3.Vector{
		X: float64(board.Pattern.X-1) * board.SquareSize / 2,
		Y: float64(board.Pattern.Y-1) * board.SquareSize / 2,
	}
	tilts := []r3.Vector{
		{X: 0.05, Y: 0.05, Z: 0.02},
		{X: 0.35, Y: 0, Z: 0.05},
		{X: -0.35, Y: 0.05, Z: -0.05},
		{X: 0, Y: 0.35, Z: 0.1},
		{X: 0.05, Y: -0.35, Z: -0.1},
		{X: 0.25, Y: 0.25, Z: 0},
		{X: -0.25, Y: -0.2, Z: 0.15},
		{X: 0.2, Y: -0.25, Z: -0.15},
	}
	poses := make([]Pose, n)
	for i := range poses {
		tilt := tilts[i%len(tilts)]
		rmat := transform.RodriguesToMatrix(tilt)
		var rc mat.VecDense
		rc.MulVec(rmat, mat.NewVecDense(3, []float64{center.X, center.Y, center.Z}))
		// small lateral offsets so views do not share one centre
		shift := 0.08 * distance * float64(i%3-1)
		poses[i] = Pose{
			Rotation: [3]float64{tilt.X, tilt.Y, tilt.Z},
			Translation: [3]float64{
				shift - rc.AtVec(0),
				0.5*shift - rc.AtVec(1),
				distance * (1 + 0.1*float64(i%2)) - rc.AtVec(2),
			},
		}
	}
	return poses
}

// BoardCorners projects the inner corners of board at pose through model, row by row.
func BoardCorners(model *transform.PinholeCameraModel, board Board, pose Pose) []r2.Point {
	pts := make([]r3.Vector, 0, board.Pattern.X*board.Pattern.Y)
	for i := 0; i < board.Pattern.Y; i++ {
		for j := 0; j < board.Pattern.X; j++ {
			pts = append(pts, r3.Vector{X: float64(j) * board.SquareSize, Y: float64(i) * board.SquareSize})
		}
	}
	return model.ProjectPoints(pts, pose.RVec(), pose.TVec())
}

// Renderer draws a board through a camera model. Undistorted ray directions of every sample are
// computed once and reused for each pose.
type Renderer struct {
	model       *transform.PinholeCameraModel
	board       Board
	supersample int
	rays        []r2.Point
}

// NewRenderer precomputes sample rays for model. supersample is the number of samples per pixel
// along each axis.
func NewRenderer(model *transform.PinholeCameraModel, board Board, supersample int) (*Renderer, error) {
	if err := model.CheckValid(); err != nil {
		return nil, err
	}
	if board.Pattern.X < 2 || board.Pattern.Y < 2 || board.SquareSize <= 0 {
		return nil, rimage.NewInputInvalidError("bad board %dx%d with square %v",
			board.Pattern.X, board.Pattern.Y, board.SquareSize)
	}
	if supersample < 1 {
		supersample = 1
	}
	r := &Renderer{model: model, board: board, supersample: supersample}
	w, h, s := model.Width, model.Height, supersample
	r.rays = make([]r2.Point, w*h*s*s)
	inv, _ := model.Distortion.(transform.Undistorter)
	utils.ParallelForEachRow(h, func(v int) {
		for u := 0; u < w; u++ {
			for sy := 0; sy < s; sy++ {
				for sx := 0; sx < s; sx++ {
					pu := float64(u) + (float64(sx)+0.5)/float64(s) - 0.5
					pv := float64(v) + (float64(sy)+0.5)/float64(s) - 0.5
					x, y := model.PixelToNormalized(pu, pv)
					if inv != nil {
						x, y = inv.Inverse(x, y)
					}
					r.rays[((v*w+u)*s+sy)*s+sx] = r2.Point{X: x, Y: y}
				}
			}
		}
	})
	return r, nil
}

// boardValue returns the intensity of the board plane at (a, b) in board units.
func (r *Renderer) boardValue(a, b float64) float64 {
	sq := r.board.SquareSize
	cx := int(math.Floor(a / sq))
	cy := int(math.Floor(b / sq))
	switch {
	case cx < -2 || cy < -2 || cx > r.board.Pattern.X || cy > r.board.Pattern.Y:
		return float64(r.board.Background)
	case cx == -2 || cy == -2 || cx == r.board.Pattern.X || cy == r.board.Pattern.Y:
		return float64(r.board.Light)
	case (cx+cy)%2 == 0:
		return float64(r.board.Dark)
	default:
		return float64(r.board.Light)
	}
}

// Render draws the board at pose as a Gray8 image with the given additive gaussian noise.
func (r *Renderer) Render(pose Pose, noise float64, rng *rand.Rand) (*rimage.PixelBuffer, error) {
	rmat := transform.RodriguesToMatrix(pose.RVec())
	t := pose.TVec()
	h := mat.NewDense(3, 3, []float64{
		rmat.At(0, 0), rmat.At(0, 1), t.X,
		rmat.At(1, 0), rmat.At(1, 1), t.Y,
		rmat.At(2, 0), rmat.At(2, 1), t.Z,
	})
	var hinv mat.Dense
	if err := hinv.Inverse(h); err != nil {
		return nil, errors.Wrap(err, "board plane is seen edge on")
	}

	hi := hinv.RawMatrix()
	var m [9]float64
	for row := 0; row < 3; row++ {
		copy(m[3*row:3*row+3], hi.Data[row*hi.Stride:row*hi.Stride+3])
	}

	w, ht, s := r.model.Width, r.model.Height, r.supersample
	out := rimage.NewPixelBuffer(w, ht, rimage.Gray8)
	samples := float64(s * s)
	utils.ParallelForEachRow(ht, func(v int) {
		for u := 0; u < w; u++ {
			sum := 0.
			base := (v*w + u) * s * s
			for k := 0; k < s*s; k++ {
				ray := r.rays[base+k]
				pa := m[0]*ray.X + m[1]*ray.Y + m[2]
				pb := m[3]*ray.X + m[4]*ray.Y + m[5]
				pc := m[6]*ray.X + m[7]*ray.Y + m[8]
				if pc <= 0 {
					// behind the camera
					sum += float64(r.board.Background)
					continue
				}
				sum += r.boardValue(pa/pc, pb/pc)
			}
			out.Pix[v*w+u] = utils.SaturateUint8(sum / samples)
		}
	})
	if noise > 0 {
		if rng == nil {
			rng = rand.New(rand.NewPCG(1, 2))
		}
		for i, p := range out.Pix {
			out.Pix[i] = utils.SaturateUint8(float64(p) + rng.NormFloat64()*noise)
		}
	}
	return out, nil
}

// RenderChessboard draws a single view of board at pose through model with 4x4 supersampling.
func RenderChessboard(model *transform.PinholeCameraModel, board Board, pose Pose) (*rimage.PixelBuffer, error) {
	r, err := NewRenderer(model, board, 4)
	if err != nil {
		return nil, err
	}
	return r.Render(pose, 0, nil)
}

// SyntheticConfig are the attributes of the rendered chessboard backend.
type SyntheticConfig struct {
	Intrinsics *transform.PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion []float64                          `json:"distortion_parameters,omitempty"`
	Columns    int                                `json:"columns"`
	Rows       int                                `json:"rows"`
	SquareSize float64                            `json:"square_size_mm"`
	// Poses defaults to eight views from DefaultPoses.
	Poses       []Pose  `json:"poses,omitempty"`
	Noise       float64 `json:"noise,omitempty"`
	Seed        uint64  `json:"seed,omitempty"`
	Supersample int     `json:"supersample,omitempty"`
	// Format is one of gray8, raw8 or rgb8. Raw frames are RGGB mosaics of the tinted scene.
	Format string `json:"format,omitempty"`
	// Tint scales the red, green and blue channels of color and raw frames.
	Tint []float64 `json:"tint,omitempty"`
	Loop bool      `json:"loop,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *SyntheticConfig) Validate() error {
	if conf.Intrinsics == nil {
		return transform.NewNoIntrinsicsError("synthetic frame source needs intrinsic_parameters")
	}
	if err := conf.Intrinsics.CheckValid(); err != nil {
		return err
	}
	if conf.Columns < 2 || conf.Rows < 2 {
		return errors.Errorf("board needs at least 2x2 inner corners, got %dx%d", conf.Columns, conf.Rows)
	}
	if conf.SquareSize <= 0 {
		return errors.Errorf("square_size_mm must be positive, got %v", conf.SquareSize)
	}
	if conf.Tint != nil && len(conf.Tint) != 3 {
		return errors.Errorf("tint needs 3 values, got %d", len(conf.Tint))
	}
	if conf.Noise < 0 {
		return errors.Errorf("noise must not be negative, got %v", conf.Noise)
	}
	if conf.Format != "" {
		if _, err := rimage.FormatFromString(conf.Format); err != nil {
			return err
		}
	}
	return nil
}

// Model returns the camera model described by the config.
func (conf *SyntheticConfig) Model() (*transform.PinholeCameraModel, error) {
	distortion, err := transform.NewBrownConrady(conf.Distortion)
	if err != nil {
		return nil, err
	}
	return &transform.PinholeCameraModel{PinholeCameraIntrinsics: conf.Intrinsics, Distortion: distortion}, nil
}

// Board returns the board described by the config with the default colors.
func (conf *SyntheticConfig) Board() Board {
	board := DefaultBoard
	board.Pattern = image.Point{conf.Columns, conf.Rows}
	board.SquareSize = conf.SquareSize
	return board
}

type syntheticSource struct {
	conf   SyntheticConfig
	format rimage.Format
	logger logging.Logger

	mu       sync.Mutex
	renderer *Renderer
	poses    []Pose
	rng      *rand.Rand
	next     int
}

// NewSyntheticSource returns a source that renders the configured board at each pose in turn.
func NewSyntheticSource(conf *SyntheticConfig, logger logging.Logger) (Source, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	format := rimage.Gray8
	if conf.Format != "" {
		var err error
		if format, err = rimage.FormatFromString(conf.Format); err != nil {
			return nil, err
		}
	}
	return &syntheticSource{conf: *conf, format: format, logger: logger}, nil
}

func (ss *syntheticSource) Open(ctx context.Context) error {
	model, err := ss.conf.Model()
	if err != nil {
		return err
	}
	board := ss.conf.Board()
	supersample := ss.conf.Supersample
	if supersample == 0 {
		supersample = 4
	}
	renderer, err := NewRenderer(model, board, supersample)
	if err != nil {
		return err
	}
	poses := ss.conf.Poses
	if len(poses) == 0 {
		poses = DefaultPoses(model, board, 8)
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.renderer = renderer
	ss.poses = poses
	ss.rng = rand.New(rand.NewPCG(ss.conf.Seed, ss.conf.Seed^0x9e3779b97f4a7c15))
	ss.next = 0
	ss.logger.Debugw("opened synthetic frame source", "poses", len(poses), "format", ss.format.String())
	return nil
}

func (ss *syntheticSource) ReadFrame(ctx context.Context) (*rimage.PixelBuffer, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.renderer == nil {
		return nil, errNotOpen
	}
	if ss.next >= len(ss.poses) {
		if !ss.conf.Loop {
			return nil, ErrEndOfStream
		}
		ss.next = 0
	}
	pose := ss.poses[ss.next]
	ss.next++
	gray, err := ss.renderer.Render(pose, ss.conf.Noise, ss.rng)
	if err != nil {
		return nil, err
	}
	return colorize(gray, ss.format, ss.conf.Tint), nil
}

func (ss *syntheticSource) Close(ctx context.Context) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.renderer = nil
	return nil
}

// colorize turns a rendered gray frame into the requested format, scaling channels by tint.
func colorize(gray *rimage.PixelBuffer, format rimage.Format, tint []float64) *rimage.PixelBuffer {
	if format == rimage.Gray8 {
		return gray
	}
	gains := [3]float64{1, 1, 1}
	if len(tint) == 3 {
		copy(gains[:], tint)
	}
	out := rimage.NewPixelBuffer(gray.Width, gray.Height, format)
	for y := 0; y < gray.Height; y++ {
		for x := 0; x < gray.Width; x++ {
			v := float64(gray.Pix[y*gray.Width+x])
			if format == rimage.RGB8 {
				out.SetRGB(x, y,
					utils.SaturateUint8(v*gains[0]), utils.SaturateUint8(v*gains[1]), utils.SaturateUint8(v*gains[2]))
				continue
			}
			// RGGB mosaic
			c := 1
			switch {
			case y%2 == 0 && x%2 == 0:
				c = 0
			case y%2 == 1 && x%2 == 1:
				c = 2
			}
			out.Pix[y*gray.Width+x] = utils.SaturateUint8(v * gains[c])
		}
	}
	return out
}
