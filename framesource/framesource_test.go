package framesource

import (
	"context"
	"fmt"
	"image"
	"math"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/camisp/logging"
	"go.viam.com/camisp/rimage"
	"go.viam.com/camisp/rimage/transform"
	"go.viam.com/camisp/utils"
)

func testModel() *transform.PinholeCameraModel {
	return &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
			Width: 320, Height: 240, Fx: 300, Fy: 300, Ppx: 160, Ppy: 120,
		},
		Distortion: &transform.BrownConrady{Length: transform.DistortionBasic},
	}
}

func TestRegistry(t *testing.T) {
	types := RegisteredTypes()
	test.That(t, types, test.ShouldContain, FilesType)
	test.That(t, types, test.ShouldContain, SyntheticType)

	_, err := New(Config{Type: "v4l2"}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown frame source type")

	test.That(t, func() { Register(FilesType, nil) }, test.ShouldPanic)
}

func TestFileSource(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		buf := rimage.NewPixelBuffer(8, 6, rimage.Gray8)
		buf.Pix[0] = uint8(10 * i)
		test.That(t, rimage.WriteBufferToFile(filepath.Join(dir, fmt.Sprintf("frame_%02d.png", i)), buf), test.ShouldBeNil)
	}

	_, err := New(Config{Type: FilesType, Attributes: utils.AttributeMap{}}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	src, err := New(Config{
		Type:       FilesType,
		Attributes: utils.AttributeMap{"pattern": []interface{}{filepath.Join(dir, "*.png")}},
	}, logger)
	test.That(t, err, test.ShouldBeNil)

	_, err = src.ReadFrame(context.Background())
	test.That(t, err, test.ShouldNotBeNil)

	frames, err := ReadAll(context.Background(), src, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(frames), test.ShouldEqual, 3)
	for i, f := range frames {
		test.That(t, f.Format, test.ShouldEqual, rimage.Gray8)
		test.That(t, f.Pix[0], test.ShouldEqual, uint8(10*i))
	}

	t.Run("loop", func(t *testing.T) {
		src, err := NewFileSource(&FilesConfig{Pattern: []string{filepath.Join(dir, "*.png")}, Loop: true}, logger)
		test.That(t, err, test.ShouldBeNil)
		frames, err := ReadAll(context.Background(), src, 5)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, len(frames), test.ShouldEqual, 5)
		test.That(t, frames[3].Pix[0], test.ShouldEqual, uint8(0))
	})

	t.Run("no matches", func(t *testing.T) {
		src, err := NewFileSource(&FilesConfig{Pattern: []string{filepath.Join(dir, "*.qoi")}}, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, src.Open(context.Background()), test.ShouldNotBeNil)
	})
}

func TestRenderChessboard(t *testing.T) {
	model := testModel()
	board := Board{Pattern: image.Point{5, 4}, SquareSize: 20, Dark: 30, Light: 230, Background: 100}
	poses := DefaultPoses(model, board, 4)
	test.That(t, len(poses), test.ShouldEqual, 4)

	for _, pose := range poses {
		img, err := RenderChessboard(model, board, pose)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img.Size(), test.ShouldResemble, image.Point{320, 240})

		corners := BoardCorners(model, board, pose)
		test.That(t, len(corners), test.ShouldEqual, 20)
		for _, c := range corners {
			test.That(t, c.X, test.ShouldBeBetween, 0, 320)
			test.That(t, c.Y, test.ShouldBeBetween, 0, 240)
		}

		// the corner square is dark and its neighbour along the first row is light
		half := board.SquareSize / 2
		outside := model.ProjectPoints([]r3.Vector{{X: -half, Y: -half}, {X: half, Y: -half}}, pose.RVec(), pose.TVec())
		test.That(t, img.At(int(math.Round(outside[0].X)), int(math.Round(outside[0].Y)), 0), test.ShouldBeLessThan, 60)
		test.That(t, img.At(int(math.Round(outside[1].X)), int(math.Round(outside[1].Y)), 0), test.ShouldBeGreaterThan, 200)
	}

	_, err := RenderChessboard(model, Board{Pattern: image.Point{1, 4}, SquareSize: 20}, poses[0])
	test.That(t, errors.Is(err, rimage.ErrInputInvalid), test.ShouldBeTrue)
}

func TestSyntheticSource(t *testing.T) {
	logger := logging.NewTestLogger(t)
	attrs := utils.AttributeMap{
		"intrinsic_parameters": map[string]interface{}{
			"width_px": 320.0, "height_px": 240.0, "fx": 300.0, "fy": 300.0, "ppx": 160.0, "ppy": 120.0,
		},
		"distortion_parameters": []interface{}{-0.1, 0.02, 0.0, 0.0, 0.0},
		"columns":               5.0,
		"rows":                  4.0,
		"square_size_mm":        20.0,
		"supersample":           2.0,
		"format":                "raw8",
		"tint":                  []interface{}{2.0, 1.0, 0.5},
		"noise":                 1.0,
		"seed":                  7.0,
	}
	src, err := New(Config{Type: SyntheticType, Attributes: attrs}, logger)
	test.That(t, err, test.ShouldBeNil)
	frames, err := ReadAll(context.Background(), src, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(frames), test.ShouldEqual, 8)
	for _, f := range frames {
		test.That(t, f.Format, test.ShouldEqual, rimage.Raw8)
		test.That(t, f.Validate(), test.ShouldBeNil)
	}

	attrs["columns"] = 1.0
	_, err = New(Config{Type: SyntheticType, Attributes: attrs}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	delete(attrs, "columns")
	attrs["bogus"] = true
	_, err = New(Config{Type: SyntheticType, Attributes: attrs}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown attributes")
}

func TestColorize(t *testing.T) {
	gray := rimage.NewPixelBuffer(2, 2, rimage.Gray8)
	for i := range gray.Pix {
		gray.Pix[i] = 100
	}
	raw := colorize(gray, rimage.Raw8, []float64{2, 1, 0.5})
	test.That(t, raw.Pix, test.ShouldResemble, []byte{200, 100, 100, 50})

	rgb := colorize(gray, rimage.RGB8, []float64{2, 1, 0.5})
	r, g, b := rgb.RGBAt(1, 1)
	test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{200, 100, 50})

	test.That(t, colorize(gray, rimage.Gray8, nil), test.ShouldEqual, gray)
}
