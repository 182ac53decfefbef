package cli

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/camisp/calibration"
	"go.viam.com/camisp/framesource"
	"go.viam.com/camisp/isp"
	"go.viam.com/camisp/rimage"
	"go.viam.com/camisp/rimage/transform"
	"go.viam.com/camisp/utils"
)

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run(append([]string{"camisp"}, args...))
	return out.String(), errOut.String(), err
}

func testCamera(t *testing.T) *transform.PinholeCameraModel {
	t.Helper()
	distortion, err := transform.NewBrownConrady([]float64{-0.1, 0.05, 0, 0, 0})
	test.That(t, err, test.ShouldBeNil)
	return &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
			Width: 640, Height: 480, Fx: 600, Fy: 600, Ppx: 320, Ppy: 240,
		},
		Distortion: distortion,
	}
}

func writeBoard(t *testing.T, path string) {
	t.Helper()
	model := testCamera(t)
	img, err := framesource.RenderChessboard(model, framesource.DefaultBoard, framesource.DefaultPoses(model, framesource.DefaultBoard, 1)[0])
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rimage.WriteBufferToFile(path, img), test.ShouldBeNil)
}

func exists(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	test.That(t, err, test.ShouldBeNil)
}

func TestSchemaCommand(t *testing.T) {
	out, _, err := runApp(t, "schema")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "square_size_mm")
	test.That(t, out, test.ShouldContainSubstring, "frame_source")
}

func TestCalibrateCommand(t *testing.T) {
	dir := t.TempDir()
	calPath := filepath.Join(dir, "cal.yaml")
	plotPath := filepath.Join(dir, "errors.png")

	out, _, err := runApp(t, "-c", utils.ResolveFile("etc/camisp.json"), "calibrate", "-o", calPath, "--plot", plotPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "8 of 8 frames usable")
	test.That(t, out, test.ShouldContainSubstring, "rms error (px)")
	exists(t, plotPath)

	result, err := calibration.LoadResult(calPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.ImageSize, test.ShouldResemble, image.Point{640, 480})
	test.That(t, result.Intrinsics.Fx, test.ShouldBeBetween, 588., 612.)
	test.That(t, result.RMS, test.ShouldBeLessThan, 0.25)

	t.Run("from files", func(t *testing.T) {
		frames := filepath.Join(dir, "frames")
		test.That(t, os.Mkdir(frames, 0o750), test.ShouldBeNil)
		writeBoard(t, filepath.Join(frames, "board.png"))
		flat := rimage.NewPixelBuffer(640, 480, rimage.Gray8)
		test.That(t, rimage.WriteBufferToFile(filepath.Join(frames, "flat.png"), flat), test.ShouldBeNil)

		out, _, err := runApp(t, "calibrate", filepath.Join(frames, "*.png"))
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, out, test.ShouldContainSubstring, "frame 1 skipped")
		test.That(t, out, test.ShouldContainSubstring, "1 of 2 frames usable")
	})

	t.Run("no frames", func(t *testing.T) {
		_, _, err := runApp(t, "calibrate")
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "no frames")
	})
}

func TestProcessCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "raw.png")
	mosaic := rimage.NewPixelBuffer(64, 48, rimage.Gray8)
	for i := range mosaic.Pix {
		mosaic.Pix[i] = uint8(40 + i%160)
	}
	test.That(t, rimage.WriteBufferToFile(in, mosaic), test.ShouldBeNil)

	gray := rimage.NewPixelBuffer(16, 16, rimage.Gray8)
	for i := range gray.Pix {
		gray.Pix[i] = 64
	}
	grayPath := filepath.Join(dir, "gray.png")
	test.That(t, rimage.WriteBufferToFile(grayPath, gray), test.ShouldBeNil)

	matrixPath := filepath.Join(dir, "ccm.yaml")
	test.That(t, isp.SaveColorMatrix(matrixPath, [9]float64{1.1, -0.05, -0.05, 0, 1, 0, 0, 0, 1}), test.ShouldBeNil)
	savedPath := filepath.Join(dir, "saved.json")

	outPath := filepath.Join(dir, "out.png")
	out, _, err := runApp(t, "process", "--raw", "--timings",
		"--color-matrix", matrixPath, "--save-color-matrix", savedPath, "--gray-card", grayPath, in, outPath)
	test.That(t, err, test.ShouldBeNil)
	for _, stage := range []string{"demosaic", "white_balance", "color_correction", "gamma", "tone_mapping", "denoise", "sharpen"} {
		test.That(t, out, test.ShouldContainSubstring, stage)
	}
	test.That(t, out, test.ShouldNotContainSubstring, "lens_correction")
	test.That(t, out, test.ShouldContainSubstring, "white balance gain 0.5000")

	processed, err := rimage.ReadBufferFromFile(outPath, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, processed.Format, test.ShouldEqual, rimage.RGB8)
	test.That(t, processed.Size(), test.ShouldResemble, image.Point{64, 48})

	saved, err := isp.LoadColorMatrix(savedPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, saved[0], test.ShouldEqual, 1.1)

	_, _, err = runApp(t, "process", in)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "input and an output")

	_, _, err = runApp(t, "process", filepath.Join(dir, "missing.png"), outPath)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestUndistortCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "board.png")
	writeBoard(t, in)
	calPath := filepath.Join(dir, "cal.json")
	test.That(t, calibration.SaveResult(calPath, &calibration.Result{
		Intrinsics: *testCamera(t).PinholeCameraIntrinsics,
		Distortion: []float64{-0.1, 0.05, 0, 0, 0},
		ImageSize:  image.Point{640, 480},
	}), test.ShouldBeNil)

	outPath := filepath.Join(dir, "undistorted.png")
	_, _, err := runApp(t, "undistort", "--calibration", calPath, in, outPath)
	test.That(t, err, test.ShouldBeNil)
	undistorted, err := rimage.ReadBufferFromFile(outPath, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, undistorted.Size(), test.ShouldResemble, image.Point{640, 480})

	_, _, err = runApp(t, "undistort", in, outPath)
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = runApp(t, "undistort", "--calibration", filepath.Join(dir, "missing.yaml"), in, outPath)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDetectCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "board.png")
	writeBoard(t, in)
	outPath := filepath.Join(dir, "overlay.png")

	out, _, err := runApp(t, "detect", in, outPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "found 9x6 board")
	overlay, err := rimage.ReadBufferFromFile(outPath, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, overlay.Format, test.ShouldEqual, rimage.RGB8)

	flatPath := filepath.Join(dir, "flat.png")
	test.That(t, rimage.WriteBufferToFile(flatPath, rimage.NewPixelBuffer(64, 48, rimage.Gray8)), test.ShouldBeNil)
	out, _, err = runApp(t, "detect", flatPath, outPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "no 9x6 board")
}

func TestStreamCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "camisp.json")
	test.That(t, os.WriteFile(cfgPath, []byte(`{
		"isp": {"denoise_enabled": false},
		"frame_source": {"type": "synthetic", "attributes": {
			"intrinsic_parameters": {"width_px": 160, "height_px": 120, "fx": 150, "fy": 150, "ppx": 80, "ppy": 60},
			"columns": 4, "rows": 3, "square_size_mm": 20, "format": "raw8", "tint": [1.2, 1, 0.8],
			"supersample": 1
		}}
	}`), 0o600), test.ShouldBeNil)

	outDir := filepath.Join(dir, "frames")
	out, errOut, err := runApp(t, "-c", cfgPath, "stream", "-o", outDir, "--max-frames", "3")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "processed 3 frames")
	test.That(t, strings.Contains(errOut, "ERROR"), test.ShouldBeFalse)

	entries, err := os.ReadDir(outDir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, entries, test.ShouldHaveLength, 3)
	frame, err := rimage.ReadBufferFromFile(filepath.Join(outDir, "frame_00000.png"), false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Format, test.ShouldEqual, rimage.RGB8)
	test.That(t, frame.Size(), test.ShouldResemble, image.Point{160, 120})

	// without a frame limit the stream ends with the source
	out, _, err = runApp(t, "-c", cfgPath, "stream", "--no-watch")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "processed 8 frames")
}
