package config

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/camisp/calibration"
	"go.viam.com/camisp/framesource"
	"go.viam.com/camisp/isp"
	"go.viam.com/camisp/logging"
	"go.viam.com/camisp/rimage/detection/chessboard"
	"go.viam.com/camisp/rimage/transform"
	"go.viam.com/camisp/utils"
)

func writeConfig(t *testing.T, path, contents string) {
	t.Helper()
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	test.That(t, cfg.Pattern.Size(), test.ShouldResemble, image.Point{9, 6})
	test.That(t, cfg.Level(), test.ShouldEqual, logging.INFO)
	test.That(t, cfg.Calibration, test.ShouldResemble, calibration.DefaultFlags())
	test.That(t, *cfg.Detection, test.ShouldResemble, chessboard.DefaultDetectionConf)
}

func TestFromReader(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("absent keys keep defaults", func(t *testing.T) {
		cfg, err := FromReader("camisp.json", strings.NewReader(`{
			"log_level": "debug",
			"pattern": {"columns": 7},
			"calibration": {"rational_model": true, "criteria": {"max_iterations": 50}},
			"isp": {"gamma": 1.8, "demosaic_method": "bilinear", "color_matrix": [1.2, -0.1, -0.1, 0, 1, 0, 0, 0, 1]},
			"detection": {"erosions": [3]},
			"frame_source": {"type": "files", "attributes": {"pattern": ["*.png"]}}
		}`), logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.ConfigFilePath, test.ShouldEqual, "camisp.json")
		test.That(t, cfg.Level(), test.ShouldEqual, logging.DEBUG)
		test.That(t, cfg.Pattern, test.ShouldResemble, PatternConfig{Columns: 7, Rows: 6, SquareSize: 25})

		test.That(t, cfg.Calibration.RationalModel, test.ShouldBeTrue)
		test.That(t, cfg.Calibration.ZeroTangentDist, test.ShouldBeTrue)
		test.That(t, cfg.Calibration.Criteria.MaxIterations, test.ShouldEqual, 50)
		test.That(t, cfg.Calibration.Criteria.Epsilon, test.ShouldEqual, calibration.DefaultTermCriteria.Epsilon)

		test.That(t, cfg.ISP.Gamma, test.ShouldEqual, 1.8)
		test.That(t, cfg.ISP.DemosaicMethod, test.ShouldEqual, isp.DemosaicBilinear)
		test.That(t, cfg.ISP.ColorMatrix[0], test.ShouldEqual, 1.2)
		test.That(t, cfg.ISP.ColorMatrix[4], test.ShouldEqual, 1.)
		test.That(t, cfg.ISP.AutoWB, test.ShouldBeTrue)
		want := isp.DefaultParameters()
		want.Gamma = 1.8
		test.That(t, cfg.ISP.GammaLUT(), test.ShouldResemble, want.GammaLUT())

		test.That(t, cfg.Detection.Erosions, test.ShouldResemble, []int{3})
		test.That(t, cfg.Detection.MinContrast, test.ShouldEqual, chessboard.DefaultDetectionConf.MinContrast)
		test.That(t, chessboard.DefaultDetectionConf.Erosions, test.ShouldResemble, []int{1, 2})

		test.That(t, cfg.FrameSource.Type, test.ShouldEqual, framesource.FilesType)
		test.That(t, cfg.FrameSource.Attributes.Has("pattern"), test.ShouldBeTrue)
	})

	t.Run("empty object is the default", func(t *testing.T) {
		cfg, err := FromReader("", strings.NewReader(`{}`), nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ChangedSections(cfg, Default()), test.ShouldBeEmpty)
	})

	for _, tc := range []struct {
		name, input, errContains string
	}{
		{"bad json", `{"pattern":`, "decode"},
		{"unknown key", `{"patern": {"columns": 7}}`, "unknown attributes"},
		{"unknown nested key", `{"isp": {"gama": 2}}`, "unknown attributes"},
		{"wrong type", `{"pattern": {"columns": "seven"}}`, "columns"},
		{"small pattern", `{"pattern": {"columns": 1}}`, "pattern"},
		{"square size", `{"pattern": {"square_size_mm": 0}}`, "square_size_mm"},
		{"log level", `{"log_level": "loud"}`, "log level"},
		{"criteria", `{"calibration": {"criteria": {"max_iterations": -1}}}`, "max_iterations"},
		{"isp", `{"isp": {"gamma": 0}}`, "isp"},
		{"bayer pattern", `{"isp": {"bayer_pattern": "RGBG"}}`, "isp"},
		{"detection", `{"detection": {"erosions": []}}`, "detection"},
		{"frame source", `{"frame_source": {"type": "usb"}}`, "usb"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader("camisp.json", strings.NewReader(tc.input), logger)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errContains)
		})
	}
}

func TestRead(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "camisp.json")

	t.Setenv("CAMISP_TEST_GAMMA", "2.4")
	t.Setenv("CAMISP_TEST_LEVEL", "warn")
	writeConfig(t, path, `{"log_level": "${CAMISP_TEST_LEVEL}", "isp": {"gamma": ${CAMISP_TEST_GAMMA}}}`)
	cfg, err := Read(path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ISP.Gamma, test.ShouldEqual, 2.4)
	test.That(t, cfg.Level(), test.ShouldEqual, logging.WARN)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)

	_, err = Read(filepath.Join(dir, "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReadExample(t *testing.T) {
	cfg, err := Read(utils.ResolveFile("etc/camisp.json"), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.FrameSource.Type, test.ShouldEqual, framesource.SyntheticType)
	test.That(t, cfg.Calibration, test.ShouldResemble, calibration.DefaultFlags())
	test.That(t, ChangedSections(Default(), cfg), test.ShouldResemble, []string{"frame_source"})

	src, err := framesource.New(*cfg.FrameSource, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, src, test.ShouldNotBeNil)
}

func TestResolvePath(t *testing.T) {
	cfg := Default()
	test.That(t, cfg.ResolvePath("cal.yaml"), test.ShouldEqual, "cal.yaml")

	cfg.ConfigFilePath = filepath.Join("etc", "camisp", "camisp.json")
	test.That(t, cfg.ResolvePath("cal.yaml"), test.ShouldEqual, filepath.Join("etc", "camisp", "cal.yaml"))
	abs := filepath.Join(t.TempDir(), "cal.yaml")
	test.That(t, cfg.ResolvePath(abs), test.ShouldEqual, abs)
	test.That(t, cfg.ResolvePath(""), test.ShouldEqual, "")
}

func TestISPParameters(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.ConfigFilePath = filepath.Join(dir, "camisp.json")
	cfg.ISP.Gamma = 1.5

	params, err := cfg.ISPParameters()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params.Gamma, test.ShouldEqual, 1.5)
	test.That(t, params.LensCorrection, test.ShouldBeFalse)
	params.Gamma = 3
	test.That(t, cfg.ISP.Gamma, test.ShouldEqual, 1.5)

	result := &calibration.Result{
		Intrinsics: transform.PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 600, Fy: 600, Ppx: 320, Ppy: 240},
		Distortion: []float64{-0.1, 0.05, 0, 0, 0},
		ImageSize:  image.Point{640, 480},
	}
	test.That(t, calibration.SaveResult(filepath.Join(dir, "cal.yaml"), result), test.ShouldBeNil)
	cfg.CalibrationFile = "cal.yaml"
	params, err = cfg.ISPParameters()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params.LensCorrection, test.ShouldBeTrue)
	test.That(t, params.Lens.CameraMatrix[0], test.ShouldEqual, 600.)
	test.That(t, params.Lens.Distortion, test.ShouldResemble, result.Distortion)

	cfg.CalibrationFile = "missing.yaml"
	_, err = cfg.ISPParameters()
	test.That(t, err, test.ShouldNotBeNil)

	cfg.CalibrationFile = ""
	cfg.ISP = nil
	params, err = cfg.ISPParameters()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params.Gamma, test.ShouldEqual, isp.DefaultParameters().Gamma)
}

func TestChangedSections(t *testing.T) {
	left, right := Default(), Default()
	test.That(t, ChangedSections(left, right), test.ShouldBeEmpty)

	// a cached gamma table is not a change
	right.ISP.GammaLUT()
	test.That(t, ChangedSections(left, right), test.ShouldBeEmpty)

	right.ISP.Gamma = 1.9
	right.Pattern.Rows = 7
	right.FrameSource = &framesource.Config{Type: framesource.FilesType}
	test.That(t, ChangedSections(left, right), test.ShouldResemble, []string{"pattern", "isp", "frame_source"})
}

func TestSchema(t *testing.T) {
	data, err := SchemaJSON()
	test.That(t, err, test.ShouldBeNil)
	for _, key := range []string{"square_size_mm", "rational_model", "demosaic_method", "frame_source", "adaptive_block_fractions"} {
		test.That(t, string(data), test.ShouldContainSubstring, key)
	}
	test.That(t, string(data), test.ShouldNotContainSubstring, "ConfigFilePath")
}

func TestWatch(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "camisp.json")
	writeConfig(t, path, `{"isp": {"gamma": 2.2}}`)

	changes := make(chan *Config, 10)
	w, err := Watch(context.Background(), path, logger, func(cfg *Config) {
		changes <- cfg
	})
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, w.Close(), test.ShouldBeNil)
	}()

	next := func() *Config {
		select {
		case cfg := <-changes:
			return cfg
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for config reload")
			return nil
		}
	}

	writeConfig(t, path, `{"isp": {"gamma": 1.8}}`)
	test.That(t, next().ISP.Gamma, test.ShouldEqual, 1.8)

	// an invalid version is skipped and the next valid one still arrives
	writeConfig(t, path, `{"isp": {"gamma": -1}}`)
	time.Sleep(3 * DefaultDebounce)
	writeConfig(t, filepath.Join(dir, "other.json"), `{}`)
	writeConfig(t, path, `{"isp": {"gamma": 2.6}}`)
	test.That(t, next().ISP.Gamma, test.ShouldEqual, 2.6)

	test.That(t, w.Close(), test.ShouldBeNil)
	writeConfig(t, path, `{"isp": {"gamma": 1.2}}`)
	time.Sleep(3 * DefaultDebounce)
	test.That(t, changes, test.ShouldBeEmpty)
}

func TestWatchMissingDirectory(t *testing.T) {
	_, err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "camisp.json"), nil, func(*Config) {})
	test.That(t, err, test.ShouldNotBeNil)
}
