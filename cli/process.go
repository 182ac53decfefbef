package cli

import (
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/camisp/calibration"
	"go.viam.com/camisp/isp"
	"go.viam.com/camisp/rimage"
	"go.viam.com/camisp/rimage/detection/chessboard"
)

// ProcessAction is the corresponding action for 'process'.
func ProcessAction(c *cli.Context) error {
	in, out, err := inputOutput(c)
	if err != nil {
		return err
	}
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	img, err := readImage(in, c.Bool(flagRaw))
	if err != nil {
		return err
	}

	params, err := cfg.ISPParameters()
	if err != nil {
		return err
	}
	if path := c.String(flagColorMatrix); path != "" {
		if params.ColorMatrix, err = isp.LoadColorMatrix(path); err != nil {
			return err
		}
	}
	if path := c.String(flagGrayCard); path != "" {
		gray, err := readImage(path, false)
		if err != nil {
			return err
		}
		if err := isp.CalibrateWhiteBalance(params, gray); err != nil {
			return err
		}
		params.AutoWB = false
		infof(c.App.Writer, "white balance gain %.4f from %s", params.WBGreen, path)
	}
	if path := c.String(flagSaveColorMatrix); path != "" {
		if err := isp.SaveColorMatrix(path, params.ColorMatrix); err != nil {
			return err
		}
	}

	pipeline := isp.NewPipeline(logger.Sublogger("isp"))
	timings := table.NewWriter()
	timings.AppendHeader(table.Row{"Stage", "Duration"})
	var total time.Duration
	pipeline.SetStageHook(func(stage string, elapsed time.Duration) {
		timings.AppendRow(table.Row{stage, elapsed.Round(time.Microsecond)})
		total += elapsed
	})
	processed, err := pipeline.Process(img, params)
	if err != nil {
		return err
	}
	if err := rimage.WriteBufferToFile(out, processed); err != nil {
		return err
	}
	if c.Bool(flagTimings) {
		timings.AppendFooter(table.Row{"total", total.Round(time.Microsecond)})
		printf(c.App.Writer, "%s", timings.Render())
	}
	infof(c.App.Writer, "%s -> %s (%dx%d %v)", in, out, processed.Width, processed.Height, processed.Format)
	return nil
}

// UndistortAction is the corresponding action for 'undistort'.
func UndistortAction(c *cli.Context) error {
	in, out, err := inputOutput(c)
	if err != nil {
		return err
	}
	_, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	session := calibration.NewSession(logger)
	if err := session.LoadCalibration(c.String(flagCalibration)); err != nil {
		return err
	}
	img, err := readImage(in, false)
	if err != nil {
		return err
	}
	undistorted, err := session.Undistort(img)
	if err != nil {
		return err
	}
	if err := rimage.WriteBufferToFile(out, undistorted); err != nil {
		return err
	}
	infof(c.App.Writer, "%s -> %s", in, out)
	return nil
}

// DetectAction is the corresponding action for 'detect'.
func DetectAction(c *cli.Context) error {
	in, out, err := inputOutput(c)
	if err != nil {
		return err
	}
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	img, err := readImage(in, false)
	if err != nil {
		return err
	}
	pattern := cfg.Pattern.Size()
	corners, err := chessboard.FindChessboardCorners(img, pattern, cfg.Detection, logger)
	found := err == nil
	if err != nil && !errors.Is(err, chessboard.ErrPatternNotFound) {
		return err
	}
	if err := rimage.WriteBufferToFile(out, chessboard.DrawCorners(img, pattern, corners, found)); err != nil {
		return err
	}
	if found {
		printf(c.App.Writer, "%s %dx%d board in %s", color.GreenString("found"), pattern.X, pattern.Y, in)
	} else {
		warningf(c.App.Writer, "no %dx%d board in %s", pattern.X, pattern.Y, in)
	}
	return nil
}
