package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"go.viam.com/camisp/calibration"
	"go.viam.com/camisp/framesource"
)

// CalibrateAction is the corresponding action for 'calibrate'.
func CalibrateAction(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	src, err := frameSource(c, cfg, logger)
	if err != nil {
		return err
	}
	frames, err := framesource.ReadAll(c.Context, src, c.Int(flagMaxFrames))
	if err != nil {
		return err
	}

	session := calibration.NewSession(logger)
	session.DetectionConfig = cfg.Detection
	for i, frame := range frames {
		if err := session.AddCalibrationImage(frame, cfg.Pattern.Size(), cfg.Pattern.SquareSize); err != nil {
			warningf(c.App.Writer, "frame %d skipped: %v", i, err)
			continue
		}
		printf(c.App.Writer, "frame %d: %s", i, color.GreenString("board found"))
	}
	infof(c.App.Writer, "%d of %d frames usable", session.NumViews(), len(frames))

	if err := session.Calibrate(cfg.Calibration); err != nil {
		return err
	}
	result := session.Result()
	if err := printResult(c.App.Writer, session.ID().String(), result); err != nil {
		return err
	}

	if path := c.String(flagOutput); path != "" {
		if err := session.SaveCalibration(path); err != nil {
			return err
		}
		infof(c.App.Writer, "calibration saved to %s", path)
	}
	if path := c.String(flagPlot); path != "" {
		if err := calibration.PlotViewErrors(result, path); err != nil {
			return err
		}
		infof(c.App.Writer, "error chart saved to %s", path)
	}
	return nil
}

func printResult(w io.Writer, id string, result *calibration.Result) error {
	summary, err := calibration.SummarizeViewErrors(result)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetTitle("Calibration %s", id)
	t.AppendHeader(table.Row{"Parameter", "Value"})
	t.AppendRows([]table.Row{
		{"image size", fmt.Sprintf("%dx%d", result.ImageSize.X, result.ImageSize.Y)},
		{"fx, fy", fmt.Sprintf("%.3f, %.3f", result.Intrinsics.Fx, result.Intrinsics.Fy)},
		{"ppx, ppy", fmt.Sprintf("%.3f, %.3f", result.Intrinsics.Ppx, result.Intrinsics.Ppy)},
		{"distortion", formatFloats(result.Distortion, 5)},
		{"rms error (px)", fmt.Sprintf("%.4f", result.RMS)},
		{"iterations", result.Iterations},
	})
	printf(w, "%s", t.Render())

	views := table.NewWriter()
	views.AppendHeader(table.Row{"View", "RMS error (px)"})
	views.AppendRows(lo.Map(result.PerViewErrors, func(e float64, i int) table.Row {
		label := fmt.Sprintf("%.4f", e)
		if i == summary.Worst {
			label = color.YellowString(label)
		}
		return table.Row{i, label}
	}))
	views.AppendFooter(table.Row{"mean / median", fmt.Sprintf("%.4f / %.4f", summary.Mean, summary.Median)})
	printf(w, "%s", views.Render())
	return nil
}
