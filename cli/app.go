// Package cli contains the camisp command line: calibration from a batch of frames, single image
// processing, undistortion, board detection overlays and a streaming ISP run with config reload.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	flagConfig          = "config"
	flagDebug           = "debug"
	flagOutput          = "output"
	flagPlot            = "plot"
	flagMaxFrames       = "max-frames"
	flagRaw             = "raw"
	flagCalibration     = "calibration"
	flagColorMatrix     = "color-matrix"
	flagSaveColorMatrix = "save-color-matrix"
	flagGrayCard        = "gray-card"
	flagTimings         = "timings"
	flagNoWatch         = "no-watch"
)

var app = &cli.App{
	Name:            "camisp",
	Usage:           "calibrate cameras and run the image signal processing pipeline",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:        "calibrate",
			Usage:       "detect the chessboard in a batch of frames and solve the camera calibration",
			ArgsUsage:   "[image glob...]",
			Description: "frames come from the image globs when given, from the configured frame_source otherwise",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    flagOutput,
					Aliases: []string{"o"},
					Usage:   "save the calibration to `FILE` (.yaml, .yml or .json)",
				},
				&cli.StringFlag{
					Name:  flagPlot,
					Usage: "save a chart of the per view reprojection errors to `FILE` (.png, .svg, .pdf)",
				},
				&cli.IntFlag{
					Name:  flagMaxFrames,
					Usage: "stop after `N` frames, 0 reads the whole source",
				},
				&cli.BoolFlag{
					Name:  flagRaw,
					Usage: "read single channel image files as Bayer mosaics",
				},
			},
			Action: CalibrateAction,
		},
		{
			Name:      "process",
			Usage:     "run one image through the ISP pipeline",
			ArgsUsage: "<input> <output>",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  flagRaw,
					Usage: "read the input as a Bayer mosaic",
				},
				&cli.StringFlag{
					Name:  flagColorMatrix,
					Usage: "load the color correction matrix from `FILE`",
				},
				&cli.StringFlag{
					Name:  flagSaveColorMatrix,
					Usage: "save the color correction matrix in use to `FILE`",
				},
				&cli.StringFlag{
					Name:  flagGrayCard,
					Usage: "set the white balance gains from a gray reference image `FILE`",
				},
				&cli.BoolFlag{
					Name:  flagTimings,
					Usage: "print how long each stage took",
				},
			},
			Action: ProcessAction,
		},
		{
			Name:      "undistort",
			Usage:     "remove lens distortion from an image using a saved calibration",
			ArgsUsage: "<input> <output>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     flagCalibration,
					Usage:    "saved calibration `FILE`",
					Required: true,
				},
			},
			Action: UndistortAction,
		},
		{
			Name:      "detect",
			Usage:     "draw the detected chessboard corners over an image",
			ArgsUsage: "<input> <output>",
			Action:    DetectAction,
		},
		{
			Name:      "stream",
			Usage:     "process frames from the configured frame_source, reloading the config when it changes",
			ArgsUsage: "[image glob...]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    flagOutput,
					Aliases: []string{"o"},
					Usage:   "write processed frames into `DIR`",
				},
				&cli.IntFlag{
					Name:  flagMaxFrames,
					Usage: "stop after `N` frames, 0 runs until the source ends",
				},
				&cli.BoolFlag{
					Name:  flagRaw,
					Usage: "read single channel image files as Bayer mosaics",
				},
				&cli.BoolFlag{
					Name:  flagNoWatch,
					Usage: "do not reload the config file when it changes",
				},
			},
			Action: StreamAction,
		},
		{
			Name:   "schema",
			Usage:  "print the JSON schema of the config file",
			Action: SchemaAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
