package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/camisp/config"
	"go.viam.com/camisp/framesource"
	"go.viam.com/camisp/logging"
	"go.viam.com/camisp/rimage"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// infof prints a message prefixed with a bold cyan "Info: ".
func infof(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	color.New(color.Bold, color.FgCyan).Fprint(w, "Info: ")
	printf(w, format, a...)
}

// warningf prints a message prefixed with a bold yellow "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	color.New(color.Bold, color.FgYellow).Fprint(w, "Warning: ")
	printf(w, format, a...)
}

// loadConfig reads the --config file, or the defaults when none is given, and returns a logger
// writing to the error writer at the configured level.
func loadConfig(c *cli.Context) (*config.Config, logging.Logger, error) {
	logger := logging.NewBlankLogger("camisp")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))

	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path, logger); err != nil {
			return nil, nil, err
		}
	}
	logger.SetLevel(logLevel(c, cfg))
	return cfg, logger, nil
}

func logLevel(c *cli.Context, cfg *config.Config) logging.Level {
	if c.Bool(flagDebug) {
		return logging.DEBUG
	}
	return cfg.Level()
}

// frameSource returns a file source over the command arguments when there are any and the
// configured frame source otherwise.
func frameSource(c *cli.Context, cfg *config.Config, logger logging.Logger) (framesource.Source, error) {
	if c.NArg() > 0 {
		return framesource.NewFileSource(&framesource.FilesConfig{
			Pattern: c.Args().Slice(),
			Raw:     c.Bool(flagRaw),
		}, logger.Sublogger(framesource.FilesType))
	}
	if cfg.FrameSource == nil {
		return nil, errors.New("no frames to read: pass image files or set frame_source in the config")
	}
	return framesource.New(*cfg.FrameSource, logger)
}

// inputOutput returns the two positional arguments of the single image commands.
func inputOutput(c *cli.Context) (string, string, error) {
	if c.NArg() != 2 {
		return "", "", errors.Errorf("%s needs an input and an output path, got %d arguments", c.Command.Name, c.NArg())
	}
	return c.Args().Get(0), c.Args().Get(1), nil
}

func readImage(path string, raw bool) (*rimage.PixelBuffer, error) {
	img, err := rimage.ReadBufferFromFile(path, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", path)
	}
	return img, nil
}

func formatFloats(values []float64, precision int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%.*f", precision, v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
