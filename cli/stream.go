package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/camisp/config"
	"go.viam.com/camisp/framesource"
	"go.viam.com/camisp/isp"
	"go.viam.com/camisp/logging"
	"go.viam.com/camisp/rimage"
)

// liveParams holds the ISP parameters of a stream; the config watcher swaps them between frames.
type liveParams struct {
	mu     sync.Mutex
	cfg    *config.Config
	params *isp.Parameters
}

func (lp *liveParams) get() *isp.Parameters {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.params
}

func (lp *liveParams) update(cfg *config.Config, logger logging.Logger) {
	params, err := cfg.ISPParameters()
	if err != nil {
		logger.Warnw("keeping previous ISP parameters", "error", err)
		return
	}
	lp.mu.Lock()
	changed := config.ChangedSections(lp.cfg, cfg)
	lp.cfg, lp.params = cfg, params
	lp.mu.Unlock()
	logger.Infow("applied config change", "sections", changed)
}

// StreamAction is the corresponding action for 'stream'.
func StreamAction(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	src, err := frameSource(c, cfg, logger)
	if err != nil {
		return err
	}
	params, err := cfg.ISPParameters()
	if err != nil {
		return err
	}
	live := &liveParams{cfg: cfg, params: params}

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt)
	defer cancel()

	if path := c.String(flagConfig); path != "" && !c.Bool(flagNoWatch) {
		watcher, err := config.Watch(ctx, path, logger.Sublogger("config"), func(newCfg *config.Config) {
			logger.SetLevel(logLevel(c, newCfg))
			live.update(newCfg, logger)
		})
		if err != nil {
			return err
		}
		defer goutils.UncheckedErrorFunc(watcher.Close)
	}

	outDir := c.String(flagOutput)
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o750); err != nil {
			return errors.Wrapf(err, "creating %q", outDir)
		}
	}

	count, err := runStream(ctx, src, isp.NewPipeline(logger.Sublogger("isp")), live, outDir, c.Int(flagMaxFrames), logger)
	if err != nil {
		return err
	}
	infof(c.App.Writer, "processed %d frames", count)
	return nil
}

func runStream(
	ctx context.Context,
	src framesource.Source,
	pipeline *isp.Pipeline,
	live *liveParams,
	outDir string,
	maxFrames int,
	logger logging.Logger,
) (count int, err error) {
	if err := src.Open(ctx); err != nil {
		return 0, err
	}
	defer func() {
		err = multierr.Combine(err, src.Close(ctx))
	}()

	for maxFrames <= 0 || count < maxFrames {
		if ctx.Err() != nil {
			return count, nil
		}
		frame, err := src.ReadFrame(ctx)
		if errors.Is(err, framesource.ErrEndOfStream) {
			return count, nil
		}
		if err != nil {
			return count, err
		}
		processed, err := pipeline.Process(frame, live.get())
		if err != nil {
			return count, errors.Wrapf(err, "frame %d", count)
		}
		if outDir != "" {
			path := filepath.Join(outDir, fmt.Sprintf("frame_%05d.png", count))
			if err := rimage.WriteBufferToFile(path, processed); err != nil {
				return count, err
			}
		}
		logger.Debugw("frame processed", "index", count)
		count++
	}
	return count, nil
}
