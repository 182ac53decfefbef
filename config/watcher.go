package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/camisp/logging"
)

// DefaultDebounce is how long a config file must stay quiet before it is reloaded.
var DefaultDebounce = 100 * time.Millisecond

// A Watcher reloads a config file whenever it changes.
type Watcher struct {
	path     string
	logger   logging.Logger
	onChange func(*Config)

	watcher                 *fsnotify.Watcher
	debounced               func(f func())
	cancelCtx               context.Context
	cancel                  func()
	activeBackgroundWorkers sync.WaitGroup
	closeOnce               sync.Once
	closeErr                error
}

// Watch calls onChange with every valid version of the config at path written after the call, until
// ctx is done or the watcher is closed. Bursts of writes are coalesced. A version that fails to
// read or validate is logged and skipped.
func Watch(ctx context.Context, path string, logger logging.Logger, onChange func(*Config)) (*Watcher, error) {
	if logger == nil {
		logger = logging.NewBlankLogger("config")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// the directory is watched since editors and atomic writers replace the file
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		return nil, multierr.Combine(err, fsWatcher.Close())
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		path:      abs,
		logger:    logger,
		onChange:  onChange,
		watcher:   fsWatcher,
		debounced: debounce.New(DefaultDebounce),
		cancelCtx: cancelCtx,
		cancel:    cancel,
	}
	w.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(w.run, w.activeBackgroundWorkers.Done)
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.cancelCtx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.debounced(w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	if w.cancelCtx.Err() != nil {
		return
	}
	cfg, err := Read(w.path, w.logger)
	if err != nil {
		w.logger.Warnw("ignoring config change", "path", w.path, "error", err)
		return
	}
	w.logger.Infow("config reloaded", "path", w.path)
	w.onChange(cfg)
}

// Close stops watching. Reloads already in flight may still complete.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.cancel()
		w.closeErr = w.watcher.Close()
		w.activeBackgroundWorkers.Wait()
	})
	return w.closeErr
}
