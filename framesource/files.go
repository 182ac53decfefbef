package framesource

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/camisp/logging"
	"go.viam.com/camisp/rimage"
	"go.viam.com/camisp/utils"
)

// FilesType is the name of the image file backend.
const FilesType = "files"

func init() {
	Register(FilesType, func(attributes utils.AttributeMap, logger logging.Logger) (Source, error) {
		conf, err := utils.TransformAttributeMap[*FilesConfig](attributes)
		if err != nil {
			return nil, err
		}
		return NewFileSource(conf, logger)
	})
}

// FilesConfig are the attributes of the image file backend.
type FilesConfig struct {
	// Pattern is a filepath.Match glob, or a list of them, naming the frames in lexical order.
	Pattern []string `json:"pattern"`
	// Raw decodes single channel files as Bayer mosaics instead of gray images.
	Raw bool `json:"raw,omitempty"`
	// Loop restarts from the first file instead of reporting ErrEndOfStream.
	Loop bool `json:"loop,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *FilesConfig) Validate() error {
	if len(conf.Pattern) == 0 {
		return errors.New("files frame source needs at least one pattern")
	}
	for _, p := range conf.Pattern {
		if _, err := filepath.Match(p, ""); err != nil {
			return errors.Wrapf(err, "bad pattern %q", p)
		}
	}
	return nil
}

type fileSource struct {
	conf   FilesConfig
	logger logging.Logger

	mu    sync.Mutex
	paths []string
	next  int
	open  bool
}

// NewFileSource returns a source reading image files in lexical order.
func NewFileSource(conf *FilesConfig, logger logging.Logger) (Source, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &fileSource{conf: *conf, logger: logger}, nil
}

func (fs *fileSource) Open(ctx context.Context) error {
	var paths []string
	for _, p := range fs.conf.Pattern {
		matches, err := filepath.Glob(p)
		if err != nil {
			return errors.Wrapf(err, "bad pattern %q", p)
		}
		paths = append(paths, matches...)
	}
	paths = lo.Uniq(paths)
	sort.Strings(paths)
	if len(paths) == 0 {
		return errors.Errorf("no files match %v", fs.conf.Pattern)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.paths = paths
	fs.next = 0
	fs.open = true
	fs.logger.Debugw("opened file frame source", "files", len(paths))
	return nil
}

func (fs *fileSource) ReadFrame(ctx context.Context) (*rimage.PixelBuffer, error) {
	fs.mu.Lock()
	if !fs.open {
		fs.mu.Unlock()
		return nil, errNotOpen
	}
	if fs.next >= len(fs.paths) {
		if !fs.conf.Loop {
			fs.mu.Unlock()
			return nil, ErrEndOfStream
		}
		fs.next = 0
	}
	path := fs.paths[fs.next]
	fs.next++
	fs.mu.Unlock()

	buf, err := rimage.ReadBufferFromFile(path, fs.conf.Raw)
	if err != nil {
		return nil, err
	}
	fs.logger.Debugw("read frame", "path", path, "width", buf.Width, "height", buf.Height)
	return buf, nil
}

func (fs *fileSource) Close(ctx context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.open = false
	fs.paths = nil
	return nil
}
