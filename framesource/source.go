// Package framesource supplies frames to the calibration and ISP code. Backends register a
// constructor under a name and are chosen by the frame_source config section.
package framesource

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/camisp/logging"
	"go.viam.com/camisp/rimage"
	"go.viam.com/camisp/utils"
)

// ErrEndOfStream is returned by ReadFrame once a finite source has no frames left.
var ErrEndOfStream = errors.New("end of frame stream")

// Source produces pixel buffers one at a time.
type Source interface {
	// Open prepares the source; ReadFrame fails until it is called.
	Open(ctx context.Context) error
	ReadFrame(ctx context.Context) (*rimage.PixelBuffer, error)
	Close(ctx context.Context) error
}

// Config selects a backend by type and carries its attributes.
type Config struct {
	Type       string             `json:"type"`
	Attributes utils.AttributeMap `json:"attributes,omitempty"`
}

// Constructor builds a backend from its attributes.
type Constructor func(attributes utils.AttributeMap, logger logging.Logger) (Source, error)

var (
	registryMu   sync.RWMutex
	constructors = map[string]Constructor{}
)

// Register makes a backend available under name. Registering a name twice panics.
func Register(name string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := constructors[name]; ok {
		panic(errors.Errorf("frame source %q already registered", name))
	}
	constructors[name] = constructor
}

// RegisteredTypes returns the sorted backend names.
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs the backend named by conf.Type. The returned source is not yet open.
func New(conf Config, logger logging.Logger) (Source, error) {
	registryMu.RLock()
	constructor, ok := constructors[conf.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown frame source type %q, expected one of %v", conf.Type, RegisteredTypes())
	}
	if logger == nil {
		logger = logging.NewBlankLogger("framesource")
	}
	src, err := constructor(conf.Attributes, logger.Sublogger(conf.Type))
	if err != nil {
		return nil, errors.Wrapf(err, "creating %q frame source", conf.Type)
	}
	return src, nil
}

// ReadAll opens src, reads frames until ErrEndOfStream or max frames (when max > 0) and closes it.
func ReadAll(ctx context.Context, src Source, max int) (frames []*rimage.PixelBuffer, err error) {
	if err := src.Open(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := src.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	for max <= 0 || len(frames) < max {
		if err := ctx.Err(); err != nil {
			return frames, err
		}
		frame, err := src.ReadFrame(ctx)
		if errors.Is(err, ErrEndOfStream) {
			break
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

var errNotOpen = errors.New("frame source is not open")
