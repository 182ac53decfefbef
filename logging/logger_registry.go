package logging

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// registry tracks named subloggers so their levels can be changed after construction, e.g. on a
// config reload.
type registry struct {
	mu      sync.RWMutex
	loggers map[string]Logger
}

var globalRegistry = newRegistry()

func newRegistry() *registry {
	return &registry{
		loggers: make(map[string]Logger),
	}
}

func (lr *registry) registerLogger(name string, logger Logger) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.loggers[name] = logger
}

func (lr *registry) loggerNamed(name string) (logger Logger, ok bool) {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	logger, ok = lr.loggers[name]
	return
}

func (lr *registry) updateLoggerLevel(name string, level Level) error {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	logger, ok := lr.loggers[name]
	if !ok {
		return errors.Errorf("logger named %s not recognized", name)
	}
	logger.SetLevel(level)
	return nil
}

func (lr *registry) setAll(level Level) {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	for _, logger := range lr.loggers {
		logger.SetLevel(level)
	}
}

func (lr *registry) names() []string {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	names := make([]string, 0, len(lr.loggers))
	for name := range lr.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoggerNamed returns a registered sublogger by its full dotted name.
func LoggerNamed(name string) (logger Logger, ok bool) {
	return globalRegistry.loggerNamed(name)
}

// UpdateLoggerLevel changes the level of a registered sublogger.
func UpdateLoggerLevel(name string, level Level) error {
	return globalRegistry.updateLoggerLevel(name, level)
}

// SetAllLevels changes the level of every registered sublogger.
func SetAllLevels(level Level) {
	globalRegistry.setAll(level)
}

// RegisteredLoggerNames returns the sorted names of all registered subloggers.
func RegisteredLoggerNames() []string {
	return globalRegistry.names()
}
