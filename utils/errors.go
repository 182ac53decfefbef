package utils

import (
	"github.com/pkg/errors"
)

// NewOutOfRangeError is used when a numeric setting falls outside its accepted interval.
func NewOutOfRangeError(name string, value, lo, hi float64) error {
	return errors.Errorf("%s must be in [%g, %g], got %g", name, lo, hi, value)
}
