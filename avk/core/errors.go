package core

import (
	"github.com/cockroachdb/errors"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// WrapErrorf annotates err, keeping it matchable with errors.Is.
func WrapErrorf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// LogAndReturn logs err at error level and hands it back, the pattern used
// at every failing Vulkan call site.
func LogAndReturn(err error) error {
	if err != nil {
		LogError(err.Error())
	}
	return err
}
