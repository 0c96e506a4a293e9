package core

import (
	"errors"
	"fmt"
)

// ConfigError marks a problem that cannot be recovered from without user
// action: an unresolved result shape, a store against an unknown leaf, a
// duplicate node id, an out-of-range task index. Configuration errors are
// raised synchronously at the point of detection and must surface to the
// user immediately.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

// Configf builds a ConfigError from a format string.
func Configf(format string, args ...any) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
