package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is the sentinel wrapped by every ConfigError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError reports the single worst offending field of a configuration
// document. Values are never silently coerced.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: field %q: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// NewConfigError creates a ConfigError for a field.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// IsConfigError returns true if err carries a configuration problem.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

// UnsupportedModeError reports an invalid platform/mode combination. It is
// caught at validation time, before any deployment or network activity.
type UnsupportedModeError struct {
	Platform Platform
	Mode     DeploymentMode
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("deployment mode %q is not supported on platform %q", e.Mode, e.Platform)
}

func (e *UnsupportedModeError) Unwrap() error {
	return ErrInvalidConfig
}
