package eval

import (
	"errors"
	"fmt"
)

// ConfigError marks a configuration-time failure: unknown evaluator types,
// malformed evaluator configs, unresolvable judge targets. Configuration
// errors are fatal and surface before any case executes, unlike evaluator
// execution failures which degrade to zero scores at run time.
type ConfigError struct {
	// Evaluator is the configured evaluator name, when known.
	Evaluator string

	// Message describes what is wrong with the configuration.
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Evaluator != "" {
		return fmt.Sprintf("evaluator %q: %s", e.Evaluator, e.Message)
	}
	return e.Message
}

// configErrorf builds a ConfigError for the named evaluator.
func configErrorf(evaluator, format string, args ...any) *ConfigError {
	return &ConfigError{
		Evaluator: evaluator,
		Message:   fmt.Sprintf(format, args...),
	}
}

// IsConfigError reports whether err (or any error it wraps) is a
// configuration error.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
