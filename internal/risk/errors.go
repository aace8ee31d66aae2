package risk

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is the sentinel matched by every *ConfigError.
var ErrInvalidConfig = errors.New("invalid risk configuration")

// ConfigError reports a risk parameter that cannot produce a sane decision.
// Attempts that hit one are aborted; nothing is silently defaulted.
type ConfigError struct {
	Field string
	Value float64
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("[CONFIG] %s=%v: %s", e.Field, e.Value, e.Msg)
}

// Category groups config errors for logs and metrics.
func (e *ConfigError) Category() string { return "CONFIG" }

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

func configErr(field string, value float64, msg string) error {
	return &ConfigError{Field: field, Value: value, Msg: msg}
}

// IsConfigError reports whether err is (or wraps) a risk configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}
