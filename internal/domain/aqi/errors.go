package aqi

import (
	"errors"
	"fmt"

	"github.com/okian/aqicast/internal/domain/pollutant"
)

// Sentinel error kinds for this package.
var (
	ErrUnknownPollutant = errors.New("pollutant not in breakpoint table")
	ErrInvalidTable     = errors.New("invalid breakpoint table")
)

// ConfigurationError reports a pollutant that has no breakpoints. It signals a
// mismatch between the table and the caller, not a recoverable input problem.
type ConfigurationError struct {
	Pollutant pollutant.Pollutant
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("aqi: %s: %q", ErrUnknownPollutant, string(e.Pollutant))
}

// Unwrap allows errors.Is(err, ErrUnknownPollutant).
func (e *ConfigurationError) Unwrap() error { return ErrUnknownPollutant }
