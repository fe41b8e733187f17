package config

import (
	"errors"
	"fmt"

	"github.com/mvp-joe/leantrace/internal/trace"
)

var (
	// ErrInvalidMode indicates an unsupported extraction mode
	ErrInvalidMode = errors.New("invalid extraction mode")

	// ErrInvalidStride indicates an invalid adaptive grid stride
	ErrInvalidStride = errors.New("invalid grid stride")

	// ErrInvalidConcurrency indicates an invalid worker count
	ErrInvalidConcurrency = errors.New("invalid concurrency")

	// ErrInvalidTimeout indicates a non-positive timeout
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrEmptySource indicates no source patterns configured
	ErrEmptySource = errors.New("empty source patterns")

	// ErrInvalidWindow indicates an invalid injection match window
	ErrInvalidWindow = errors.New("invalid injection window")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if _, err := cfg.TraceMode(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Trace.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("%w: %d (must be >= 1)", ErrInvalidConcurrency, cfg.Trace.Concurrency))
	}
	if cfg.Server.StartupTimeoutSec < 1 {
		errs = append(errs, fmt.Errorf("%w: startup_timeout_sec %d", ErrInvalidTimeout, cfg.Server.StartupTimeoutSec))
	}
	if cfg.Server.RequestTimeoutSec < 1 {
		errs = append(errs, fmt.Errorf("%w: request_timeout_sec %d", ErrInvalidTimeout, cfg.Server.RequestTimeoutSec))
	}
	if len(cfg.Paths.Source) == 0 {
		errs = append(errs, ErrEmptySource)
	}
	if cfg.Inject.Window < 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidWindow, cfg.Inject.Window))
	}

	return errors.Join(errs...)
}

// TraceMode resolves the configured mode name and stride to a trace.Mode.
func (c *Config) TraceMode() (trace.Mode, error) {
	switch c.Trace.Mode {
	case "exhaustive":
		return trace.Exhaustive(), nil
	case "adaptive":
		m := trace.Adaptive(c.Trace.GridStride)
		if err := m.Validate(); err != nil {
			return trace.Mode{}, fmt.Errorf("%w: %v", ErrInvalidStride, err)
		}
		return m, nil
	default:
		return trace.Mode{}, fmt.Errorf("%w: %q (want \"adaptive\" or \"exhaustive\")", ErrInvalidMode, c.Trace.Mode)
	}
}
