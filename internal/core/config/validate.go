package config

import (
	"errors"

	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"

	"github.com/akx/talsi/internal/codec"
)

// Validate checks every field and reports all problems at once as
// criterio.FieldErrors.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("compression", c.Compression, validCompression),
		criterio.Run("log_level", c.LogLevel, validLogLevel),
		c.validateDurations(),
	)
}

func (c *Config) validateDurations() error {
	var errs criterio.FieldErrorsBuilder
	if c.BusyTimeout < 0 {
		errs = errs.Append("busy_timeout", errors.New("must not be negative"))
	}
	if c.SweepInterval < 0 {
		errs = errs.Append("sweep_interval", errors.New("must not be negative"))
	}
	return errs.ToError()
}

func validCompression(s string) error {
	_, err := codec.ParseCompression(s)
	return err
}

func validLogLevel(s string) error {
	if s == "" {
		return nil
	}
	_, err := zerolog.ParseLevel(s)
	return err
}
