// Package config loads the talsi command line configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/akx/talsi"
)

// Config holds the settings a talsi command opens storage with. Command line
// flags override values read from the file.
type Config struct {
	File          string        `yaml:"file"`
	Compression   string        `yaml:"compression"`
	AllowGob      bool          `yaml:"allow_gob"`
	BusyTimeout   time.Duration `yaml:"busy_timeout"`
	MaxRetries    int           `yaml:"max_retries"` // negative disables retrying
	SweepInterval time.Duration `yaml:"sweep_interval"`
	LogLevel      string        `yaml:"log_level"`
}

// DefaultConfig returns a Config mirroring talsi.DefaultOptions.
func DefaultConfig() Config {
	opts := talsi.DefaultOptions()
	return Config{
		Compression: opts.Compression,
		BusyTimeout: opts.BusyTimeout,
		MaxRetries:  opts.MaxRetries,
		LogLevel:    zerolog.WarnLevel.String(),
	}
}

// Load reads configuration from path. An empty path or a missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Options converts the configuration into storage options.
func (c *Config) Options(logger *zerolog.Logger) talsi.Options {
	opts := talsi.DefaultOptions()
	opts.Compression = c.Compression
	opts.AllowGob = c.AllowGob
	opts.BusyTimeout = c.BusyTimeout
	opts.MaxRetries = c.MaxRetries
	opts.SweepInterval = c.SweepInterval
	opts.Logger = logger
	return opts
}
