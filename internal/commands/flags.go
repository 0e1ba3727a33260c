package commands

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/akx/talsi/internal/core/config"
)

type Flags struct {
	LogLevel    string
	LogFile     string
	ConfigPath  string
	File        string
	Compression string
	AllowGob    bool

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "talsi", "config.yaml")
}

// Merge applies the global flags that were set on the command line over the
// loaded configuration. Flags left at their defaults do not override the file.
func (f *Flags) Merge(c *cli.Command, cfg *config.Config) {
	if c.IsSet("file") || cfg.File == "" {
		cfg.File = f.File
	}
	if c.IsSet("compression") {
		cfg.Compression = f.Compression
	}
	if c.IsSet("allow-gob") {
		cfg.AllowGob = f.AllowGob
	}
	if c.IsSet("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = f.LogLevel
	}
	f.Config = cfg
}
