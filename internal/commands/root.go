package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/akx/talsi"
)

// NewRoot builds the talsi command tree with its global flags. Callers add
// Before and After hooks that load configuration and release the storage.
func NewRoot(flags *Flags, app *App) *cli.Command {
	root := &cli.Command{
		Name:      "talsi",
		Usage:     "Inspect and edit talsi key-value databases",
		UsageText: "talsi [global options] command [command options]",
		Description: `talsi stores values under (namespace, key) pairs in a single SQLite file.

The database is chosen with --file or TALSI_FILE. Settings may also come from
a YAML config file; command line flags take precedence over it.`,
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "path to the talsi database file",
				Sources:     cli.EnvVars("TALSI_FILE"),
				Destination: &flags.File,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("TALSI_CONFIG"),
				Value:       DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("TALSI_LOG_LEVEL"),
				Value:       "warn",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to stderr)",
				Sources:     cli.EnvVars("TALSI_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "compression",
				Usage:       "compression for new writes: none, snappy, zstd or zstd:LEVEL",
				Sources:     cli.EnvVars("TALSI_COMPRESSION"),
				Value:       talsi.DefaultCompression,
				Destination: &flags.Compression,
			},
			&cli.BoolFlag{
				Name:        "allow-gob",
				Usage:       "allow reading and writing gob-encoded values (trusted files only)",
				Sources:     cli.EnvVars("TALSI_ALLOW_GOB"),
				Destination: &flags.AllowGob,
			},
		},
	}

	root = NewListNamespacesCmd(flags, app).Register(root)
	root = NewListKeysCmd(flags, app).Register(root)
	root = NewGetCmd(flags, app).Register(root)
	root = NewSetCmd(flags, app).Register(root)
	root = NewDeleteCmd(flags, app).Register(root)
	root = NewRenameCmd(flags, app).Register(root)
	root = NewSweepCmd(flags, app).Register(root)
	root = NewStatsCmd(flags, app).Register(root)
	root = NewRecoverCmd(flags, app).Register(root)

	return root
}
