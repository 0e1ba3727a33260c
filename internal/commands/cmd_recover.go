package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/akx/talsi"
)

type RecoverCmd struct {
	flags *Flags
	app   *App

	// flags
	force bool
}

// NewRecoverCmd creates a new recover command
func NewRecoverCmd(flags *Flags, app *App) *RecoverCmd {
	return &RecoverCmd{flags: flags, app: app}
}

// Register adds the recover command to the application
func (cmd *RecoverCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "recover",
		Usage:     "Move a corrupted database aside",
		UsageText: "talsi recover [--force]",
		Description: `Checks whether the database opens. If it reports corruption, the file and
its -wal/-shm companions are renamed with a .corrupt.<timestamp> suffix so
the next command starts with an empty database.

--force moves the file aside even when it opens cleanly.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "force",
				Usage:       "move the file aside even if it is not corrupt",
				Destination: &cmd.force,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *RecoverCmd) run(ctx context.Context, c *cli.Command) error {
	path, err := cmd.app.Path()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("database %s does not exist", path)
	}

	out := c.Root().Writer

	if !cmd.force {
		_, err := cmd.app.Storage()
		switch {
		case err == nil:
			_, _ = fmt.Fprintf(out, "%s is healthy; use --force to move it aside anyway\n", path)
			return nil
		case !errors.Is(err, talsi.ErrCorruption):
			return err
		}
	}

	if err := cmd.app.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}

	backup, err := talsi.RecoverFromCorruption(path)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "moved %s to %s\n", path, backup)
	return nil
}
